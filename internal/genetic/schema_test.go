package genetic

import (
	"math/rand"
	"testing"
)

func testSchema() Schema {
	return Schema{
		"fast_period": {Type: ParamInt, Min: 2, Max: 50, Default: 10},
		"threshold":   {Type: ParamFloat, Min: 0.1, Max: 0.9, Default: 0.5},
		"use_volume":  {Type: ParamBool, Default: true},
		"interval":    {Type: ParamCategorical, Categories: []interface{}{"1h", "4h", "1d"}, Default: "1d"},
	}
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{"valid", testSchema(), false},
		{"inverted bounds", Schema{"p": {Type: ParamInt, Min: 10, Max: 2}}, true},
		{"empty categories", Schema{"p": {Type: ParamCategorical}}, true},
		{"unknown type", Schema{"p": {Type: "enum"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRandomStaysInDomain(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	schema := testSchema()

	for i := 0; i < 1000; i++ {
		if v := schema["fast_period"].Random(rng).(int); v < 2 || v > 50 {
			t.Fatalf("int draw %d outside [2, 50]", v)
		}
		if v := schema["threshold"].Random(rng).(float64); v < 0.1 || v > 0.9 {
			t.Fatalf("float draw %v outside [0.1, 0.9]", v)
		}
		v := schema["interval"].Random(rng).(string)
		if v != "1h" && v != "4h" && v != "1d" {
			t.Fatalf("categorical draw %q not in categories", v)
		}
	}
}

func TestClamp(t *testing.T) {
	intSpec := ParamSpec{Type: ParamInt, Min: 2, Max: 50}
	tests := []struct {
		in   float64
		want int
	}{
		{1.2, 2},
		{60, 50},
		{10.4, 10},
		{10.6, 11},
	}
	for _, tt := range tests {
		if got := intSpec.Clamp(tt.in).(int); got != tt.want {
			t.Errorf("int Clamp(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}

	floatSpec := ParamSpec{Type: ParamFloat, Min: 0.1, Max: 0.9}
	if got := floatSpec.Clamp(1.5).(float64); got != 0.9 {
		t.Errorf("float Clamp(1.5) = %v, want 0.9", got)
	}
	if got := floatSpec.Clamp(-1).(float64); got != 0.1 {
		t.Errorf("float Clamp(-1) = %v, want 0.1", got)
	}
}

func TestMutateIntAlwaysMoves(t *testing.T) {
	// Range of 1 makes the 10% step round to zero; the minimum step of
	// one unit must still apply (modulo clamping at a bound).
	spec := ParamSpec{Type: ParamInt, Min: 2, Max: 3}
	rng := rand.New(rand.NewSource(2))

	moved := false
	for i := 0; i < 100; i++ {
		if spec.Mutate(2, rng).(int) == 3 {
			moved = true
			break
		}
	}
	if !moved {
		t.Error("int mutation never moved the gene")
	}
}

func TestMutateFloatStaysInBounds(t *testing.T) {
	spec := ParamSpec{Type: ParamFloat, Min: 0, Max: 1}
	rng := rand.New(rand.NewSource(3))
	v := 0.95
	for i := 0; i < 1000; i++ {
		v = spec.Mutate(v, rng).(float64)
		if v < 0 || v > 1 {
			t.Fatalf("float mutation escaped bounds: %v", v)
		}
	}
}

func TestMutateBoolFlips(t *testing.T) {
	spec := ParamSpec{Type: ParamBool}
	rng := rand.New(rand.NewSource(4))
	if got := spec.Mutate(true, rng).(bool); got {
		t.Error("mutating true should give false")
	}
	if got := spec.Mutate(false, rng).(bool); !got {
		t.Error("mutating false should give true")
	}
}

func TestMutateCategoricalStaysInSet(t *testing.T) {
	spec := ParamSpec{Type: ParamCategorical, Categories: []interface{}{"a", "b", "c"}}
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		v := spec.Mutate("a", rng).(string)
		if v != "a" && v != "b" && v != "c" {
			t.Fatalf("categorical mutation %q left the set", v)
		}
	}
}
