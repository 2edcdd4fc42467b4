package genetic

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFitnessValueUnevaluated(t *testing.T) {
	c := NewChromosome("c", nil, 0)
	if !math.IsInf(c.FitnessValue(), -1) {
		t.Errorf("unevaluated fitness = %v, want -Inf", c.FitnessValue())
	}
	c.SetFitness(1.5)
	if c.FitnessValue() != 1.5 {
		t.Errorf("fitness = %v, want 1.5", c.FitnessValue())
	}
}

func TestCloneIntoNewIdentity(t *testing.T) {
	c := NewChromosome("orig", map[string]interface{}{"p": 5}, 3)
	c.SetFitness(2)
	c.Performance = map[string]float64{"total_return": 10}

	clone := c.CloneInto(4)
	if clone.ID == c.ID {
		t.Error("clone must get a fresh id")
	}
	if clone.Generation != 4 {
		t.Errorf("clone generation = %d, want 4", clone.Generation)
	}
	if len(clone.ParentIDs) != 1 || clone.ParentIDs[0] != c.ID {
		t.Errorf("clone parents = %v, want [%s]", clone.ParentIDs, c.ID)
	}
	if clone.Fitness != nil || clone.Performance != nil {
		t.Error("clone must start unevaluated")
	}

	clone.Parameters["p"] = 9
	if c.Parameters["p"] != 5 {
		t.Error("mutating the clone leaked into the original")
	}
}

func TestMapRoundTrip(t *testing.T) {
	c := NewChromosome("rt", map[string]interface{}{"fast": 12, "ratio": 0.4}, 2, "parent-a", "parent-b")
	c.SetFitness(3.25)
	c.Performance = map[string]float64{"total_return": 7.5, "sharpe_ratio": 1.1}

	got := FromMap(c.ToMap())
	if got.ID != c.ID || got.Name != c.Name || got.Generation != 2 {
		t.Errorf("identity fields lost: %+v", got)
	}
	if got.FitnessValue() != 3.25 {
		t.Errorf("fitness = %v, want 3.25", got.FitnessValue())
	}
	if len(got.ParentIDs) != 2 {
		t.Errorf("parents = %v, want 2 entries", got.ParentIDs)
	}
	if got.Performance["sharpe_ratio"] != 1.1 {
		t.Errorf("performance lost: %v", got.Performance)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, c.CreatedAt)
	}
}

func TestMapRoundTripThroughJSON(t *testing.T) {
	c := NewChromosome("json", map[string]interface{}{"n": 3}, 1, "p1")
	c.SetFitness(-0.5)
	c.Performance = map[string]float64{"win_rate": 55}

	data, err := json.Marshal(c.ToMap())
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}

	got := FromMap(m)
	if got.ID != c.ID {
		t.Errorf("id = %s, want %s", got.ID, c.ID)
	}
	if got.Generation != 1 {
		t.Errorf("generation = %d, want 1", got.Generation)
	}
	if got.FitnessValue() != -0.5 {
		t.Errorf("fitness = %v, want -0.5", got.FitnessValue())
	}
	if got.Performance["win_rate"] != 55 {
		t.Errorf("performance = %v", got.Performance)
	}
	if len(got.ParentIDs) != 1 || got.ParentIDs[0] != "p1" {
		t.Errorf("parents = %v", got.ParentIDs)
	}
}
