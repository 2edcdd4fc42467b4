// Package genetic evolves strategy parameter sets with a generational
// genetic algorithm: tournament selection, blend crossover, per-type
// mutation and elitism.
package genetic

import (
	"fmt"
	"math"
	"math/rand"
)

// ParamType enumerates the gene types a schema can describe
type ParamType string

const (
	ParamInt         ParamType = "int"
	ParamFloat       ParamType = "float"
	ParamBool        ParamType = "bool"
	ParamCategorical ParamType = "categorical"
)

// ParamSpec describes one tunable parameter
type ParamSpec struct {
	Type       ParamType     `json:"type"`
	Min        float64       `json:"min,omitempty"` // int and float
	Max        float64       `json:"max,omitempty"`
	Categories []interface{} `json:"categories,omitempty"` // categorical only
	Default    interface{}   `json:"default,omitempty"`
}

// Schema maps parameter names to their specs
type Schema map[string]ParamSpec

// Validate checks the schema is internally consistent
func (s Schema) Validate() error {
	for name, spec := range s {
		switch spec.Type {
		case ParamInt, ParamFloat:
			if spec.Min > spec.Max {
				return fmt.Errorf("parameter %q: min %v exceeds max %v", name, spec.Min, spec.Max)
			}
		case ParamBool:
			// nothing to check
		case ParamCategorical:
			if len(spec.Categories) == 0 {
				return fmt.Errorf("parameter %q: categorical without categories", name)
			}
		default:
			return fmt.Errorf("parameter %q: unknown type %q", name, spec.Type)
		}
	}
	return nil
}

// Random draws a value uniformly from the spec's domain
func (spec ParamSpec) Random(rng *rand.Rand) interface{} {
	switch spec.Type {
	case ParamInt:
		lo, hi := int(spec.Min), int(spec.Max)
		if hi <= lo {
			return lo
		}
		return lo + rng.Intn(hi-lo+1)
	case ParamFloat:
		return spec.Min + rng.Float64()*(spec.Max-spec.Min)
	case ParamBool:
		return rng.Intn(2) == 0
	case ParamCategorical:
		return spec.Categories[rng.Intn(len(spec.Categories))]
	}
	return spec.Default
}

// Clamp forces a numeric value back inside the spec's bounds. Int values
// are rounded to the nearest integer before clamping.
func (spec ParamSpec) Clamp(v float64) interface{} {
	switch spec.Type {
	case ParamInt:
		n := math.Round(v)
		if n < spec.Min {
			n = spec.Min
		}
		if n > spec.Max {
			n = spec.Max
		}
		return int(n)
	case ParamFloat:
		if v < spec.Min {
			return spec.Min
		}
		if v > spec.Max {
			return spec.Max
		}
		return v
	}
	return v
}

// Mutate perturbs a current value in place of it: numeric genes step by up
// to 10% of their range, bools flip, categoricals redraw.
func (spec ParamSpec) Mutate(current interface{}, rng *rand.Rand) interface{} {
	switch spec.Type {
	case ParamInt:
		cur := toFloat(current)
		step := (spec.Max - spec.Min) * 0.1
		delta := math.Round((rng.Float64()*2 - 1) * step)
		if delta == 0 {
			// A mutation must move the gene
			if rng.Intn(2) == 0 {
				delta = 1
			} else {
				delta = -1
			}
		}
		return spec.Clamp(cur + delta)
	case ParamFloat:
		cur := toFloat(current)
		step := (spec.Max - spec.Min) * 0.1
		return spec.Clamp(cur + (rng.Float64()*2-1)*step)
	case ParamBool:
		b, _ := current.(bool)
		return !b
	case ParamCategorical:
		return spec.Categories[rng.Intn(len(spec.Categories))]
	}
	return current
}

// toFloat normalizes the numeric types JSON decoding may hand back
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
