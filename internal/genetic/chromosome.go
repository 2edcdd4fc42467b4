package genetic

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Chromosome is one candidate parameter set. Fitness stays nil until the
// chromosome has been evaluated; ranking treats nil as negative infinity.
type Chromosome struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Parameters  map[string]interface{} `json:"parameters"`
	Generation  int                    `json:"generation"`
	ParentIDs   []string               `json:"parent_ids,omitempty"` // 0 for seeds, 1 for clones and mutants, 2 for offspring
	Fitness     *float64               `json:"fitness,omitempty"`
	Performance map[string]float64     `json:"performance,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewChromosome creates a chromosome with a fresh identity
func NewChromosome(name string, params map[string]interface{}, generation int, parentIDs ...string) *Chromosome {
	return &Chromosome{
		ID:         uuid.New().String(),
		Name:       name,
		Parameters: params,
		Generation: generation,
		ParentIDs:  parentIDs,
		CreatedAt:  time.Now().UTC(),
	}
}

// FitnessValue returns the fitness, or -Inf if the chromosome has not
// been evaluated.
func (c *Chromosome) FitnessValue() float64 {
	if c.Fitness == nil {
		return math.Inf(-1)
	}
	return *c.Fitness
}

// SetFitness records an evaluated fitness
func (c *Chromosome) SetFitness(f float64) {
	c.Fitness = &f
}

// CloneInto copies the chromosome's genes into a new identity at the
// given generation, recording the source as its single parent. Fitness
// and performance do not carry over.
func (c *Chromosome) CloneInto(generation int) *Chromosome {
	params := make(map[string]interface{}, len(c.Parameters))
	for k, v := range c.Parameters {
		params[k] = v
	}
	return NewChromosome(c.Name, params, generation, c.ID)
}

// ToMap flattens the chromosome for transport and persistence
func (c *Chromosome) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":         c.ID,
		"name":       c.Name,
		"parameters": c.Parameters,
		"generation": c.Generation,
		"created_at": c.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(c.ParentIDs) > 0 {
		m["parent_ids"] = c.ParentIDs
	}
	if c.Fitness != nil {
		m["fitness"] = *c.Fitness
	}
	if len(c.Performance) > 0 {
		m["performance"] = c.Performance
	}
	return m
}

// FromMap rebuilds a chromosome from its ToMap form
func FromMap(m map[string]interface{}) *Chromosome {
	c := &Chromosome{}
	if v, ok := m["id"].(string); ok {
		c.ID = v
	}
	if v, ok := m["name"].(string); ok {
		c.Name = v
	}
	if v, ok := m["parameters"].(map[string]interface{}); ok {
		c.Parameters = v
	}
	if v, ok := m["generation"]; ok {
		c.Generation = int(toFloat(v))
	}
	if v, ok := m["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			c.CreatedAt = t
		}
	}
	switch ids := m["parent_ids"].(type) {
	case []string:
		c.ParentIDs = ids
	case []interface{}:
		for _, id := range ids {
			if s, ok := id.(string); ok {
				c.ParentIDs = append(c.ParentIDs, s)
			}
		}
	}
	if v, ok := m["fitness"]; ok {
		c.SetFitness(toFloat(v))
	}
	switch perf := m["performance"].(type) {
	case map[string]float64:
		c.Performance = perf
	case map[string]interface{}:
		c.Performance = make(map[string]float64, len(perf))
		for k, v := range perf {
			c.Performance[k] = toFloat(v)
		}
	}
	return c
}
