package config

import "fmt"

// CoreLimits enforces system-wide resource constraints on the engine:
// config values are turned into concrete runtime ceilings the engine
// consults at each boundary, not left inert in a struct nobody reads.
type CoreLimits struct {
	MaxFacts       int `yaml:"max_facts" json:"max_facts"`             // fact store ceiling, same field as fact.Store.FactLimit
	MaxTokens      int `yaml:"max_tokens" json:"max_tokens"`           // beta-memory token ceiling, guards runaway joins
	MaxActivations int `yaml:"max_activations" json:"max_activations"` // agenda ceiling
}

// DefaultCoreLimits mirrors the reference implementation's generous but
// finite defaults.
func DefaultCoreLimits() CoreLimits {
	return CoreLimits{
		MaxFacts:       1_000_000,
		MaxTokens:      1_000_000,
		MaxActivations: 100_000,
	}
}

// Validate checks that limits are within acceptable ranges.
func (c CoreLimits) Validate() error {
	if c.MaxFacts < 1 {
		return fmt.Errorf("max_facts must be >= 1")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be >= 1")
	}
	if c.MaxActivations < 1 {
		return fmt.Errorf("max_activations must be >= 1")
	}
	return nil
}

// Enforce returns the enforcement parameters as a map so downstream
// accounting code can iterate without knowing the struct's field
// names.
func (c CoreLimits) Enforce() map[string]int {
	return map[string]int{
		"max_facts":       c.MaxFacts,
		"max_tokens":      c.MaxTokens,
		"max_activations": c.MaxActivations,
	}
}
