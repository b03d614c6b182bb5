// Package config holds the engine's YAML-driven configuration: a single
// Config struct with grouped sub-structs, a DefaultConfig constructor,
// and validation that turns declared limits into runtime enforcement.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AtomTableConfig sizes the per-kind interning hash tables. The bucket
// counts are not significant to the contract (O(1) average lookup is)
// but CLIPS's own default table sizes are kept as defaults.
type AtomTableConfig struct {
	SymbolBuckets          int `yaml:"symbol_buckets"`
	FloatBuckets           int `yaml:"float_buckets"`
	IntegerBuckets         int `yaml:"integer_buckets"`
	BitmapBuckets          int `yaml:"bitmap_buckets"`
	ExternalAddressBuckets int `yaml:"external_address_buckets"`
}

// EvaluatorConfig bounds the expression evaluator.
type EvaluatorConfig struct {
	MaxRecursionDepth   int `yaml:"max_recursion_depth"`
	MaxActivationFrames int `yaml:"max_activation_frames"`
}

// FactStoreConfig controls assertion semantics.
type FactStoreConfig struct {
	FactLimit       int  `yaml:"fact_limit"`
	AllowDuplicates bool `yaml:"allow_duplicates"`
}

// AgendaConfig selects the default conflict-resolution strategy and
// salience bounds.
type AgendaConfig struct {
	Strategy        string `yaml:"strategy"`
	DefaultSalience int    `yaml:"default_salience"`
	SalienceMin     int    `yaml:"salience_min"`
	SalienceMax     int    `yaml:"salience_max"`
}

// BinaryFormatConfig controls bsave/bload framing.
type BinaryFormatConfig struct {
	MagicPrefix string `yaml:"magic_prefix"`
	VersionTag  string `yaml:"version_tag"`
	BigEndian   bool   `yaml:"big_endian"`
}

// LoggingConfig selects level and output shape for internal/logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// Config holds all engine configuration.
type Config struct {
	AtomTable    AtomTableConfig    `yaml:"atom_table"`
	Evaluator    EvaluatorConfig    `yaml:"evaluator"`
	FactStore    FactStoreConfig    `yaml:"fact_store"`
	Agenda       AgendaConfig       `yaml:"agenda"`
	BinaryFormat BinaryFormatConfig `yaml:"binary_format"`
	Logging      LoggingConfig      `yaml:"logging"`
	CoreLimits   CoreLimits         `yaml:"core_limits"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AtomTable: AtomTableConfig{
			SymbolBuckets:          65521,
			FloatBuckets:           8191,
			IntegerBuckets:         8191,
			BitmapBuckets:          8191,
			ExternalAddressBuckets: 8191,
		},
		Evaluator: EvaluatorConfig{
			MaxRecursionDepth:   1024,
			MaxActivationFrames: 4096,
		},
		FactStore: FactStoreConfig{
			FactLimit:       0, // 0 means unlimited; CoreLimits.MaxFacts is the hard ceiling
			AllowDuplicates: false,
		},
		Agenda: AgendaConfig{
			Strategy:        "depth",
			DefaultSalience: 0,
			SalienceMin:     -10000,
			SalienceMax:     10000,
		},
		BinaryFormat: BinaryFormatConfig{
			MagicPrefix: "RULECORE_BSAVE",
			VersionTag:  "1.0",
			BigEndian:   false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
		CoreLimits: DefaultCoreLimits(),
	}
}

// Load reads YAML configuration from path, starting from DefaultConfig so
// that any field the file omits keeps its default value.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole configuration for internally-consistent
// values, delegating to each group's own Validate where one exists.
func (c *Config) Validate() error {
	if err := c.CoreLimits.Validate(); err != nil {
		return err
	}
	if c.Agenda.SalienceMin > c.Agenda.SalienceMax {
		return fmt.Errorf("agenda.salience_min must be <= agenda.salience_max")
	}
	if c.Agenda.DefaultSalience < c.Agenda.SalienceMin || c.Agenda.DefaultSalience > c.Agenda.SalienceMax {
		return fmt.Errorf("agenda.default_salience must be within [salience_min, salience_max]")
	}
	switch c.Agenda.Strategy {
	case "depth", "breadth", "lex", "mea", "simplicity", "complexity", "random":
	default:
		return fmt.Errorf("agenda.strategy %q is not one of the seven recognized strategies", c.Agenda.Strategy)
	}
	if c.Evaluator.MaxRecursionDepth < 1 {
		return fmt.Errorf("evaluator.max_recursion_depth must be >= 1")
	}
	if c.BinaryFormat.MagicPrefix == "" || c.BinaryFormat.VersionTag == "" {
		return fmt.Errorf("binary_format.magic_prefix and version_tag must be non-empty")
	}
	return nil
}
