package model

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete codebook configuration.
type Config struct {
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Validation  ValidationConfig  `yaml:"validation" mapstructure:"validation"`
	Merge       MergeConfig       `yaml:"merge" mapstructure:"merge"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// Matching strategies for the agreement scorer.
const (
	MatchingExact  = "exact"
	MatchingGreedy = "greedy"
)

// Validation modes.
const (
	ModeStrict  = "strict"
	ModeCollect = "collect"
)

// ScoringConfig controls agreement scoring.
type ScoringConfig struct {
	OverlapThreshold float64 `yaml:"overlap_threshold" json:"overlap_threshold" mapstructure:"overlap_threshold" validate:"gte=0,lte=1"`
	MinConfidence    float64 `yaml:"min_confidence" json:"min_confidence" mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	Matching         string  `yaml:"matching" json:"matching" mapstructure:"matching" validate:"oneof=exact greedy"`
	RejectTies       bool    `yaml:"reject_ties" json:"reject_ties" mapstructure:"reject_ties"`
	Presence         bool    `yaml:"presence" json:"presence" mapstructure:"presence"`
	IncludeMatches   bool    `yaml:"include_matches" json:"include_matches" mapstructure:"include_matches"`
}

// ValidationConfig controls the dataset validator.
type ValidationConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode" validate:"oneof=strict collect"`
}

// MergeConfig holds the default merge policy, e.g. "union", "dedupe" or
// "replace:gpt-4o-mini".
type MergeConfig struct {
	Policy string `yaml:"policy" mapstructure:"policy" validate:"required"`
}

// CacheConfig controls the evaluation report cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir" validate:"required_if=Enabled true"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl" validate:"gte=0"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl" validate:"gte=0"`
}

// ConcurrencyConfig bounds parallel work across answers and files.
type ConcurrencyConfig struct {
	Workers       int `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
	AnswerWorkers int `yaml:"answer_workers" mapstructure:"answer_workers" validate:"gte=1"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Verbose        bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeAnswers bool `yaml:"include_answers" mapstructure:"include_answers"`
	IncludeFooter  bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// DefaultScoring returns the scorer defaults: Jaccard threshold 0.5,
// no confidence filter, exact matching.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		OverlapThreshold: 0.5,
		MinConfidence:    0,
		Matching:         MatchingExact,
	}
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Scoring:    DefaultScoring(),
		Validation: ValidationConfig{Mode: ModeStrict},
		Merge:      MergeConfig{Policy: "union"},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".codebook-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:       runtime.NumCPU(),
			AnswerWorkers: runtime.NumCPU(),
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var configValidator = validator.New()

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks a standalone scoring configuration.
func (s ScoringConfig) Validate() error {
	if err := configValidator.Struct(s); err != nil {
		return fmt.Errorf("invalid scoring options: %w", err)
	}
	return nil
}
