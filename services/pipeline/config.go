// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/crucible/pkg/logging"
	"github.com/AleutianAI/crucible/services/pipeline/review"
	"github.com/AleutianAI/crucible/services/pipeline/rules"
	"github.com/AleutianAI/crucible/services/pipeline/selector"
)

// Config is the top-level pipeline configuration, loaded from YAML.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Generation GenerationConfig `yaml:"generation"`
	Validation ValidationConfig `yaml:"validation"`
	Review     ReviewConfig     `yaml:"review"`
	Loop       LoopConfig       `yaml:"loop"`
	Outcome    OutcomeConfig    `yaml:"outcome"`
}

// LoggingConfig is the YAML-facing logging section.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables JSON file logging when set.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON; Quiet disables stderr.
	JSON  bool `yaml:"json"`
	Quiet bool `yaml:"quiet"`
}

// loggerConfig converts the YAML section for pkg/logging.
func (l LoggingConfig) loggerConfig() logging.Config {
	return logging.Config{
		Level:   logging.ParseLevel(l.Level),
		LogDir:  l.Dir,
		Service: "crucible",
		JSON:    l.JSON,
		Quiet:   l.Quiet,
	}
}

// GenerationConfig tunes candidate generation.
type GenerationConfig struct {
	// Candidates per generation round.
	Candidates int `yaml:"candidates" validate:"min=1,max=16"`

	// Temperatures is the sampling ladder (candidate i uses entry
	// i mod len).
	Temperatures []float64 `yaml:"temperatures" validate:"dive,min=0,max=2"`

	// BaseSeed seeds candidate i with BaseSeed+i.
	BaseSeed int `yaml:"base_seed"`

	// MaxTokens caps each generation; zero uses the client default.
	MaxTokens int `yaml:"max_tokens" validate:"min=0"`

	// Parallel fans slots out, bounded by MaxWorkers.
	Parallel   bool `yaml:"parallel"`
	MaxWorkers int  `yaml:"max_workers" validate:"min=0,max=64"`
}

// ProfileConfig is one named validation profile: which validators run,
// how they are tuned, and how their scores are weighted.
type ProfileConfig struct {
	// Validators names the battery members. Known names: syntax,
	// forbidden_capability, dynamic_exec, doc_coverage,
	// annotation_coverage, complexity, size.
	Validators []string `yaml:"validators" validate:"min=1"`

	// DeniedImports overrides the capability denylist.
	DeniedImports []string `yaml:"denied_imports"`

	// Per-validator thresholds; zero values take each validator's
	// default.
	MinDocRatio   float64 `yaml:"min_doc_ratio" validate:"min=0,max=1"`
	MaxAnyRatio   float64 `yaml:"max_any_ratio" validate:"min=0,max=1"`
	MaxComplexity int     `yaml:"max_complexity" validate:"min=0"`
	MaxBytes      int     `yaml:"max_bytes" validate:"min=0"`
	MaxLines      int     `yaml:"max_lines" validate:"min=0"`

	// ExternalTools adds externally-invoked checkers (linters, type
	// checkers) to the battery alongside the named built-ins.
	ExternalTools []ExternalToolConfig `yaml:"external_tools" validate:"dive"`

	// Weights maps validator name (or prefix) to scoring weight.
	Weights map[string]float64 `yaml:"weights" validate:"dive,min=0,max=10"`

	// CriticalPenalty and AllPassBonus override the scoring
	// adjustments; zero takes the defaults.
	CriticalPenalty float64 `yaml:"critical_penalty" validate:"min=0,max=1"`
	AllPassBonus    float64 `yaml:"all_pass_bonus" validate:"min=0,max=1"`
}

// ExternalToolConfig configures one externally-invoked checker in a
// profile. A tool missing from PATH skips at run time rather than
// failing, so profiles stay portable across machines.
type ExternalToolConfig struct {
	// Name identifies the tool in results, weights, and cache keys.
	Name string `yaml:"name" validate:"required"`

	// Command is the binary looked up in PATH; Args precede the
	// artifact's temp file path.
	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args"`

	// FileExt is the temp file extension handed to the tool (".go").
	FileExt string `yaml:"file_ext"`

	// TimeoutSeconds bounds one run; zero takes the tool default.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=0"`

	// Severity classifies the tool's findings; empty means warning.
	Severity string `yaml:"severity" validate:"omitempty,oneof=info warning high critical"`

	// Format selects the output parser: "json" for a JSON diagnostic
	// array, "lines" (the default) for one finding per line.
	Format string `yaml:"format" validate:"omitempty,oneof=json lines"`
}

// validator constructs the rules instance for this tool config.
func (t ExternalToolConfig) validator() *rules.ExternalToolValidator {
	sev := rules.SeverityWarning
	if t.Severity != "" {
		sev = rules.Severity(t.Severity)
	}
	var parse rules.OutputParser
	if t.Format == "json" {
		parse = rules.ParseJSONDiagnostics
	}
	return &rules.ExternalToolValidator{
		RuleName: t.Name,
		Sev:      sev,
		Command:  t.Command,
		Args:     t.Args,
		FileExt:  t.FileExt,
		Timeout:  time.Duration(t.TimeoutSeconds) * time.Second,
		Parse:    parse,
	}
}

// ValidationConfig tunes the rule runner and names the profiles.
type ValidationConfig struct {
	// Profile selects the default profile from Profiles.
	Profile string `yaml:"profile" validate:"required"`

	// Profiles is the named profile set.
	Profiles map[string]ProfileConfig `yaml:"profiles" validate:"min=1"`

	// CacheCapacity bounds the validation LRU.
	CacheCapacity int `yaml:"cache_capacity" validate:"min=0"`

	// FailFast and MaxWorkers are passed to the runner.
	FailFast   bool `yaml:"fail_fast"`
	MaxWorkers int  `yaml:"max_workers" validate:"min=0,max=64"`
}

// ReviewConfig tunes the cross-architecture reviewer.
type ReviewConfig struct {
	// Enabled turns review on; the review model must differ from the
	// generator's in architecture for the signal to mean anything.
	Enabled bool `yaml:"enabled"`

	// Model and BaseURL select the review backend.
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	// LineThreshold, Budget, RatePer1K, RequestsPerMinute per the
	// review package.
	LineThreshold     int     `yaml:"line_threshold" validate:"min=0"`
	Budget            float64 `yaml:"budget" validate:"min=0"`
	RatePer1K         float64 `yaml:"rate_per_1k" validate:"min=0"`
	RequestsPerMinute int     `yaml:"requests_per_minute" validate:"min=0"`

	// Breaker settings.
	FailureThreshold int `yaml:"failure_threshold" validate:"min=0"`
	CooldownSeconds  int `yaml:"cooldown_seconds" validate:"min=0"`
}

// LoopConfig tunes self-correction.
type LoopConfig struct {
	MaxIterations int     `yaml:"max_iterations" validate:"min=1,max=10"`
	MinSalvage    float64 `yaml:"min_salvage" validate:"min=0,max=1"`
}

// OutcomeConfig tunes run recording.
type OutcomeConfig struct {
	// Enabled turns JSONL recording on; Dir is the target directory.
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DefaultConfig returns a complete working configuration: four
// candidates, the standard profile, review off.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Generation: GenerationConfig{
			Candidates:   4,
			Temperatures: []float64{0.2, 0.5, 0.8, 1.0},
			Parallel:     true,
		},
		Validation: ValidationConfig{
			Profile: "standard",
			Profiles: map[string]ProfileConfig{
				"standard": DefaultProfile(),
				"strict":   StrictProfile(),
			},
			CacheCapacity: 1024,
		},
		Review: ReviewConfig{
			LineThreshold:     review.DefaultLineThreshold,
			RequestsPerMinute: 10,
		},
		Loop: LoopConfig{
			MaxIterations: 3,
			MinSalvage:    0.1,
		},
		Outcome: OutcomeConfig{
			Dir: "~/.crucible/outcomes",
		},
	}
}

// DefaultProfile is the standard validator battery.
func DefaultProfile() ProfileConfig {
	return ProfileConfig{
		Validators: []string{
			"syntax", "forbidden_capability", "dynamic_exec",
			"doc_coverage", "annotation_coverage", "complexity", "size",
		},
		Weights: selector.DefaultWeights().Table,
	}
}

// StrictProfile tightens the standard battery for high-risk tasks.
func StrictProfile() ProfileConfig {
	p := DefaultProfile()
	p.MinDocRatio = 0.8
	p.MaxComplexity = 8
	p.MaxAnyRatio = 0.1
	return p
}

// LoadConfig reads a YAML config file over the defaults and validates
// the result. An empty path yields the validated defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration's struct tags and cross-field
// invariants.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, ok := c.Validation.Profiles[c.Validation.Profile]; !ok {
		return fmt.Errorf("config: unknown validation profile %q", c.Validation.Profile)
	}
	return nil
}

// buildValidators constructs a profile's validator battery.
func buildValidators(p ProfileConfig) ([]rules.Validator, error) {
	out := make([]rules.Validator, 0, len(p.Validators))
	for _, name := range p.Validators {
		switch name {
		case "syntax":
			out = append(out, rules.NewSyntaxValidator())
		case "forbidden_capability":
			out = append(out, rules.NewCapabilityValidator(p.DeniedImports))
		case "dynamic_exec":
			out = append(out, rules.NewDynamicExecValidator(nil))
		case "doc_coverage":
			out = append(out, rules.NewDocCoverageValidator(p.MinDocRatio))
		case "annotation_coverage":
			out = append(out, rules.NewAnnotationValidator(p.MaxAnyRatio))
		case "complexity":
			out = append(out, rules.NewComplexityValidator(p.MaxComplexity))
		case "size":
			out = append(out, rules.NewSizeValidator(p.MaxBytes, p.MaxLines))
		default:
			return nil, fmt.Errorf("config: unknown validator %q", name)
		}
	}
	for _, tool := range p.ExternalTools {
		out = append(out, tool.validator())
	}
	return out, nil
}

// weights converts a profile's scoring settings for the selector.
func (p ProfileConfig) weights() selector.Weights {
	w := selector.Weights{
		Table:           p.Weights,
		Default:         1.0,
		CriticalPenalty: p.CriticalPenalty,
		AllPassBonus:    p.AllPassBonus,
	}
	if w.Table == nil {
		w.Table = selector.DefaultWeights().Table
	}
	return w
}

// breakerConfig converts review settings for the circuit breaker.
func (r ReviewConfig) breakerConfig() review.BreakerConfig {
	cfg := review.DefaultBreakerConfig()
	if r.FailureThreshold > 0 {
		cfg.FailureThreshold = r.FailureThreshold
	}
	if r.CooldownSeconds > 0 {
		cfg.Cooldown = time.Duration(r.CooldownSeconds) * time.Second
	}
	return cfg
}
