// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"context"
	"fmt"
	"strings"
)

// DynamicExecValidator flags unsafe dynamic-execution constructs:
// spawning shells, loading plugins at runtime, linker tricks, and
// reflective call sites. These survive even when the capability
// denylist is relaxed, because they indicate the artifact is trying to
// escape static analysis.
//
// Thread Safety: safe for concurrent use after construction.
type DynamicExecValidator struct {
	patterns []string
}

// DefaultDynamicExecPatterns is the default unsafe-construct list.
func DefaultDynamicExecPatterns() []string {
	return []string{
		"exec.Command",
		"syscall.Exec",
		"plugin.Open",
		"go:linkname",
		".Call(",
		"eval(",
	}
}

// NewDynamicExecValidator creates a validator with the given pattern
// list. A nil list means DefaultDynamicExecPatterns.
func NewDynamicExecValidator(patterns []string) *DynamicExecValidator {
	if patterns == nil {
		patterns = DefaultDynamicExecPatterns()
	}
	return &DynamicExecValidator{patterns: patterns}
}

// Name implements Validator.
func (v *DynamicExecValidator) Name() string { return "dynamic_exec" }

// Severity implements Validator.
func (v *DynamicExecValidator) Severity() Severity { return SeverityCritical }

// Fingerprint implements ConfigFingerprinter.
func (v *DynamicExecValidator) Fingerprint() string {
	return strings.Join(v.patterns, ",")
}

// Check implements Validator. Each offending line is reported once with
// its first matching pattern.
func (v *DynamicExecValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	var errs []string
	for i, line := range strings.Split(artifact.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") && !strings.Contains(trimmed, "go:linkname") {
			continue
		}
		for _, pattern := range v.patterns {
			if strings.Contains(line, pattern) {
				errs = append(errs, fmt.Sprintf("line %d: dynamic execution construct %q", i+1, pattern))
				break
			}
		}
	}

	if len(errs) > 0 {
		return Fail(v.Name(), v.Severity(), 0, errs...)
	}
	return Pass(v.Name(), v.Severity(), 1.0)
}

var _ Validator = (*DynamicExecValidator)(nil)
var _ ConfigFingerprinter = (*DynamicExecValidator)(nil)
