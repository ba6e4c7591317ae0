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
)

// SizeValidator bounds artifact size. Oversized generations are usually
// runaway completions; an empty artifact is caught by the syntax check,
// so this one only looks upward.
//
// Thread Safety: safe for concurrent use after construction.
type SizeValidator struct {
	// MaxBytes is the byte ceiling. Default 64 KiB.
	MaxBytes int

	// MaxLines is the line ceiling. Default 2000.
	MaxLines int
}

// NewSizeValidator creates the validator. Non-positive limits take the
// defaults.
func NewSizeValidator(maxBytes, maxLines int) *SizeValidator {
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &SizeValidator{MaxBytes: maxBytes, MaxLines: maxLines}
}

// Name implements Validator.
func (v *SizeValidator) Name() string { return "size" }

// Severity implements Validator.
func (v *SizeValidator) Severity() Severity { return SeverityWarning }

// Fingerprint implements ConfigFingerprinter.
func (v *SizeValidator) Fingerprint() string {
	return fmt.Sprintf("bytes=%d,lines=%d", v.MaxBytes, v.MaxLines)
}

// Check implements Validator.
func (v *SizeValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	var errs []string
	if n := len(artifact.Content); n > v.MaxBytes {
		errs = append(errs, fmt.Sprintf("artifact is %d bytes (max %d)", n, v.MaxBytes))
	}
	if n := artifact.Lines(); n > v.MaxLines {
		errs = append(errs, fmt.Sprintf("artifact is %d lines (max %d)", n, v.MaxLines))
	}
	if len(errs) > 0 {
		return Fail(v.Name(), v.Severity(), 0.5, errs...)
	}
	return Pass(v.Name(), v.Severity(), 1.0)
}

var _ Validator = (*SizeValidator)(nil)
var _ ConfigFingerprinter = (*SizeValidator)(nil)
