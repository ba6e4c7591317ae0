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
	"go/parser"
	"go/scanner"
	"go/token"
)

// maxSyntaxErrors caps the errors reported from one parse so a garbage
// artifact doesn't flood the corrective prompt.
const maxSyntaxErrors = 5

// SyntaxValidator checks Go source well-formedness with go/parser.
// Artifacts tagged with another language skip.
//
// Thread Safety: safe for concurrent use.
type SyntaxValidator struct{}

// NewSyntaxValidator creates a SyntaxValidator.
func NewSyntaxValidator() *SyntaxValidator {
	return &SyntaxValidator{}
}

// Name implements Validator.
func (v *SyntaxValidator) Name() string { return "syntax" }

// Severity implements Validator.
func (v *SyntaxValidator) Severity() Severity { return SeverityCritical }

// Check implements Validator.
func (v *SyntaxValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	if artifact.Language != "" && artifact.Language != "go" {
		return Skip(v.Name(), v.Severity(), fmt.Sprintf("syntax check skipped: language %q", artifact.Language))
	}
	if artifact.Content == "" {
		return Fail(v.Name(), v.Severity(), 0, "artifact is empty")
	}

	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "artifact.go", artifact.Content, parser.AllErrors)
	if err == nil {
		return Pass(v.Name(), v.Severity(), 1.0)
	}

	var errs []string
	if list, ok := err.(scanner.ErrorList); ok {
		for i, e := range list {
			if i >= maxSyntaxErrors {
				errs = append(errs, fmt.Sprintf("and %d more syntax errors", len(list)-maxSyntaxErrors))
				break
			}
			errs = append(errs, fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg))
		}
	} else {
		errs = append(errs, err.Error())
	}

	return Fail(v.Name(), v.Severity(), 0, errs...)
}

var _ Validator = (*SyntaxValidator)(nil)
