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
	"go/ast"
	"go/parser"
	"go/token"
)

// ComplexityValidator approximates cyclomatic complexity per function
// (1 + branch points) and fails when any function exceeds the limit.
// The score degrades with the worst offender's overshoot.
//
// Thread Safety: safe for concurrent use after construction.
type ComplexityValidator struct {
	// MaxPerFunction is the per-function complexity ceiling. Default 10.
	MaxPerFunction int
}

// NewComplexityValidator creates the validator. A non-positive limit
// means the default of 10.
func NewComplexityValidator(maxPerFunction int) *ComplexityValidator {
	if maxPerFunction <= 0 {
		maxPerFunction = 10
	}
	return &ComplexityValidator{MaxPerFunction: maxPerFunction}
}

// Name implements Validator.
func (v *ComplexityValidator) Name() string { return "complexity" }

// Severity implements Validator.
func (v *ComplexityValidator) Severity() Severity { return SeverityHigh }

// Fingerprint implements ConfigFingerprinter.
func (v *ComplexityValidator) Fingerprint() string {
	return fmt.Sprintf("max=%d", v.MaxPerFunction)
}

// Check implements Validator.
func (v *ComplexityValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	if artifact.Language != "" && artifact.Language != "go" {
		return Skip(v.Name(), v.Severity(), fmt.Sprintf("complexity check skipped: language %q", artifact.Language))
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", artifact.Content, 0)
	if err != nil {
		return Skip(v.Name(), v.Severity(), "complexity check skipped: artifact does not parse")
	}

	var errs []string
	worst := 0
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		complexity := cyclomatic(fn)
		if complexity > worst {
			worst = complexity
		}
		if complexity > v.MaxPerFunction {
			errs = append(errs, fmt.Sprintf("function %s has complexity %d (max %d)", fn.Name.Name, complexity, v.MaxPerFunction))
		}
	}

	if len(errs) == 0 {
		return Pass(v.Name(), v.Severity(), 1.0)
	}

	// Score degrades with how far past the limit the worst function is.
	score := float64(v.MaxPerFunction) / float64(worst)
	return Fail(v.Name(), v.Severity(), score, errs...)
}

// cyclomatic counts 1 + decision points in one function.
func cyclomatic(fn *ast.FuncDecl) int {
	count := 1
	ast.Inspect(fn, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt, *ast.CaseClause, *ast.CommClause:
			count++
		case *ast.BinaryExpr:
			if node.Op == token.LAND || node.Op == token.LOR {
				count++
			}
		}
		return true
	})
	return count
}

var _ Validator = (*ComplexityValidator)(nil)
var _ ConfigFingerprinter = (*ComplexityValidator)(nil)
