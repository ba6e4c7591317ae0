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

// AnnotationValidator measures interface-annotation coverage: the
// fraction of exported function parameters and results with concrete
// types rather than bare any/interface{}. Generated code leaning on
// any defeats the type checker, which is exactly what downstream
// validators rely on.
//
// Thread Safety: safe for concurrent use after construction.
type AnnotationValidator struct {
	// MaxAnyRatio is the tolerated fraction of any-typed slots.
	// Default 0.25.
	MaxAnyRatio float64
}

// NewAnnotationValidator creates the validator. A non-positive ratio
// means the 0.25 default.
func NewAnnotationValidator(maxAnyRatio float64) *AnnotationValidator {
	if maxAnyRatio <= 0 {
		maxAnyRatio = 0.25
	}
	return &AnnotationValidator{MaxAnyRatio: maxAnyRatio}
}

// Name implements Validator.
func (v *AnnotationValidator) Name() string { return "annotation_coverage" }

// Severity implements Validator.
func (v *AnnotationValidator) Severity() Severity { return SeverityWarning }

// Fingerprint implements ConfigFingerprinter.
func (v *AnnotationValidator) Fingerprint() string {
	return fmt.Sprintf("max_any=%.3f", v.MaxAnyRatio)
}

// Check implements Validator.
func (v *AnnotationValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	if artifact.Language != "" && artifact.Language != "go" {
		return Skip(v.Name(), v.Severity(), fmt.Sprintf("annotation coverage skipped: language %q", artifact.Language))
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", artifact.Content, 0)
	if err != nil {
		return Skip(v.Name(), v.Severity(), "annotation coverage skipped: artifact does not parse")
	}

	total, anyTyped := 0, 0
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !ast.IsExported(fn.Name.Name) {
			continue
		}
		for _, field := range fieldsOf(fn.Type.Params) {
			total++
			if isAnyType(field) {
				anyTyped++
			}
		}
		for _, field := range fieldsOf(fn.Type.Results) {
			total++
			if isAnyType(field) {
				anyTyped++
			}
		}
	}

	if total == 0 {
		return Pass(v.Name(), v.Severity(), 1.0)
	}

	ratio := float64(anyTyped) / float64(total)
	score := 1.0 - ratio
	if ratio <= v.MaxAnyRatio {
		return Pass(v.Name(), v.Severity(), score)
	}
	return Fail(v.Name(), v.Severity(), score,
		fmt.Sprintf("%.0f%% of exported signature slots are any-typed (max %.0f%%)", ratio*100, v.MaxAnyRatio*100))
}

func fieldsOf(list *ast.FieldList) []*ast.Field {
	if list == nil {
		return nil
	}
	return list.List
}

// isAnyType reports whether a field's type is any or interface{}.
func isAnyType(field *ast.Field) bool {
	switch t := field.Type.(type) {
	case *ast.Ident:
		return t.Name == "any"
	case *ast.InterfaceType:
		return t.Methods == nil || len(t.Methods.List) == 0
	}
	return false
}

var _ Validator = (*AnnotationValidator)(nil)
var _ ConfigFingerprinter = (*AnnotationValidator)(nil)
