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

// DocCoverageValidator measures how many exported declarations carry a
// doc comment. The score is the coverage ratio; the check fails below
// MinRatio. Non-Go artifacts skip; artifacts with no exported
// declarations pass vacuously.
//
// Thread Safety: safe for concurrent use after construction.
type DocCoverageValidator struct {
	// MinRatio is the minimum documented fraction of exported
	// declarations. Default 0.5.
	MinRatio float64
}

// NewDocCoverageValidator creates the validator. A non-positive
// minRatio means the 0.5 default.
func NewDocCoverageValidator(minRatio float64) *DocCoverageValidator {
	if minRatio <= 0 {
		minRatio = 0.5
	}
	return &DocCoverageValidator{MinRatio: minRatio}
}

// Name implements Validator.
func (v *DocCoverageValidator) Name() string { return "doc_coverage" }

// Severity implements Validator.
func (v *DocCoverageValidator) Severity() Severity { return SeverityWarning }

// Fingerprint implements ConfigFingerprinter.
func (v *DocCoverageValidator) Fingerprint() string {
	return fmt.Sprintf("min=%.3f", v.MinRatio)
}

// Check implements Validator.
func (v *DocCoverageValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	if artifact.Language != "" && artifact.Language != "go" {
		return Skip(v.Name(), v.Severity(), fmt.Sprintf("doc coverage skipped: language %q", artifact.Language))
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", artifact.Content, parser.ParseComments)
	if err != nil {
		return Skip(v.Name(), v.Severity(), "doc coverage skipped: artifact does not parse")
	}

	exported, documented, undocumented := countDocs(file)
	if exported == 0 {
		return Pass(v.Name(), v.Severity(), 1.0)
	}

	ratio := float64(documented) / float64(exported)
	if ratio >= v.MinRatio {
		return Pass(v.Name(), v.Severity(), ratio)
	}

	errs := []string{fmt.Sprintf("doc coverage %.0f%% below minimum %.0f%% (%d of %d exported declarations documented)",
		ratio*100, v.MinRatio*100, documented, exported)}
	for i, name := range undocumented {
		if i >= 5 {
			errs = append(errs, fmt.Sprintf("and %d more undocumented declarations", len(undocumented)-5))
			break
		}
		errs = append(errs, fmt.Sprintf("%s lacks a doc comment", name))
	}
	result := Fail(v.Name(), v.Severity(), ratio, errs...)
	return result
}

// countDocs tallies exported declarations and which have doc comments.
func countDocs(file *ast.File) (exported, documented int, undocumented []string) {
	record := func(name string, doc *ast.CommentGroup) {
		if !ast.IsExported(name) {
			return
		}
		exported++
		if doc != nil && len(doc.List) > 0 {
			documented++
		} else {
			undocumented = append(undocumented, name)
		}
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			record(d.Name.Name, d.Doc)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					doc := s.Doc
					if doc == nil {
						doc = d.Doc
					}
					record(s.Name.Name, doc)
				case *ast.ValueSpec:
					doc := s.Doc
					if doc == nil {
						doc = d.Doc
					}
					for _, name := range s.Names {
						record(name.Name, doc)
					}
				}
			}
		}
	}
	return exported, documented, undocumented
}

var _ Validator = (*DocCoverageValidator)(nil)
var _ ConfigFingerprinter = (*DocCoverageValidator)(nil)
