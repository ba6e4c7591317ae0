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
	"go/token"
	"sort"
	"strconv"
	"strings"
)

// CapabilityValidator detects forbidden capabilities: imports the
// generated artifact is not allowed to pull in. The denylist is
// configurable per profile; the default forbids process spawning, raw
// networking, unsafe memory access, and plugin loading.
//
// For Go artifacts the import list is taken from the AST when the source
// parses; otherwise (and for other languages) a line scan is used, so a
// syntactically broken artifact still gets capability findings.
//
// Thread Safety: safe for concurrent use after construction.
type CapabilityValidator struct {
	denied []string
}

// DefaultDeniedImports is the default capability denylist.
func DefaultDeniedImports() []string {
	return []string{"os/exec", "net", "plugin", "syscall", "unsafe"}
}

// NewCapabilityValidator creates a validator with the given denylist.
// A nil list means DefaultDeniedImports.
func NewCapabilityValidator(denied []string) *CapabilityValidator {
	if denied == nil {
		denied = DefaultDeniedImports()
	}
	sorted := make([]string, len(denied))
	copy(sorted, denied)
	sort.Strings(sorted)
	return &CapabilityValidator{denied: sorted}
}

// Name implements Validator.
func (v *CapabilityValidator) Name() string { return "forbidden_capability" }

// Severity implements Validator.
func (v *CapabilityValidator) Severity() Severity { return SeverityCritical }

// Fingerprint implements ConfigFingerprinter: the denylist is part of
// the cache identity.
func (v *CapabilityValidator) Fingerprint() string {
	return strings.Join(v.denied, ",")
}

// Check implements Validator.
func (v *CapabilityValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	imports := v.collectImports(artifact)

	var errs []string
	for _, imp := range imports {
		for _, denied := range v.denied {
			if imp == denied || strings.HasPrefix(imp, denied+"/") {
				errs = append(errs, fmt.Sprintf("forbidden import %q (matches denied capability %q)", imp, denied))
			}
		}
	}

	if len(errs) > 0 {
		return Fail(v.Name(), v.Severity(), 0, errs...)
	}
	return Pass(v.Name(), v.Severity(), 1.0)
}

// collectImports extracts import paths, preferring the AST.
func (v *CapabilityValidator) collectImports(artifact *Artifact) []string {
	if artifact.Language == "" || artifact.Language == "go" {
		fset := token.NewFileSet()
		if file, err := parser.ParseFile(fset, "artifact.go", artifact.Content, parser.ImportsOnly); err == nil {
			out := make([]string, 0, len(file.Imports))
			for _, spec := range file.Imports {
				if path, err := strconv.Unquote(spec.Path.Value); err == nil {
					out = append(out, path)
				}
			}
			return out
		}
	}
	return scanQuotedImports(artifact.Content)
}

// scanQuotedImports is the fallback line scan: any quoted string on an
// import-looking line counts as an import path.
func scanQuotedImports(content string) []string {
	var out []string
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			continue
		case inBlock && trimmed == ")":
			inBlock = false
			continue
		}
		if !inBlock && !strings.HasPrefix(trimmed, "import") {
			continue
		}
		if start := strings.IndexByte(trimmed, '"'); start >= 0 {
			rest := trimmed[start+1:]
			if end := strings.IndexByte(rest, '"'); end >= 0 {
				out = append(out, rest[:end])
			}
		}
	}
	return out
}

var _ Validator = (*CapabilityValidator)(nil)
var _ ConfigFingerprinter = (*CapabilityValidator)(nil)
