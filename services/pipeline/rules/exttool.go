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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Diagnostic is one finding parsed from an external tool's output.
type Diagnostic struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Location string `json:"location"`
}

// OutputParser converts raw tool output into diagnostics. A nil error
// with zero diagnostics means a clean run.
type OutputParser func(output []byte) ([]Diagnostic, error)

// ExternalToolValidator shells out to an installed analysis tool
// (a linter, a type checker) against the artifact written to a temp
// file. A tool missing from PATH is a skip, never a failure: optional
// tooling must not block a pipeline run.
//
// Description:
//
//	Writes the artifact content to a temp file, runs the configured
//	command with a timeout, and parses diagnostics from stdout. Many
//	tools exit non-zero when they find issues, so a non-zero exit with
//	parseable output is a finding, not an execution failure.
//
// Thread Safety: safe for concurrent use after construction.
type ExternalToolValidator struct {
	// RuleName identifies this instance in results and cache keys, so
	// several tools can coexist in one validator set.
	RuleName string

	// Sev is the severity of this tool's failures.
	Sev Severity

	// Command is the binary name looked up in PATH.
	Command string

	// Args precede the temp file path on the command line.
	Args []string

	// FileExt is the temp file extension (e.g. ".go").
	FileExt string

	// Timeout bounds one tool run. Default 30s.
	Timeout time.Duration

	// Parse converts tool output to diagnostics. Nil means
	// ParseLineDiagnostics.
	Parse OutputParser
}

// Name implements Validator.
func (v *ExternalToolValidator) Name() string { return v.RuleName }

// Severity implements Validator.
func (v *ExternalToolValidator) Severity() Severity { return v.Sev }

// Fingerprint implements ConfigFingerprinter: the command line is the
// configuration identity.
func (v *ExternalToolValidator) Fingerprint() string {
	return v.Command + " " + strings.Join(v.Args, " ")
}

// Check implements Validator.
func (v *ExternalToolValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	if _, err := exec.LookPath(v.Command); err != nil {
		return Skip(v.RuleName, v.Sev, fmt.Sprintf("tool %q not installed", v.Command))
	}

	ext := v.FileExt
	if ext == "" {
		ext = ".txt"
	}
	tmpFile, err := os.CreateTemp("", "crucible-*"+ext)
	if err != nil {
		return Skip(v.RuleName, v.Sev, fmt.Sprintf("temp file unavailable: %v", err))
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(artifact.Content); err != nil {
		tmpFile.Close()
		return Skip(v.RuleName, v.Sev, fmt.Sprintf("temp file write failed: %v", err))
	}
	tmpFile.Close()

	output, runErr := v.run(ctx, tmpPath)
	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) {
			return Fail(v.RuleName, v.Sev, 0, fmt.Sprintf("tool %q timed out after %s", v.Command, v.timeout()))
		}
		return Fail(v.RuleName, v.Sev, 0, fmt.Sprintf("tool %q failed: %v", v.Command, runErr))
	}

	parse := v.Parse
	if parse == nil {
		parse = ParseLineDiagnostics
	}
	diags, err := parse(output)
	if err != nil {
		return Fail(v.RuleName, v.Sev, 0, fmt.Sprintf("tool %q produced unparseable output: %v", v.Command, err))
	}

	if len(diags) == 0 {
		return Pass(v.RuleName, v.Sev, 1.0)
	}
	errs := make([]string, 0, len(diags))
	for _, d := range diags {
		msg := d.Message
		if d.Code != "" {
			msg = fmt.Sprintf("[%s] %s", d.Code, msg)
		}
		if d.Location != "" {
			msg = d.Location + ": " + msg
		}
		errs = append(errs, strings.ReplaceAll(msg, tmpPath, "<artifact>"))
	}
	return Fail(v.RuleName, v.Sev, 0, errs...)
}

// run executes the tool subprocess and returns stdout.
func (v *ExternalToolValidator) run(ctx context.Context, filePath string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, v.timeout())
	defer cancel()

	args := make([]string, len(v.Args))
	copy(args, v.Args)
	args = append(args, filePath)

	cmd := exec.CommandContext(cmdCtx, v.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, context.DeadlineExceeded
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Tools that found issues exit non-zero but still write diagnostics.
	// Only treat it as an execution failure when there is nothing to parse.
	if err != nil && stdout.Len() == 0 && stderr.Len() == 0 {
		return nil, err
	}
	if stdout.Len() == 0 {
		return stderr.Bytes(), nil
	}
	return stdout.Bytes(), nil
}

func (v *ExternalToolValidator) timeout() time.Duration {
	if v.Timeout > 0 {
		return v.Timeout
	}
	return 30 * time.Second
}

// ParseJSONDiagnostics decodes a JSON array of diagnostics.
func ParseJSONDiagnostics(output []byte) ([]Diagnostic, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var diags []Diagnostic
	if err := json.Unmarshal(trimmed, &diags); err != nil {
		return nil, err
	}
	return diags, nil
}

// ParseLineDiagnostics treats each non-empty output line as one
// "location: message" diagnostic.
func ParseLineDiagnostics(output []byte) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d := Diagnostic{Message: line}
		if idx := strings.Index(line, ": "); idx > 0 {
			d.Location = line[:idx]
			d.Message = line[idx+2:]
		}
		diags = append(diags, d)
	}
	return diags, nil
}

var _ Validator = (*ExternalToolValidator)(nil)
var _ ConfigFingerprinter = (*ExternalToolValidator)(nil)
