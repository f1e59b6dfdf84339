package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/devrev/pairdb/contextmap/internal/model"
	"gopkg.in/yaml.v3"
)

// WriteText renders reports in the line-oriented form printed by the CLI
func WriteText(w io.Writer, reports []*model.Report) error {
	var b strings.Builder

	for _, r := range reports {
		if r == nil {
			continue
		}
		fmt.Fprintf(&b, "script %s %s\n", r.Script, r.Checksum)

		for _, s := range r.Steps {
			mark := "ok  "
			if !s.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "  %s %3d %-12s %s@%d", mark, s.Index, s.Op, s.Key, s.Context)
			if s.Value != "" {
				fmt.Fprintf(&b, " = %s", s.Value)
			}
			fmt.Fprintf(&b, " -> %s", s.Outcome)
			if !s.Passed {
				fmt.Fprintf(&b, " (expected %s)", s.Expected)
			}
			if s.Detail != "" {
				fmt.Fprintf(&b, ": %s", s.Detail)
			}
			b.WriteString("\n")
		}

		status := "PASS"
		if !r.OK() {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s: %d passed, %d failed, %d keys, %d owned values",
			status, r.Script, r.Passed, r.Failed, r.Keys, r.OwnedValues)
		if r.Aborted {
			b.WriteString(", aborted")
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteYAML renders reports as a YAML document
func WriteYAML(w io.Writer, reports []*model.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	out := make([]*model.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode reports: %w", err)
	}
	return enc.Close()
}
