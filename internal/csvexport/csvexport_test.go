// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package csvexport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/option"
)

func TestV1HeaderOmitsOptionalColumns(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	header := strings.Split(strings.TrimSpace(buf.String()), ",")
	if len(header) != len(v1Columns) {
		t.Fatalf("v1 header has %d columns, want %d", len(header), len(v1Columns))
	}
	for _, name := range []string{"MsPcLatency", "MsAnimationError"} {
		for _, h := range header {
			if h == name {
				t.Fatalf("v1 header should not include %q", name)
			}
		}
	}
}

func TestV2RowWritesNAForAbsentOptional(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	m := frame.Metrics{
		FrameType:  frame.TypeApplication,
		MsPcLatency: option.None[float64](),
	}
	if err := w.WriteRow(m); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], naSentinel) {
		t.Fatalf("row should contain %q for the absent optional field, got %q", naSentinel, lines[1])
	}
}

func TestV2RowWritesValueForPresentOptional(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, true)
	m := frame.Metrics{MsPcLatency: option.Some(12.5)}
	w.WriteRow(m)
	w.Flush()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.Contains(lines[1], "12.5") {
		t.Fatalf("row should contain the present optional value, got %q", lines[1])
	}
}
