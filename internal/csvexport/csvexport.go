// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package csvexport writes frame.Metrics records as CSV, one row per
// record, with a fixed column order and an exact-match header (spec.md §6
// "CSV output"). Absent optional fields write the sentinel "NA" instead of
// an empty cell, matching PresentMon's long-standing CSV convention.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/GameTechDev/pmmetricscore/metrics/frame"
)

const naSentinel = "NA"

// isV2 selects the wider V2 column set (instrumented + animation metrics);
// V1 writers omit those trailing columns entirely rather than leaving them
// blank, so the header and every row stay column-count-consistent.
var v1Columns = []string{
	"TimeInSeconds", "MsBetweenPresents", "MsInPresentAPI", "MsUntilRenderComplete",
	"MsUntilRenderStart", "CPUStartQpc", "CPUStartMs", "MsCPUBusy", "MsCPUWait",
	"MsGPULatency", "MsGPUBusy", "MsGPUWait", "MsVideoBusy",
	"MsUntilDisplayed", "MsBetweenDisplayChange", "MsDisplayedTime", "MsDisplayLatency",
	"ScreenTimeQpc", "FpsPresent", "FpsDisplay", "FpsApplication",
	"FrameType", "IsDroppedFrame", "SwapChainAddress", "PresentFlags",
	"SyncInterval", "Runtime", "PresentMode", "AllowsTearing",
}

var v2Columns = append(append([]string{}, v1Columns...),
	"MsClickToPhotonLatency", "MsAllInputPhotonLatency", "MsInstrumentedInputTime",
	"MsPcLatency", "MsAnimationError", "MsAnimationTime",
	"MsInstrumentedLatency", "MsInstrumentedRenderLatency", "MsInstrumentedSleep",
	"MsInstrumentedGpuLatency", "MsBetweenSimStarts", "MsFlipDelay",
)

// Writer writes a header once, then one row per WriteRow call, in the
// column order fixed by isV2 at construction.
type Writer struct {
	w    *csv.Writer
	isV2 bool
}

// NewWriter returns a Writer over dst and immediately writes the header
// row matching isV2's column set.
func NewWriter(dst io.Writer, isV2 bool) (*Writer, error) {
	w := &Writer{w: csv.NewWriter(dst), isV2: isV2}
	if err := w.w.Write(w.columns()); err != nil {
		return nil, fmt.Errorf("csvexport: write header: %w", err)
	}
	return w, nil
}

func (w *Writer) columns() []string {
	if w.isV2 {
		return v2Columns
	}
	return v1Columns
}

// WriteRow appends one CSV row for m.
func (w *Writer) WriteRow(m frame.Metrics) error {
	return w.w.Write(w.row(m))
}

// Flush flushes any buffered CSV output, returning the first write error
// encountered since the Writer was created, if any.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

func (w *Writer) row(m frame.Metrics) []string {
	row := []string{
		fmt.Sprint(m.TimeInSeconds),
		fmt.Sprint(m.MsBetweenPresents),
		fmt.Sprint(m.MsInPresentAPI),
		fmt.Sprint(m.MsUntilRenderComplete),
		fmt.Sprint(m.MsUntilRenderStart),
		fmt.Sprint(m.CPUStartQpc),
		fmt.Sprint(m.CPUStartMs),
		fmt.Sprint(m.MsCPUBusy),
		fmt.Sprint(m.MsCPUWait),
		fmt.Sprint(m.MsGPULatency),
		fmt.Sprint(m.MsGPUBusy),
		fmt.Sprint(m.MsGPUWait),
		fmt.Sprint(m.MsVideoBusy),
		fmt.Sprint(m.MsUntilDisplayed),
		fmt.Sprint(m.MsBetweenDisplayChange),
		fmt.Sprint(m.MsDisplayedTime),
		fmt.Sprint(m.MsDisplayLatency),
		fmt.Sprint(m.ScreenTimeQpc),
		fmt.Sprint(m.FpsPresent),
		fmt.Sprint(m.FpsDisplay),
		fmt.Sprint(m.FpsApplication),
		m.FrameType.String(),
		fmt.Sprint(m.IsDroppedFrame),
		fmt.Sprint(m.SwapChainAddress),
		fmt.Sprint(m.PresentFlags),
		fmt.Sprint(m.SyncInterval),
		fmt.Sprint(m.Runtime),
		fmt.Sprint(m.PresentMode),
		fmt.Sprint(m.AllowsTearing),
	}
	if !w.isV2 {
		return row
	}
	return append(row,
		optCell(m.MsClickToPhotonLatency.Get()),
		optCell(m.MsAllInputPhotonLatency.Get()),
		optCell(m.MsInstrumentedInputTime.Get()),
		optCell(m.MsPcLatency.Get()),
		optCell(m.MsAnimationError.Get()),
		optCell(m.MsAnimationTime.Get()),
		optCell(m.MsInstrumentedLatency.Get()),
		optCell(m.MsInstrumentedRenderLatency.Get()),
		optCell(m.MsInstrumentedSleep.Get()),
		optCell(m.MsInstrumentedGpuLatency.Get()),
		optCell(m.MsBetweenSimStarts.Get()),
		optCell(m.MsFlipDelay.Get()),
	)
}

func optCell(v float64, ok bool) string {
	if !ok {
		return naSentinel
	}
	return fmt.Sprint(v)
}
