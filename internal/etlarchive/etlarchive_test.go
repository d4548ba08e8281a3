// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package etlarchive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStartAppendFinishRoundTripsCaptureBytes(t *testing.T) {
	archive, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer archive.Close()

	handle, err := archive.Start(123)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := archive.Append(handle, []byte("trace-bytes")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	path, err := archive.Finish(handle, false)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if path == "" {
		t.Fatalf("expected a non-empty file path")
	}
}

func TestAppendToUnknownHandleErrors(t *testing.T) {
	archive, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer archive.Close()

	if err := archive.Append("does-not-exist", []byte("x")); err == nil {
		t.Fatalf("expected an error for an unknown handle")
	}
}

func TestFinishTwiceReturnsUnknownHandleOnSecondCall(t *testing.T) {
	archive, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer archive.Close()

	handle, err := archive.Start(1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := archive.Finish(handle, false); err != nil {
		t.Fatalf("first Finish: %v", err)
	}
	if _, err := archive.Finish(handle, false); err == nil {
		t.Fatalf("second Finish should error, handle already consumed")
	}
}

func TestFinishWithCompressProducesLz4SuffixedFile(t *testing.T) {
	dir := t.TempDir()
	archive, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer archive.Close()

	handle, err := archive.Start(1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := archive.Append(handle, []byte("some trace data to compress")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	path, err := archive.Finish(handle, true)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if filepath.Ext(path) != ".lz4" {
		t.Fatalf("compressed path = %q, want a .lz4 suffix", path)
	}
	if _, err := os.Stat(filepath.Join(dir, path)); err != nil {
		t.Fatalf("compressed file not found on disk: %v", err)
	}
}
