// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package shm

import (
	"fmt"
	"testing"
)

func TestAnonymousBytesAreZeroedAndSizedCorrectly(t *testing.T) {
	seg := Anonymous("test-segment", 256)
	if seg.Name() != "test-segment" {
		t.Fatalf("Name() = %q, want %q", seg.Name(), "test-segment")
	}
	if len(seg.Bytes()) != 256 {
		t.Fatalf("len(Bytes()) = %d, want 256", len(seg.Bytes()))
	}
	for i, b := range seg.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestAnonymousWritesAreVisibleThroughBytes(t *testing.T) {
	seg := Anonymous("writable", 16)
	seg.Bytes()[0] = 0xAB
	if seg.Bytes()[0] != 0xAB {
		t.Fatalf("write through Bytes() did not persist")
	}
}

func TestAnonymousCloseIsANoOp(t *testing.T) {
	seg := Anonymous("closeable", 16)
	if err := seg.Close(); err != nil {
		t.Fatalf("Close on an anonymous segment should never error, got %v", err)
	}
}

func TestOpenThenCloseRoundTripsThroughRealSharedMemory(t *testing.T) {
	name := fmt.Sprintf("/pmmetricscore-test-%d", 1)
	seg, err := Open(name, 4096)
	if err != nil {
		t.Skipf("shm_open unavailable in this environment: %v", err)
	}
	defer seg.Close()

	if len(seg.Bytes()) != 4096 {
		t.Fatalf("len(Bytes()) = %d, want 4096", len(seg.Bytes()))
	}
	seg.Bytes()[10] = 42
	if seg.Bytes()[10] != 42 {
		t.Fatalf("write through mapped bytes did not persist")
	}
}
