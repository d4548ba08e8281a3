// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package introspect

import "testing"

func TestByIDAndByNameAgree(t *testing.T) {
	c := NewCatalog()
	for _, m := range c.Metrics() {
		byID, ok := c.ByID(m.ID)
		if !ok || byID.Name != m.Name {
			t.Fatalf("ByID(%d) = (%+v, %v), want name %q", m.ID, byID, ok, m.Name)
		}
		byName, ok := c.ByName(m.Name)
		if !ok || byName.ID != m.ID {
			t.Fatalf("ByName(%q) = (%+v, %v), want id %d", m.Name, byName, ok, m.ID)
		}
	}
}

func TestUnknownMetricNotFound(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.ByID(999999); ok {
		t.Errorf("ByID on an unregistered id should report false")
	}
	if _, ok := c.ByName("not_a_real_metric"); ok {
		t.Errorf("ByName on an unregistered name should report false")
	}
}

// The spec.md §9 alias decision: ms_between_app_start resolves to the same
// metric as ms_cpu_busy rather than being a distinct, re-derived metric.
func TestBetweenAppStartAliasResolvesToCpuBusy(t *testing.T) {
	c := NewCatalog()
	alias, ok := c.ByName("ms_between_app_start")
	if !ok {
		t.Fatalf("ms_between_app_start alias not registered")
	}
	if alias.ID != MetricMsCPUBusy {
		t.Fatalf("alias resolved to id %d, want %d (ms_cpu_busy)", alias.ID, MetricMsCPUBusy)
	}
}

// Frame metric IDs and polled metric IDs must never collide, since a query
// element can reference either kind interchangeably by ID.
func TestFrameAndPolledIDRangesAreDisjoint(t *testing.T) {
	c := NewCatalog()
	seen := map[uint32]bool{}
	for _, m := range c.Metrics() {
		if seen[m.ID] {
			t.Fatalf("duplicate metric id %d (%s)", m.ID, m.Name)
		}
		seen[m.ID] = true
	}
}

func TestEnumDictionariesResolve(t *testing.T) {
	c := NewCatalog()
	frameType, ok := c.ByName("frame_type")
	if !ok || frameType.Type != TypeEnum {
		t.Fatalf("frame_type should be a registered enum metric")
	}
	values, ok := c.Enum(frameType.EnumID)
	if !ok || len(values) != 6 {
		t.Fatalf("Enum(%d) = (%v, %v), want 6 values for frame_type", frameType.EnumID, values, ok)
	}
}

func TestDataTypeSizes(t *testing.T) {
	cases := map[DataType]uint32{
		TypeFloat64: 8,
		TypeUint64:  8,
		TypeUint32:  4,
		TypeInt32:   4,
		TypeEnum:    4,
		TypeBool:    1,
	}
	for typ, want := range cases {
		if got := typ.Size(); got != want {
			t.Errorf("%v.Size() = %d, want %d", typ, got, want)
		}
	}
}
