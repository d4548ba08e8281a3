// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package shm backs the shared-memory segments of spec.md §6 ("three
// logical stores live in a named segment identified by prefix + salt").
// Go's standard library has no POSIX shared-memory primitive, so this
// wraps golang.org/x/sys/unix's shm_open/mmap directly — the generalized
// equivalent of the original's actual shared-memory ring transport. Tests
// and replay mode use Anonymous instead, which is a plain heap-backed
// mapping with the identical Segment interface.
package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Segment is a fixed-size byte region, either a named POSIX shared-memory
// object (Open) or an anonymous heap-backed mapping (Anonymous) for
// in-process/test use.
type Segment struct {
	name  string
	bytes []byte
	file  *os.File // non-nil only for a named segment; kept open until Close
}

// Name is the segment's "prefix + salt" identifier (spec.md §6).
func (s *Segment) Name() string { return s.name }

// Bytes returns the mapped region. Callers lay out the presents ring,
// telemetry rings, and static tables within it themselves; Segment only
// owns the raw mapping.
func (s *Segment) Bytes() []byte { return s.bytes }

// Open creates (or truncates) a named POSIX shared-memory object of size
// bytes and maps it read/write. name should already include the
// prefix+salt this service's OpenSession handed back (internal/control).
func Open(name string, size int) (*Segment, error) {
	fd, err := unix.ShmOpen(name, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: shm_open %q: %w", name, err)
	}
	f := os.NewFile(uintptr(fd), name)

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: truncate %q to %d: %w", name, size, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %q: %w", name, err)
	}

	return &Segment{name: name, bytes: data, file: f}, nil
}

// Anonymous returns a heap-backed Segment with the same interface as Open,
// for tests and offline replay where no real shared-memory transport is
// needed.
func Anonymous(name string, size int) *Segment {
	return &Segment{name: name, bytes: make([]byte, size)}
}

// Close unmaps the segment and, for a named segment, unlinks it.
func (s *Segment) Close() error {
	if s.file == nil {
		return nil // anonymous
	}
	if err := unix.Munmap(s.bytes); err != nil {
		s.file.Close()
		return fmt.Errorf("shm: munmap %q: %w", s.name, err)
	}
	s.file.Close()
	return unix.ShmUnlink(s.name)
}
