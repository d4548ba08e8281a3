// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package etlarchive backs the StartEtlLogging/FinishEtlLogging control RPC
// pair (spec.md §6) with a durable, path-addressable capture file. It uses
// gocloud.dev/blob over a fileblob-backed bucket rather than a bare
// os.File: this is the one spot in the spec where a client is handed back
// a file_path to a durable artifact, exactly the shape blob.Bucket exists
// to abstract, so pointing the bucket at a different URL scheme later (an
// actual object store) is a config change, not a rewrite.
package etlarchive

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// handleState tracks one open capture between StartEtlLogging and
// FinishEtlLogging.
type handleState struct {
	pid    uint32
	writer *blob.Writer
	key    string
}

// Archive owns the local capture directory and the in-flight handles
// writing into it.
type Archive struct {
	bucket *blob.Bucket

	mu      sync.Mutex
	handles map[string]*handleState
}

// Open returns an Archive rooted at dir. dir must already exist; Open does
// not create it.
func Open(ctx context.Context, dir string) (*Archive, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{NoTempDir: true})
	if err != nil {
		return nil, fmt.Errorf("etlarchive: open bucket: %w", err)
	}
	return &Archive{bucket: bucket, handles: make(map[string]*handleState)}, nil
}

// Close releases the underlying bucket.
func (a *Archive) Close() error { return a.bucket.Close() }

// Start opens a new capture for pid and returns its opaque handle.
func (a *Archive) Start(pid uint32) (string, error) {
	key := fmt.Sprintf("%d-%s.etl", pid, uuid.NewString())
	w, err := a.bucket.NewWriter(context.Background(), key, nil)
	if err != nil {
		return "", fmt.Errorf("etlarchive: start capture: %w", err)
	}

	handle := uuid.NewString()
	a.mu.Lock()
	a.handles[handle] = &handleState{pid: pid, writer: w, key: key}
	a.mu.Unlock()
	return handle, nil
}

// Append writes raw trace bytes into the capture identified by handle.
// Called by the event-tracing producer as capture data arrives; the
// producer itself is out of scope for this module (spec.md §9).
func (a *Archive) Append(handle string, data []byte) error {
	a.mu.Lock()
	st, ok := a.handles[handle]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("etlarchive: unknown handle %q", handle)
	}
	_, err := st.writer.Write(data)
	return err
}

// Finish closes the capture and returns the durable file path, optionally
// lz4-compressing it first when compress is true.
func (a *Archive) Finish(handle string, compress bool) (string, error) {
	a.mu.Lock()
	st, ok := a.handles[handle]
	if ok {
		delete(a.handles, handle)
	}
	a.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("etlarchive: unknown handle %q", handle)
	}
	if err := st.writer.Close(); err != nil {
		return "", fmt.Errorf("etlarchive: close capture: %w", err)
	}

	key := st.key
	if compress {
		var err error
		key, err = a.compress(st.key)
		if err != nil {
			return "", err
		}
	}

	u, err := a.bucket.SignedURL(context.Background(), key, &blob.SignedURLOptions{})
	if err == nil && u != "" {
		return u, nil
	}
	// Local fileblob buckets don't support signed URLs; the key itself
	// round-trips as a path relative to the bucket root in that case.
	return key, nil
}

func (a *Archive) compress(key string) (string, error) {
	ctx := context.Background()
	r, err := a.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("etlarchive: open for compression: %w", err)
	}
	defer r.Close()

	compressedKey := key + ".lz4"
	w, err := a.bucket.NewWriter(ctx, compressedKey, nil)
	if err != nil {
		return "", fmt.Errorf("etlarchive: open compressed writer: %w", err)
	}
	zw := lz4.NewWriter(w)
	if _, err := io.Copy(zw, r); err != nil {
		zw.Close()
		w.Close()
		return "", fmt.Errorf("etlarchive: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	_ = a.bucket.Delete(ctx, key)
	return compressedKey, nil
}
