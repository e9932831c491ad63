// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sink

import (
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/bloomberg/memray-sub003/pkg/log"
)

// File is a capture sink backed by a regular file. On Close, unless
// compression is suppressed or a failed write has disabled the sink,
// the file is compressed and atomically swapped in for
// the uncompressed original (spec.md §4.A, §9 "streaming compression
// of the closed file").
type File struct {
	mu             sync.Mutex
	f              *os.File
	path           string
	suppressCompr  bool
	disabled       bool
	closed         bool
}

// NewFile opens path for writing, truncating any existing content
// unless truncate is false (in which case writes append).
func NewFile(path string, truncate bool, suppressCompression bool) (*File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, &SinkError{Op: "open", Err: err}
	}
	return &File{f: f, path: path, suppressCompr: suppressCompression}, nil
}

func (s *File) WriteBytes(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled || s.closed {
		return ErrSinkClosed
	}
	n, err := s.f.Write(buf)
	if err != nil || n != len(buf) {
		// A short write is fatal for the capture (spec.md §4.C).
		s.disabled = true
		if err == nil {
			err = os.ErrClosed
		}
		log.Errorf("sink/file: short write to %s, disabling further writes: %v", s.path, err)
		return &SinkError{Op: "write", Err: err}
	}
	return nil
}

// SeekToStart rewinds the file for the header rewrite performed at
// close (spec.md §4.A); it is the only use of seeking on this sink.
func (s *File) SeekToStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.f.Seek(0, 0)
	if err != nil {
		return &SinkError{Op: "seek", Err: err}
	}
	return nil
}

// Close is idempotent and performs the compression step exactly once.
func (s *File) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	suppress := s.suppressCompr || s.disabled
	path := s.path
	f := s.f
	s.mu.Unlock()

	if err := f.Close(); err != nil {
		return &SinkError{Op: "close", Err: err}
	}
	if suppress {
		return nil
	}
	return compressInPlace(path)
}

// compressInPlace rewrites path with its zstd-compressed form and
// swaps it in atomically via rename, so a reader never observes a
// half-written compressed file (spec.md §9).
func compressInPlace(path string) error {
	tmp := path + ".zst.tmp"
	in, err := os.Open(path)
	if err != nil {
		return &SinkError{Op: "compress-open", Err: err}
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return &SinkError{Op: "compress-create", Err: err}
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return &SinkError{Op: "compress-init", Err: err}
	}
	if _, err := enc.ReadFrom(in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(tmp)
		return &SinkError{Op: "compress-copy", Err: err}
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return &SinkError{Op: "compress-flush", Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return &SinkError{Op: "compress-close", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &SinkError{Op: "compress-swap", Err: err}
	}
	return nil
}
