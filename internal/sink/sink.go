// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sink implements the byte-stream destinations a capture is
// written to: file, socket and null (spec.md §4.A).
package sink

import "errors"

// ErrSinkClosed is returned by WriteBytes once the sink has been
// closed or has entered the disabled state after a short write.
var ErrSinkClosed = errors.New("sink: closed or disabled")

// Sink is the destination a tracker writes its record stream to.
// WriteBytes returns an error of kind *SinkError on I/O failure; a
// short write disables the sink permanently (spec.md §4.C Failure
// semantics) rather than returning partial-success.
type Sink interface {
	WriteBytes(buf []byte) error
	// Close is idempotent; it must perform any compression step
	// exactly once, even if called more than once.
	Close() error
}

// Seeker is implemented only by sinks that support rewriting their own
// header after the fact (the file sink). Used exclusively for the
// header-rewrite-on-close step.
type Seeker interface {
	SeekToStart() error
}

// SinkError is the closed error kind for sink I/O failures (spec.md §7).
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string { return "sink: " + e.Op + ": " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }
