// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package source implements the byte-stream inputs the reader
// consumes: file and socket (spec.md §4.B).
package source

import "io"

// Source is a readable capture stream. A Source is not assumed to be
// seekable: the socket source is strictly forward-only, matching the
// live protocol's unbounded stream (spec.md §6).
type Source interface {
	io.Reader
	io.Closer
}
