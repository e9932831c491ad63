// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// newZstdReader wraps r for transparent decompression of a capture
// file that was compressed on close by sink.File (see DESIGN.md on
// the zstd-for-LZ4 substitution).
func newZstdReader(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
