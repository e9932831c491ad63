// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"bufio"
	"os"
)

// File is a capture source reading from a regular file on disk,
// optionally zstd-compressed (see sink.File, which writes that form).
type File struct {
	f   *os.File
	buf *bufio.Reader
}

// OpenFile opens path for sequential reading. If decompress is true
// the stream is transparently zstd-decoded.
func OpenFile(path string, decompress bool) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if decompress {
		r, err := newZstdReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &File{f: f, buf: bufio.NewReader(r)}, nil
	}
	return &File{f: f, buf: bufio.NewReader(f)}, nil
}

func (s *File) Read(p []byte) (int, error) { return s.buf.Read(p) }

func (s *File) Close() error { return s.f.Close() }
