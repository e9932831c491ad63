// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sink

import (
	"net"
	"sync"
	"time"
)

// Socket is a capture sink backed by a TCP connection to a listening
// live viewer (spec.md §4.A, §6 "Live protocol"). It does not support
// Seeker: the live protocol carries no header rewrite, it is
// terminated by the trailer record instead.
type Socket struct {
	mu       sync.Mutex
	conn     net.Conn
	disabled bool
	closed   bool
}

// DialSocket connects to addr with a bounded dial timeout.
func DialSocket(addr string, timeout time.Duration) (*Socket, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &SinkError{Op: "dial", Err: err}
	}
	return &Socket{conn: conn}, nil
}

func (s *Socket) WriteBytes(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled || s.closed {
		return ErrSinkClosed
	}
	n, err := s.conn.Write(buf)
	if err != nil || n != len(buf) {
		s.disabled = true
		if err == nil {
			err = net.ErrClosed
		}
		return &SinkError{Op: "write", Err: err}
	}
	return nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		return &SinkError{Op: "close", Err: err}
	}
	return nil
}
