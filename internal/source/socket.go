// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import "net"

// Socket is a capture source reading the live protocol stream from a
// TCP connection (spec.md §6).
type Socket struct {
	conn net.Conn
}

func NewSocket(conn net.Conn) *Socket { return &Socket{conn: conn} }

func (s *Socket) Read(p []byte) (int, error) { return s.conn.Read(p) }

func (s *Socket) Close() error { return s.conn.Close() }
