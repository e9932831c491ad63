// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sink

// Null discards all input. Used when the capture target is the null
// device (spec.md §4.A).
type Null struct{}

func NewNull() *Null { return &Null{} }

func (*Null) WriteBytes(buf []byte) error { return nil }

func (*Null) Close() error { return nil }
