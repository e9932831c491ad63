// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hook

import (
	"bytes"
	"runtime"
	"strconv"

	"github.com/bloomberg/memray-sub003/internal/model"
)

// currentThreadID identifies the calling goroutine. Go gives hooks no
// OS-thread affinity the way a cgo-interposed allocator would have, so
// the goroutine id stands in for spec.md's "native thread": it is
// stable for the lifetime of one hook invocation and distinct across
// concurrently executing callers, which is all the per-thread state
// (reentrancy guard, shadow stack, native IP cache) actually needs.
func currentThreadID() model.ThreadID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:" is the first line of runtime.Stack's
	// output; field 2 is the id.
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return model.ThreadID(id)
}
