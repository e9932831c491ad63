// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package symbol

import "runtime"

// testTargetPC returns a program counter inside this function, giving
// TestRuntimeBackendResolvesOwnFunction a known symbol to resolve.
func testTargetPC() uintptr {
	pc, _, _, _ := runtime.Caller(0)
	return pc
}
