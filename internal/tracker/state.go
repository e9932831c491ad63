// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tracker implements the install/teardown state machine and
// per-event bookkeeping of spec.md §4.G: it is the component every
// hook call eventually reaches once the reentrancy guard and stack
// capture have run.
package tracker

// State is the tracker's lifecycle state (spec.md §3 Lifecycles).
type State int32

const (
	// Uninstalled: no hooks wrapped, nothing recorded.
	Uninstalled State = iota
	// Installed: hooks active, writer open, recording.
	Installed
	// Disabled: hooks still wrapped but recording is paused; entered
	// when Record fails to write to the sink, or by an explicit
	// Disable call.
	Disabled
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Installed:
		return "installed"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}
