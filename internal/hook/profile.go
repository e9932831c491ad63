// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hook

import (
	"github.com/bloomberg/memray-sub003/internal/model"
	"github.com/bloomberg/memray-sub003/internal/shadowstack"
)

// ProfileInstaller wires a shadowstack.Manager to the host
// interpreter's call/c_call/return profile callback and, where the
// host exposes one, its greenlet switch notification (spec.md §4.D).
// It is the thin adapter between the shadow-stack package (pure state
// machine) and whatever mechanism a concrete embedding uses to invoke
// the profile callback; Go programs call Push/Pop/SwitchContext
// directly at function entry/exit via instrumentation, since there is
// no CPython-style sys.setprofile equivalent to hook into.
type ProfileInstaller struct {
	stack *shadowstack.Manager
}

// NewProfileInstaller returns an installer bound to stack.
func NewProfileInstaller(stack *shadowstack.Manager) *ProfileInstaller {
	return &ProfileInstaller{stack: stack}
}

// OnCall implements the `call`/`c_call` profile event of spec.md
// §4.E: f.IsEntryFrame marks a push that corresponds to a fresh
// native invocation of the evaluation loop.
func (p *ProfileInstaller) OnCall(threadID model.ThreadID, f model.InterpretedFrame) shadowstack.PushResult {
	return p.stack.Push(threadID, f)
}

// OnReturn implements the `return` profile event.
func (p *ProfileInstaller) OnReturn(threadID model.ThreadID) {
	p.stack.Pop(threadID)
}

// OnGreenletSwitch implements the cooperative context-switch
// notification of spec.md §4.D/§9: the shadow stack owned by from is
// saved and the one owned by to is restored.
func (p *ProfileInstaller) OnGreenletSwitch(threadID model.ThreadID, from, to shadowstack.ContextID) {
	p.stack.SwitchContext(threadID, from, to)
}

// OnProfileOff implements the synthetic profile-off event emitted at
// tracker teardown (spec.md §4.E): the thread's stack is forgotten.
func (p *ProfileInstaller) OnProfileOff(threadID model.ThreadID) {
	p.stack.Teardown(threadID)
}

// stackCaptureAdapter adapts shadowstack.Manager to the StackCapture
// interface Table needs.
type stackCaptureAdapter struct {
	stack *shadowstack.Manager
}

// NewStackCapture adapts stack to the StackCapture interface Table
// consumes.
func NewStackCapture(stack *shadowstack.Manager) StackCapture {
	return &stackCaptureAdapter{stack: stack}
}

// CurrentStackID returns the content-keyed id of the frame shape
// currently active on threadID (spec.md §3: the id is whatever the
// push/pop replay produces, the same key internal/reader assigns when
// reconstructing a capture from the wire).
func (a *stackCaptureAdapter) CurrentStackID(threadID model.ThreadID) model.StackID {
	return a.stack.CurrentStackID(threadID)
}
