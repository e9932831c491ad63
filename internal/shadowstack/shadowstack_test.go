// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shadowstack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bloomberg/memray-sub003/internal/model"
)

func TestPushPopDepth(t *testing.T) {
	m := NewManager()
	const tid = model.ThreadID(1)

	res := m.Push(tid, model.InterpretedFrame{CodeObjectID: 1, IsEntryFrame: true})
	require.Zero(t, res.FlushPop)
	require.Equal(t, 1, m.Depth(tid))

	m.Push(tid, model.InterpretedFrame{CodeObjectID: 2})
	require.Equal(t, 2, m.Depth(tid))

	m.Pop(tid)
	m.Pop(tid)
	require.Equal(t, 0, m.Depth(tid))

	require.Equal(t, uint32(2), m.Flush(tid))
	require.Equal(t, uint32(0), m.Flush(tid))
}

// TestPendingPopFlushedOnNextPush exercises the run-length collapse of
// several consecutive returns into the next push's flush (spec.md
// §4.E: "records a pop count when several returns occur before the
// next allocation" — the same collapse applies ahead of the next
// push).
func TestPendingPopFlushedOnNextPush(t *testing.T) {
	m := NewManager()
	const tid = model.ThreadID(7)

	m.Push(tid, model.InterpretedFrame{CodeObjectID: 1})
	m.Push(tid, model.InterpretedFrame{CodeObjectID: 2})
	m.Push(tid, model.InterpretedFrame{CodeObjectID: 3})
	m.Pop(tid)
	m.Pop(tid)

	res := m.Push(tid, model.InterpretedFrame{CodeObjectID: 4})
	require.Equal(t, uint32(2), res.FlushPop)
	require.Equal(t, 2, m.Depth(tid))
}

func TestPopBelowZeroIsNoop(t *testing.T) {
	m := NewManager()
	const tid = model.ThreadID(3)
	m.Pop(tid)
	require.Equal(t, 0, m.Depth(tid))
}

func TestSwitchContextSavesAndRestoresStack(t *testing.T) {
	m := NewManager()
	const tid = model.ThreadID(1)
	const ctxA, ctxB = ContextID(0), ContextID(9)

	m.Push(tid, model.InterpretedFrame{CodeObjectID: 1})
	m.Push(tid, model.InterpretedFrame{CodeObjectID: 2})
	require.Equal(t, 2, m.Depth(tid))

	m.SwitchContext(tid, ctxA, ctxB)
	require.Equal(t, 0, m.Depth(tid), "switching in a fresh context starts empty")

	m.Push(tid, model.InterpretedFrame{CodeObjectID: 3})
	require.Equal(t, 1, m.Depth(tid))

	m.SwitchContext(tid, ctxB, ctxA)
	require.Equal(t, 2, m.Depth(tid), "switching back restores the suspended stack")
}

func TestCurrentStackIDIsContentKeyedNotDepth(t *testing.T) {
	m := NewManager()
	const tidA, tidB = model.ThreadID(1), model.ThreadID(2)

	require.Zero(t, m.CurrentStackID(tidA), "an empty stack has the zero id")

	m.Push(tidA, model.InterpretedFrame{CodeObjectID: 1, Offset: 10})
	m.Push(tidB, model.InterpretedFrame{CodeObjectID: 99, Offset: 5})
	require.NotEqual(t, m.CurrentStackID(tidA), m.CurrentStackID(tidB),
		"same depth but different frame content must not collide")

	idA := m.CurrentStackID(tidA)
	m.Pop(tidA)
	m.Push(tidA, model.InterpretedFrame{CodeObjectID: 1, Offset: 10})
	require.Equal(t, idA, m.CurrentStackID(tidA), "the same shape seen again reuses its id")
}

func TestTeardownForgetsStack(t *testing.T) {
	m := NewManager()
	const tid = model.ThreadID(5)
	m.Push(tid, model.InterpretedFrame{CodeObjectID: 1})
	m.Pop(tid)

	m.Teardown(tid)
	require.Equal(t, 0, m.Depth(tid))
	require.Equal(t, uint32(0), m.Flush(tid))
}
