// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/bloomberg/memray-sub003/internal/model"
)

// ErrTruncated is the recoverable end-of-stream kind spec.md §7 names
// for a short/partial read mid-record.
var ErrTruncated = errors.New("codec: truncated record")

// Decoder decodes a record stream produced by Writer. It maintains
// the "current thread id" implied by ThreadSwitch records so callers
// never see that record type directly (spec.md §4.C).
type Decoder struct {
	r               *bufio.Reader
	currentThreadID model.ThreadID
	lastAddr        map[model.ThreadID]uint64
	decoded         int
	headerSeen      bool
	nativeTraces    bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024), lastAddr: make(map[model.ThreadID]uint64)}
}

// Decoded returns the number of records successfully decoded so far,
// used to report counts alongside ErrTruncated (spec.md §7).
func (d *Decoder) Decoded() int { return d.decoded }

// ReadHeader must be called first; it validates the magic and version
// and returns the capture header.
func (d *Decoder) ReadHeader() (model.CaptureHeader, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(d.r, magic); err != nil {
		return model.CaptureHeader{}, fmt.Errorf("codec: read magic: %w", err)
	}
	if string(magic) != Magic {
		return model.CaptureHeader{}, fmt.Errorf("codec: bad magic %q", magic)
	}
	version, err := d.r.ReadByte()
	if err != nil {
		return model.CaptureHeader{}, err
	}
	if version != FormatVersion {
		return model.CaptureHeader{}, fmt.Errorf("codec: unsupported version %d", version)
	}
	k, err := d.r.ReadByte()
	if err != nil {
		return model.CaptureHeader{}, err
	}
	if kind(k) != kindHeader {
		return model.CaptureHeader{}, fmt.Errorf("codec: expected header record, got kind %d", k)
	}
	h, err := d.readHeaderBody()
	if err == nil {
		d.headerSeen = true
		d.nativeTraces = h.NativeTracesEnabled
		d.decoded++
	}
	return h, err
}

func (d *Decoder) readHeaderBody() (model.CaptureHeader, error) {
	var h model.CaptureHeader
	start, err := readVarint(d.r)
	if err != nil {
		return h, err
	}
	h.StartTimeUnixMs = start

	n, err := readUvarint(d.r)
	if err != nil {
		return h, err
	}
	h.CommandLine = make([]string, n)
	for i := range h.CommandLine {
		s, err := d.readString()
		if err != nil {
			return h, err
		}
		h.CommandLine[i] = s
	}

	pid, err := readUvarint(d.r)
	if err != nil {
		return h, err
	}
	h.Pid = int(pid)

	ak, err := d.readString()
	if err != nil {
		return h, err
	}
	h.AllocatorKind = ak

	nativeB, err := d.r.ReadByte()
	if err != nil {
		return h, err
	}
	h.NativeTracesEnabled = nativeB != 0

	poolB, err := d.r.ReadByte()
	if err != nil {
		return h, err
	}
	h.TracePoolAllocator = poolB != 0

	mainTid, err := readUvarint(d.r)
	if err != nil {
		return h, err
	}
	h.MainThreadID = model.ThreadID(mainTid)

	skip, err := readUvarint(d.r)
	if err != nil {
		return h, err
	}
	h.SkipFramesMainThread = int(skip)

	aggB, err := d.r.ReadByte()
	if err != nil {
		return h, err
	}
	h.AggregatedFormat = aggB != 0

	stats, err := d.readStats()
	if err != nil {
		return h, err
	}
	h.Stats = stats
	return h, nil
}

func (d *Decoder) readStats() (model.Stats, error) {
	var s model.Stats
	vals := make([]uint64, 7)
	for i := range vals {
		v, err := readUvarint(d.r)
		if err != nil {
			return s, err
		}
		vals[i] = v
	}
	s.AllocationRecords = vals[0]
	s.DeallocationRecords = vals[1]
	s.FramePushRecords = vals[2]
	s.FramePopRecords = vals[3]
	s.BytesTracked = vals[4]
	s.RecordsWritten = vals[5]
	s.BytesWritten = vals[6]
	return s, nil
}

func (d *Decoder) readString() (string, error) {
	n, err := readUvarint(d.r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return "", ErrTruncated
		}
		return "", err
	}
	return string(buf), nil
}

// Next decodes the next record. It returns io.EOF at a clean stream
// end, and ErrTruncated if the stream ends mid-record (spec.md §7).
func (d *Decoder) Next() (Record, error) {
	for {
		kb, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
		rec, err := d.decodeBody(kind(kb))
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrTruncated
			}
			return nil, err
		}
		if rec == nil {
			// A ThreadSwitch record: consumed internally, loop for
			// the actual next record (spec.md §4.C).
			continue
		}
		d.decoded++
		return rec, nil
	}
}

func (d *Decoder) decodeBody(k kind) (Record, error) {
	switch k {
	case kindThreadSwitch:
		tid, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		d.currentThreadID = model.ThreadID(tid)
		return nil, nil

	case kindAllocation:
		kb, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		akind := model.AllocatorKind(kb)
		delta, err := readVarint(d.r)
		if err != nil {
			return nil, err
		}
		addr := uint64(int64(d.lastAddr[d.currentThreadID]) + delta)
		d.lastAddr[d.currentThreadID] = addr
		ev := model.AllocationEvent{ThreadID: d.currentThreadID, Kind: akind, Address: addr}
		if !akind.IsDeallocator() {
			size, err := readUvarint(d.r)
			if err != nil {
				return nil, err
			}
			ev.Size = size
			if d.nativeTraces {
				idx, err := readUvarint(d.r)
				if err != nil {
					return nil, err
				}
				ev.NativeIndex = model.NativeFrameIndex(idx)
			}
		}
		return AllocationRecord{ThreadID: d.currentThreadID, Event: ev}, nil

	case kindFramePush:
		coID, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		off, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		entryB, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		return FramePushRecord{
			ThreadID: d.currentThreadID,
			Frame: model.InterpretedFrame{
				CodeObjectID: model.CodeObjectID(coID),
				Offset:       uint32(off),
				IsEntryFrame: entryB != 0,
			},
		}, nil

	case kindFramePop:
		count, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		return FramePopRecord{ThreadID: d.currentThreadID, Count: uint32(count)}, nil

	case kindCodeObject:
		id, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		fn, err := d.readString()
		if err != nil {
			return nil, err
		}
		file, err := d.readString()
		if err != nil {
			return nil, err
		}
		firstLine, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		n, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		entries := make([]model.LineEntry, n)
		for i := range entries {
			off, err := readUvarint(d.r)
			if err != nil {
				return nil, err
			}
			line, err := readUvarint(d.r)
			if err != nil {
				return nil, err
			}
			entries[i] = model.LineEntry{Offset: uint32(off), Line: uint32(line)}
		}
		return CodeObjectRecord{Object: model.CodeObject{
			ID:        model.CodeObjectID(id),
			Function:  fn,
			Filename:  file,
			FirstLine: uint32(firstLine),
			Lines:     model.NewLineTable(entries),
		}}, nil

	case kindNativeFrame:
		idx, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		ip, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		gen, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		return NativeFrameRecord{
			ThreadID: d.currentThreadID,
			Index:    model.NativeFrameIndex(idx),
			Frame:    model.NativeFrame{IP: ip, SegmentGeneration: model.SegmentGeneration(gen)},
		}, nil

	case kindImageSegments:
		gen, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		base, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		n, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		ranges := make([]model.AddressRange, n)
		for i := range ranges {
			va, err := readUvarint(d.r)
			if err != nil {
				return nil, err
			}
			sz, err := readUvarint(d.r)
			if err != nil {
				return nil, err
			}
			ranges[i] = model.AddressRange{VirtualAddress: va, Size: sz}
		}
		return ImageSegmentsRecord{
			Generation: model.SegmentGeneration(gen),
			Segment:    model.ImageSegment{Filename: name, Base: base, Ranges: ranges},
		}, nil

	case kindMemory:
		ms, err := readVarint(d.r)
		if err != nil {
			return nil, err
		}
		rss, err := readUvarint(d.r)
		if err != nil {
			return nil, err
		}
		return MemoryRecordEvent{Record: model.MemoryRecord{MsSinceEpoch: ms, RSSBytes: rss}}, nil

	case kindThreadName:
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		return ThreadNameRecord{ThreadID: d.currentThreadID, Name: name}, nil

	case kindTrailer:
		stats, err := d.readStats()
		if err != nil {
			return nil, err
		}
		return TrailerRecord{Stats: stats}, nil

	case kindCounters:
		chain1, err := d.readString()
		if err != nil {
			return nil, err
		}
		chain2, err := d.readString()
		if err != nil {
			return nil, err
		}
		vals := make([]uint64, 4)
		for i := range vals {
			v, err := readUvarint(d.r)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return CounterRecord{
			Key:               CounterKey{CodeObjectChain: chain1, NativeFrameChain: chain2},
			AllocationsAtHWM:  vals[0],
			BytesAtHWM:        vals[1],
			LeakedAllocations: vals[2],
			LeakedBytes:       vals[3],
		}, nil

	default:
		return nil, fmt.Errorf("codec: unknown record kind %d", k)
	}
}
