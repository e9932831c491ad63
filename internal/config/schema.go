// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema validates the `run` verb's JSON config file (spec.md
// §6): sink target, native-trace toggles, fork following, the memory
// sampler interval, and aggregated-format selection.
var configSchema = `
	{
  "type": "object",
  "properties": {
    "sink": {
      "description": "Where captured records go: a file path, a TCP endpoint, or discarded entirely.",
      "type": "string",
      "enum": ["file", "socket", "null"]
    },
    "filePath": {
      "description": "Capture file path, required when sink is 'file'.",
      "type": "string"
    },
    "socketAddr": {
      "description": "TCP address of the live viewer to connect to, required when sink is 'socket'.",
      "type": "string"
    },
    "nativeTraces": {
      "description": "Capture native (C extension) frames in addition to interpreted frames.",
      "type": "boolean"
    },
    "tracePoolAllocator": {
      "description": "Trace the host interpreter's internal pool allocator instead of treating it as opaque.",
      "type": "boolean"
    },
    "followFork": {
      "description": "Re-install tracking in forked child processes.",
      "type": "boolean"
    },
    "memorySampleIntervalMs": {
      "description": "Interval in milliseconds between RSS samples; 0 disables sampling.",
      "type": "integer",
      "minimum": 0
    },
    "aggregatedFormat": {
      "description": "Write the pre-aggregated capture format instead of the raw event stream.",
      "type": "boolean"
    },
    "compress": {
      "description": "Compress the capture file on close.",
      "type": "boolean"
    }
  },
  "additionalProperties": false
	}`
