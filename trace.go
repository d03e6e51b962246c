// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package st25r95

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TraceDirection says which way the bytes of a TraceEntry went
type TraceDirection string

const (
	// TraceTX is a transaction clocked out to the chip
	TraceTX TraceDirection = ">"
	// TraceRX is response bytes clocked in from the chip
	TraceRX TraceDirection = "<"
	// TraceEvent marks something the driver concluded, such as a ready-poll
	// running out of attempts
	TraceEvent TraceDirection = "!"
)

// TraceEntry is one framed transaction, or one half of it
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats the entry as "15:04:05.000 > 00 01 00 (note)"
func (e TraceEntry) String() string {
	line := fmt.Sprintf("%s %s %s", e.Timestamp.Format("15:04:05.000"), e.Direction, formatHexBytes(e.Data))
	if e.Note != "" {
		line += " (" + e.Note + ")"
	}
	return line
}

// TraceableError carries the wire trace of the operation that failed:
//
//	if te := st25r95.GetTrace(err); te != nil {
//	    log.Printf("wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace renders the trace one entry per line, oldest first
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		_, _ = fmt.Fprintf(&sb, "  %s %s", entry.Direction, formatHexBytes(entry.Data))
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, " (%s)", entry.Note)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// formatHexBytes renders at most 32 bytes as spaced hex
func formatHexBytes(data []byte) string {
	const shown = 32
	if len(data) == 0 {
		return "(empty)"
	}
	out := fmt.Sprintf("% X", data[:min(len(data), shown)])
	if len(data) > shown {
		out += fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return out
}

// TraceBuffer is a fixed-size ring of the transactions of the operation in
// progress. Once full, each new entry overwrites the oldest.
type TraceBuffer struct {
	transport string
	port      string
	ring      []TraceEntry
	next      int
	full      bool
}

// NewTraceBuffer creates a trace buffer holding size entries (16 if size is
// not positive)
func NewTraceBuffer(transport, port string, size int) *TraceBuffer {
	if size <= 0 {
		size = 16
	}
	return &TraceBuffer{
		transport: transport,
		port:      port,
		ring:      make([]TraceEntry, size),
	}
}

// RecordTX records bytes sent to the chip
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records bytes received from the chip
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// RecordTimeout records a ready-poll that ran out of attempts
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.record(TraceEvent, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	tb.ring[tb.next] = TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	}
	tb.next = (tb.next + 1) % len(tb.ring)
	if tb.next == 0 {
		tb.full = true
	}
}

// Len returns the number of entries held
func (tb *TraceBuffer) Len() int {
	if tb.full {
		return len(tb.ring)
	}
	return tb.next
}

// Entries returns the held entries, oldest first
func (tb *TraceBuffer) Entries() []TraceEntry {
	if !tb.full {
		return append([]TraceEntry(nil), tb.ring[:tb.next]...)
	}
	out := make([]TraceEntry, 0, len(tb.ring))
	out = append(out, tb.ring[tb.next:]...)
	return append(out, tb.ring[:tb.next]...)
}

// WrapError attaches the current entries to err. nil stays nil, and an error
// that already carries a trace keeps it.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil || HasTrace(err) {
		return err
	}
	return &TraceableError{
		Err:       err,
		Transport: tb.transport,
		Port:      tb.port,
		Trace:     tb.Entries(),
	}
}

// Clear empties the buffer
func (tb *TraceBuffer) Clear() {
	clear(tb.ring)
	tb.next = 0
	tb.full = false
}

// HasTrace reports whether err carries a wire trace
func HasTrace(err error) bool {
	var te *TraceableError
	return errors.As(err, &te)
}

// GetTrace returns the wire trace carried by err, or nil
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
