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
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-st25r95/internal/frame"
)

// carrierMHz is the 13.56 MHz carrier all chip timers count in
const carrierMHz = 13.56

// Field wait flags for FieldWait.Flags
const (
	FieldDisappear byte = 0x00
	FieldAppear    byte = 0x01
)

// FieldWait parameterizes a poll that waits on the external RF field.
// Flags selects appearance or disappearance; Prescaler and Timer set the
// chip-side timeout.
type FieldWait struct {
	Flags     byte
	Prescaler byte
	Timer     byte
}

// Duration returns the chip-side wait time, (Prescaler+1)*(Timer+1)/13.56 µs
func (w FieldWait) Duration() time.Duration {
	ticks := float64(int(w.Prescaler)+1) * float64(int(w.Timer)+1)
	return time.Duration(ticks / carrierMHz * float64(time.Microsecond))
}

func (w FieldWait) frame() []byte {
	return []byte{frame.ControlPoll, cmdPollField, w.Flags, w.Prescaler, w.Timer, 0x00, 0x00}
}

// WaitReady polls the chip until it signals a response can be read.
//
// Each attempt is one framed transaction: poll control byte out, flags byte
// in. Polling stops on the first flags byte with bit 0x08 set and nothing
// further is clocked. Attempts are PollInterval apart and bounded by
// ReadyTimeout; running out returns a *ReadyTimeoutError.
func (d *Device) WaitReady(ctx context.Context) error {
	d.beginOp()
	return d.endOp(d.waitReady(ctx))
}

// WaitField polls with the field-detect parameters in w until the chip
// reports bit 0x01. Each attempt writes seven bytes: the poll control byte,
// then 0x03, flags, prescaler, timer, 0x00, 0x00.
func (d *Device) WaitField(ctx context.Context, w FieldWait) error {
	d.beginOp()
	return d.endOp(d.pollUntil(ctx, "WaitField", w.frame(), frame.FlagFieldHit))
}

func (d *Device) waitReady(ctx context.Context) error {
	return d.pollUntil(ctx, "WaitReady", []byte{frame.ControlPoll}, frame.FlagCanRead)
}

// attemptBudget converts ReadyTimeout into a number of poll attempts
func (d *Device) attemptBudget() int {
	interval := d.config.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return int(d.config.ReadyTimeout/interval) + 1
}

func (d *Device) pollUntil(ctx context.Context, op string, out []byte, mask byte) error {
	attempts := d.attemptBudget()
	start := time.Now()

	var flags byte
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := d.framed(op, func() error {
			if err := d.write(op, out...); err != nil {
				return err
			}
			var rerr error
			flags, rerr = d.read(op)
			return rerr
		})
		if err != nil {
			return err
		}

		if flags&mask != 0 {
			if attempt > 1 {
				debugf("%s: ready after %d attempts (flags 0x%02X)", op, attempt, flags)
			}
			return nil
		}

		if attempt < attempts {
			if err := d.sleep(ctx, d.config.PollInterval); err != nil {
				return err
			}
		}
	}

	d.trace.RecordTimeout(fmt.Sprintf("%s: %d attempts, last flags 0x%02X", op, attempts, flags))
	return &ReadyTimeoutError{
		Op:        op,
		Attempts:  attempts,
		Elapsed:   time.Since(start),
		LastFlags: flags,
	}
}
