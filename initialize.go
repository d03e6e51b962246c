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
	"time"

	"github.com/ZaparooProject/go-st25r95/internal/frame"
	"periph.io/x/conn/v3/gpio"
)

// Initialize resets and calibrates the chip. It must run once per power-up
// before any other operation.
//
// The sequence is fixed: configure the bus, pulse IRQ_IN, soft reset the
// SPI interface, pulse IRQ_IN again, write the calibration table and read
// the calibration result back. Chip state is cleared, so a protocol has to
// be selected again afterwards. Only transport faults are returned.
func (d *Device) Initialize(ctx context.Context) error {
	d.beginOp()
	return d.endOp(d.initialize(ctx))
}

func (d *Device) initialize(ctx context.Context) error {
	const op = "Initialize"

	if err := d.transport.Configure(d.config.Frequency, d.config.Mode, wordSize); err != nil {
		return d.transportErr(err, func(cause error) error {
			return NewConfigureError(op, d.trace.port, cause)
		})
	}
	debugf("bus configured: %v, mode %v", d.config.Frequency, d.config.Mode)

	d.state = ChipState{}

	if err := d.pulseIRQIn(ctx, op); err != nil {
		return err
	}

	d.trace.RecordTX([]byte{frame.ControlReset}, "Soft reset")
	if err := d.framed(op, func() error {
		return d.write(op, frame.ControlReset)
	}); err != nil {
		return err
	}
	if err := d.sleep(ctx, softResetSettle); err != nil {
		return err
	}

	if err := d.pulseIRQIn(ctx, op); err != nil {
		return err
	}

	d.trace.RecordTX(calibrationFrame[:], "Calibration")
	if err := d.framed(op, func() error {
		if err := d.write(op, frame.ControlSend); err != nil {
			return err
		}
		return d.write(op, calibrationFrame[:]...)
	}); err != nil {
		return err
	}

	d.trace.RecordTX(calibrationCommit[:], "Calibration commit")
	if err := d.framed(op, func() error {
		return d.write(op, calibrationCommit[:]...)
	}); err != nil {
		return err
	}

	debugln("chip initialized")
	return nil
}

// pulseIRQIn drives IRQ_IN high, low, high and lets the chip settle
func (d *Device) pulseIRQIn(ctx context.Context, op string) error {
	steps := []struct {
		level gpio.Level
		hold  time.Duration
	}{
		{gpio.High, irqPulseWidth},
		{gpio.Low, irqPulseWidth},
		{gpio.High, irqSettleTime},
	}
	for _, step := range steps {
		if err := d.transport.SetIRQIn(step.level); err != nil {
			return d.transportErr(err, func(cause error) error {
				return NewAuxLineError(op, d.trace.port, cause)
			})
		}
		if err := d.sleep(ctx, step.hold); err != nil {
			return err
		}
	}
	return nil
}
