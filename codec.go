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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-st25r95/internal/frame"
)

// CommandFrame is one command sent to the chip
type CommandFrame struct {
	Data    []byte
	Command byte
}

// ResponseFrame is one response read from the chip
type ResponseFrame struct {
	Data   []byte
	Status StatusCode
}

// Err returns a StatusError if the frame carries a non-success result code
func (r ResponseFrame) Err(op string) error {
	if r.Status.IsSuccess() {
		return nil
	}
	return NewStatusError(op, r.Status)
}

// SendCommand frames and sends one command: control byte 0x00, command
// code, payload length, payload. Payloads over 255 bytes are rejected
// before any I/O.
func (d *Device) SendCommand(ctx context.Context, cmd byte, data []byte) error {
	d.beginOp()
	return d.endOp(d.sendCommand(ctx, cmd, data))
}

// Send is SendCommand for a CommandFrame
func (d *Device) Send(ctx context.Context, f CommandFrame) error {
	return d.SendCommand(ctx, f.Command, f.Data)
}

// ReceiveResponse reads one response frame: control byte 0x02, then result
// code, length and that many data bytes. The frame replaces the device's
// last response. Result codes 0xA0, 0xC0 and 0xE0 carry length bits 9:8,
// so more bytes than the length byte states may be read and Status reports
// 0x80. A declared length beyond the 512 byte buffer is drained from the
// chip and reported as an OversizedFrameError.
func (d *Device) ReceiveResponse(ctx context.Context) (ResponseFrame, error) {
	d.beginOp()
	resp, err := d.receiveResponse(ctx)
	return resp, d.endOp(err)
}

func (d *Device) sendCommand(ctx context.Context, cmd byte, data []byte) error {
	const op = "SendCommand"

	out, err := frame.Encode(cmd, data)
	if err != nil {
		return fmt.Errorf("%s: %w (%d bytes)", op, ErrPayloadTooLarge, len(data))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.trace.RecordTX(out, fmt.Sprintf("Cmd 0x%02X", cmd))
	debugf("TX cmd=0x%02X [%s]", cmd, formatHexBytes(data))

	return d.framed(op, func() error {
		return d.write(op, out...)
	})
}

func (d *Device) receiveResponse(ctx context.Context) (ResponseFrame, error) {
	const op = "ReceiveResponse"

	if err := ctx.Err(); err != nil {
		return ResponseFrame{}, err
	}

	var (
		resp     ResponseFrame
		declared int
		raw      []byte
	)
	err := d.framed(op, func() error {
		if err := d.write(op, frame.ControlRead); err != nil {
			return err
		}
		status, err := d.read(op)
		if err != nil {
			return err
		}
		length, err := d.read(op)
		if err != nil {
			return err
		}
		raw = append(raw, status, length)

		var code byte
		declared, code = frame.DeclaredLength(status, length)
		keep := min(declared, frame.ResponseCapacity)
		data := make([]byte, 0, keep)
		for i := range declared {
			b, err := d.read(op)
			if err != nil {
				return err
			}
			if i < keep {
				data = append(data, b)
			}
		}
		raw = append(raw, data...)
		resp = ResponseFrame{Status: StatusCode(code), Data: data}
		return nil
	})
	if err != nil {
		return ResponseFrame{}, err
	}

	d.trace.RecordRX(raw, "Response "+resp.Status.Meaning())
	debugf("RX status=%s len=%d [%s]", resp.Status, declared, formatHexBytes(resp.Data))

	if frame.ExceedsCapacity(declared) {
		d.state.LastResponse = ResponseFrame{Status: resp.Status}
		return ResponseFrame{}, &OversizedFrameError{
			Declared: declared,
			Capacity: frame.ResponseCapacity,
			Status:   resp.Status,
		}
	}

	d.state.LastResponse = resp
	return resp, nil
}

// framed runs fn between Select and Deselect. The framing signal is always
// released, even when fn fails.
func (d *Device) framed(op string, fn func() error) (err error) {
	if err := d.transport.Select(); err != nil {
		return d.transportErr(err, func(cause error) error {
			return NewFramingError(op, d.trace.port, cause)
		})
	}
	defer func() {
		if derr := d.transport.Deselect(); derr != nil && err == nil {
			err = d.transportErr(derr, func(cause error) error {
				return NewFramingError(op, d.trace.port, cause)
			})
		}
	}()
	return fn()
}

func (d *Device) write(op string, data ...byte) error {
	for _, b := range data {
		if err := d.transport.WriteByte(b); err != nil {
			return d.transportErr(err, func(cause error) error {
				return NewTransportWriteError(op, d.trace.port, cause)
			})
		}
	}
	return nil
}

func (d *Device) read(op string) (byte, error) {
	b, err := d.transport.ReadByte()
	if err != nil {
		return 0, d.transportErr(err, func(cause error) error {
			return NewTransportReadError(op, d.trace.port, cause)
		})
	}
	return b, nil
}

// transportErr passes TransportErrors from the link through untouched and
// wraps anything else with wrap
func (*Device) transportErr(err error, wrap func(cause error) error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return wrap(err)
}
