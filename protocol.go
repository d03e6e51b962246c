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
	"math"
	"time"
)

// Protocol is the air interface the chip is configured for
type Protocol uint8

const (
	// ProtocolNone means no protocol has been selected since Initialize
	ProtocolNone Protocol = iota
	// ProtocolISO14443A is ISO/IEC 14443 type A
	ProtocolISO14443A
)

// String returns a string representation of the protocol
func (p Protocol) String() string {
	switch p {
	case ProtocolNone:
		return "None"
	case ProtocolISO14443A:
		return "ISO14443A"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// Parameter limits for the frame delay time fields
const (
	maxPP = 0x0E
	maxDD = 0x7F

	rateRFU = 0x03
)

// ProtocolParams holds the optional ISO14443A protocol select parameters.
// The zero value selects the default data rate and frame delay time.
type ProtocolParams struct {
	// Explicit sends DataRate, PP, MM and DD instead of the defaults
	Explicit bool
	// DataRate packs the transmit rate in bits 7:6 and receive rate in bits 5:4
	DataRate byte
	PP       byte
	MM       byte
	DD       byte
}

// FDT returns the frame delay time, 2^PP*(MM+1)*(DD+128)*32/13.56 µs.
// It is zero for default parameters.
func (p ProtocolParams) FDT() time.Duration {
	if !p.Explicit {
		return 0
	}
	ticks := math.Exp2(float64(p.PP)) * float64(int(p.MM)+1) * float64(int(p.DD)+128) * 32
	return time.Duration(ticks / carrierMHz * float64(time.Microsecond))
}

// Validate checks the explicit parameters against the chip's limits
func (p ProtocolParams) Validate() error {
	if !p.Explicit {
		return nil
	}
	if p.PP > maxPP {
		return fmt.Errorf("%w: PP 0x%02X exceeds 0x%02X", ErrInvalidParameter, p.PP, maxPP)
	}
	if p.DD > maxDD {
		return fmt.Errorf("%w: DD 0x%02X exceeds 0x%02X", ErrInvalidParameter, p.DD, maxDD)
	}
	if p.DataRate>>6 == rateRFU || (p.DataRate>>4)&0x03 == rateRFU {
		return fmt.Errorf("%w: data rate 0x%02X uses a reserved code", ErrInvalidParameter, p.DataRate)
	}
	return nil
}

func (p ProtocolParams) payload() []byte {
	if !p.Explicit {
		return []byte{protoCodeISO14443A, 0x00}
	}
	return []byte{protoCodeISO14443A, p.DataRate, p.PP, p.MM, p.DD}
}

// SelectProtocol selects the air interface. Only ProtocolISO14443A is
// supported.
func (d *Device) SelectProtocol(ctx context.Context, proto Protocol, params ProtocolParams) error {
	if proto != ProtocolISO14443A {
		return fmt.Errorf("%w: %v", ErrUnsupportedProtocol, proto)
	}
	return d.SelectISO14443A(ctx, params)
}

// SelectISO14443A configures the chip for ISO/IEC 14443-A.
//
// The chip's answer is read back and must be 0x00; any other result code is
// returned as a *StatusError and leaves no protocol selected. With
// WithLegacyProtocolSelect the answer is not read and the protocol counts as
// selected once the command has been sent.
func (d *Device) SelectISO14443A(ctx context.Context, params ProtocolParams) error {
	d.beginOp()
	return d.endOp(d.selectISO14443A(ctx, params))
}

func (d *Device) selectISO14443A(ctx context.Context, params ProtocolParams) error {
	const op = "SelectISO14443A"

	if err := params.Validate(); err != nil {
		return err
	}

	d.state.Protocol = ProtocolNone
	if err := d.sendCommand(ctx, cmdProtocolSelect, params.payload()); err != nil {
		return err
	}

	if d.config.LegacyProtocolSelect {
		d.state.Protocol = ProtocolISO14443A
		return nil
	}

	if err := d.waitReady(ctx); err != nil {
		return err
	}
	resp, err := d.receiveResponse(ctx)
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return NewStatusError(op, resp.Status)
	}

	d.state.Protocol = ProtocolISO14443A
	debugf("protocol selected: %v (FDT %v)", ProtocolISO14443A, params.FDT())
	return nil
}
