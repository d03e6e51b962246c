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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

// Identity is the chip's answer to the IDN command
type Identity struct {
	// Name is the device identification string, e.g. "NFC FS2JAST4"
	Name string
	// ROMCRC is the checksum of the chip's ROM code
	ROMCRC uint16
}

// String returns a human readable identity
func (i *Identity) String() string {
	return fmt.Sprintf("%s (ROM CRC 0x%04X)", i.Name, i.ROMCRC)
}

// IDN asks the chip to identify itself. It does not need a protocol to be
// selected and is the usual health check after Initialize.
func (d *Device) IDN(ctx context.Context) (*Identity, error) {
	d.beginOp()
	id, err := d.idn(ctx)
	return id, d.endOp(err)
}

func (d *Device) idn(ctx context.Context) (*Identity, error) {
	const op = "IDN"

	if err := d.sendCommand(ctx, cmdIDN, nil); err != nil {
		return nil, err
	}
	if err := d.waitReady(ctx); err != nil {
		return nil, err
	}
	resp, err := d.receiveResponse(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, NewStatusError(op, resp.Status)
	}

	return parseIdentity(resp.Data)
}

// parseIdentity splits an IDN answer into its NUL terminated name and the
// trailing big-endian ROM CRC
func parseIdentity(data []byte) (*Identity, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: IDN answer too short (%d bytes)", ErrInvalidResponse, len(data))
	}
	name := data[:len(data)-2]
	if i := bytes.IndexByte(name, 0x00); i >= 0 {
		name = name[:i]
	}
	return &Identity{
		Name:   string(name),
		ROMCRC: binary.BigEndian.Uint16(data[len(data)-2:]),
	}, nil
}
