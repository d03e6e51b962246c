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

	"github.com/ZaparooProject/go-st25r95/internal/frame"
)

// minTrailerFrame is the shortest anti-collision answer carrying UID, BCC
// and the three status bytes the chip appends
const minTrailerFrame = 8

// TagIdentifier is the first four UID bytes of a discovered tag, big-endian
type TagIdentifier uint32

// String returns the identifier as eight uppercase hex digits
func (id TagIdentifier) String() string {
	return fmt.Sprintf("%08X", uint32(id))
}

// DetectedTag describes a tag found by DetectTag
type DetectedTag struct {
	// UID holds the four identifier bytes ID was built from
	UID []byte
	// ATQA is the answer to the REQA
	ATQA []byte
	ID   TagIdentifier
	// BCC is the UID check byte, zero if the chip did not return one
	BCC byte
	// Collision is set when the chip saw more than one tag answer
	Collision bool
}

// UIDHex returns the UID as a hex string
func (t *DetectedTag) UIDHex() string {
	return fmt.Sprintf("%X", t.UID)
}

// DetectTag runs ISO14443-A discovery: REQA, then the cascade level 1
// anti-collision SELECT. ISO14443A must have been selected first, otherwise
// ErrProtocolNotSelected is returned without touching the transport.
//
// When no tag answers DetectTag returns nil, nil. A tag is absent when either
// step comes back empty or with the frame wait timeout code 0x87; the SELECT
// step is skipped when REQA already saw nothing.
func (d *Device) DetectTag(ctx context.Context) (*DetectedTag, error) {
	d.beginOp()
	tag, err := d.detectTag(ctx)
	return tag, d.endOp(err)
}

func (d *Device) detectTag(ctx context.Context) (*DetectedTag, error) {
	const op = "DetectTag"

	if d.state.Protocol != ProtocolISO14443A {
		return nil, fmt.Errorf("%s: %w (current: %v)", op, ErrProtocolNotSelected, d.state.Protocol)
	}

	atqa, found, err := d.sendRecv(ctx, op, reqAFrame)
	if err != nil || !found {
		return nil, err
	}

	data, found, err := d.sendRecv(ctx, op, antiCollisionFrame)
	if err != nil || !found {
		return nil, err
	}

	id, err := frame.UID32(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %d bytes of anti-collision data", op, ErrInvalidResponse, len(data))
	}

	tag := &DetectedTag{
		ID:   TagIdentifier(id),
		UID:  append([]byte(nil), data[:4]...),
		ATQA: append([]byte(nil), atqa[:min(len(atqa), 2)]...),
	}
	if len(data) > 4 {
		tag.BCC = data[4]
	}
	if len(data) >= minTrailerFrame {
		if _, trailer, ok := frame.SplitTrailer(data); ok {
			tag.Collision = trailer.Collision
		}
	}

	debugf("tag detected: %v (ATQA %X, collision %t)", tag.ID, tag.ATQA, tag.Collision)
	return tag, nil
}

// sendRecv sends one 14443-A frame through SendRecv and reads the answer.
// found is false when no tag replied.
func (d *Device) sendRecv(ctx context.Context, op string, payload []byte) (data []byte, found bool, err error) {
	if err := d.sendCommand(ctx, cmdSendRecv, payload); err != nil {
		return nil, false, err
	}
	if err := d.waitReady(ctx); err != nil {
		return nil, false, err
	}
	resp, err := d.receiveResponse(ctx)
	if err != nil {
		return nil, false, err
	}

	switch {
	case resp.Status == StatusFrameWaitTimeout:
		return nil, false, nil
	case !resp.Status.IsSuccess():
		return nil, false, NewStatusError(op, resp.Status)
	case len(resp.Data) == 0:
		return nil, false, nil
	}
	return resp.Data, true, nil
}
