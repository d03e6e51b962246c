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

package frame

import (
	"encoding/binary"
	"errors"
)

// Errors returned by the pure helpers. The root package maps these onto its
// own typed errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds 255 bytes")
	ErrShortUID        = errors.New("anti-collision data shorter than 4 bytes")
)

// Encode builds the bytes clocked out for one command frame:
// send control byte, command code, payload length, payload.
func Encode(cmd byte, data []byte) ([]byte, error) {
	if len(data) > MaxPayloadLength {
		return nil, ErrPayloadTooLarge
	}
	out := make([]byte, 0, 3+len(data))
	out = append(out, ControlSend, cmd, byte(len(data)))
	out = append(out, data...)
	return out, nil
}

// DeclaredLength returns the payload length announced by a response header
// and the result code with any length bits removed.
//
// Long frames (more than 255 bytes) carry the two MSBs of the length in
// bits 6:5 of a 0x80 result code, so 0xA0, 0xC0 and 0xE0 are all "frame
// received" with a longer payload. Every other code is passed through.
func DeclaredLength(status, length byte) (int, byte) {
	if status&^longFrameMask == longFrameBaseCode {
		high := int(status&longFrameMask) << 3
		return high | int(length), longFrameBaseCode
	}
	return int(length), status
}

// ExceedsCapacity reports whether a declared length overruns the response buffer
func ExceedsCapacity(declared int) bool {
	return declared > ResponseCapacity
}

// UID32 assembles the first four anti-collision bytes big-endian
func UID32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrShortUID
	}
	return binary.BigEndian.Uint32(data[:4]), nil
}

// BCC is the ISO/IEC 14443-3 block check character of a 4-byte UID
func BCC(uid []byte) byte {
	var bcc byte
	for _, b := range uid {
		bcc ^= b
	}
	return bcc
}

// ISO/IEC 14443-A SendRecv responses end with three status bytes appended by
// the chip: flags, first collision byte index and first collision bit index.
const (
	trailerLength     = 3
	trailerCollision  = 0x80
	trailerCRCError   = 0x20
	trailerParityErr  = 0x10
	trailerSignifMask = 0x0F
)

// Trailer describes the three status bytes the chip appends to 14443-A frames
type Trailer struct {
	CollisionByte   byte
	CollisionBit    byte
	SignificantBits byte
	Collision       bool
	CRCError        bool
	ParityError     bool
}

// SplitTrailer separates 14443-A payload bytes from the appended trailer.
// Frames too short to hold a trailer are returned unchanged with ok=false.
func SplitTrailer(data []byte) (payload []byte, trailer Trailer, ok bool) {
	if len(data) < trailerLength {
		return data, Trailer{}, false
	}
	t := data[len(data)-trailerLength:]
	return data[:len(data)-trailerLength], Trailer{
		Collision:       t[0]&trailerCollision != 0,
		CRCError:        t[0]&trailerCRCError != 0,
		ParityError:     t[0]&trailerParityErr != 0,
		SignificantBits: t[0] & trailerSignifMask,
		CollisionByte:   t[1],
		CollisionBit:    t[2],
	}, true
}
