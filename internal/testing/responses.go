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

package testing

import "encoding/binary"

// BuildIDNResponse builds IDN answer data: NUL terminated name, ROM CRC
func BuildIDNResponse(name string, crc uint16) []byte {
	out := make([]byte, 0, len(name)+3)
	out = append(out, name...)
	out = append(out, 0x00)
	return binary.BigEndian.AppendUint16(out, crc)
}

// BuildATQAResponse builds REQA answer data: ATQA plus the three status
// bytes the chip appends (7 significant bits in the last byte)
func BuildATQAResponse(atqa [2]byte) []byte {
	return []byte{atqa[0], atqa[1], 0x28, 0x00, 0x00}
}

// BuildAntiCollisionResponse builds cascade level 1 answer data: UID, BCC,
// then the three status bytes. With collision set the first status byte
// carries the collision flag.
func BuildAntiCollisionResponse(uid []byte, collision bool) []byte {
	out := make([]byte, 0, len(uid)+4)
	out = append(out, uid...)
	out = append(out, BCC(uid))
	flags := byte(0x08)
	if collision {
		flags |= trailerCollisionFlag
	}
	return append(out, flags, 0x00, 0x00)
}

// BCC is the XOR of the UID bytes
func BCC(uid []byte) byte {
	var bcc byte
	for _, b := range uid {
		bcc ^= b
	}
	return bcc
}
