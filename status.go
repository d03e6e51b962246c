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

import "fmt"

// StatusCode is the result code byte at the head of every ST25R95 response.
type StatusCode byte

// Result codes from the ST25R95 datasheet, section 5.
const (
	StatusOK               StatusCode = 0x00 // Command accepted
	StatusSOFError23       StatusCode = 0x63 // SOF error in high part (2 to 3 etu)
	StatusSOFError10       StatusCode = 0x65 // SOF error in low part (10 to 11 etu)
	StatusEGTError         StatusCode = 0x66 // Extended guard time error
	StatusTR1TooBig        StatusCode = 0x67 // TR1 sent by the card too long, reception stopped
	StatusTR1TooSmall      StatusCode = 0x68 // TR1 sent by the card too small
	StatusInternalError    StatusCode = 0x71 // Wrong frame format decoded
	StatusFrameReceived    StatusCode = 0x80 // Frame correctly received
	StatusInvalidCmdLength StatusCode = 0x82 // Invalid command length
	StatusInvalidProtocol  StatusCode = 0x83 // Invalid protocol
	StatusUserStop         StatusCode = 0x85 // Stopped by user (card mode only)
	StatusCommError        StatusCode = 0x86 // Hardware communication error
	StatusFrameWaitTimeout StatusCode = 0x87 // No valid reception before FWT
	StatusInvalidSOF       StatusCode = 0x88 // Invalid SOF
	StatusBufferOverflow   StatusCode = 0x89 // Too many bytes received, data still arriving
	StatusFramingError     StatusCode = 0x8A // Start bit 1 or stop bit 0
	StatusEGTTimeout       StatusCode = 0x8B // EGT time out
	StatusInvalidLength    StatusCode = 0x8C // Length below 3 (FeliCa)
	StatusCRCError         StatusCode = 0x8D // CRC error (FeliCa)
	StatusReceptionLost    StatusCode = 0x8E // Reception lost without EOF
	StatusNoField          StatusCode = 0x8F // No external field (listen mode)
	StatusResidualBits     StatusCode = 0x90 // Residual bits in last byte (ACK/NAK)
)

var statusMeanings = map[StatusCode]string{
	StatusOK:               "success",
	StatusSOFError23:       "SOF error in high part",
	StatusSOFError10:       "SOF error in low part",
	StatusEGTError:         "extended guard time error",
	StatusTR1TooBig:        "TR1 too big",
	StatusTR1TooSmall:      "TR1 too small",
	StatusInternalError:    "internal decode error",
	StatusFrameReceived:    "frame received",
	StatusInvalidCmdLength: "invalid command length",
	StatusInvalidProtocol:  "invalid protocol",
	StatusUserStop:         "stopped by user",
	StatusCommError:        "communication error",
	StatusFrameWaitTimeout: "frame wait timeout",
	StatusInvalidSOF:       "invalid SOF",
	StatusBufferOverflow:   "buffer overflow",
	StatusFramingError:     "framing error",
	StatusEGTTimeout:       "EGT timeout",
	StatusInvalidLength:    "invalid length",
	StatusCRCError:         "CRC error",
	StatusReceptionLost:    "reception lost",
	StatusNoField:          "no field present",
	StatusResidualBits:     "residual bits",
}

// Known reports whether the code is part of the documented taxonomy
func (c StatusCode) Known() bool {
	_, ok := statusMeanings[c]
	return ok
}

// Meaning returns a short description, or "unknown status" for undocumented codes
func (c StatusCode) Meaning() string {
	if m, ok := statusMeanings[c]; ok {
		return m
	}
	return "unknown status"
}

func (c StatusCode) String() string {
	return fmt.Sprintf("0x%02X (%s)", byte(c), c.Meaning())
}

// IsSuccess reports whether the code accompanies a usable response.
// 0x90 is a data frame whose last byte is incomplete, which is how 4-bit
// ACK/NAK answers arrive.
func (c StatusCode) IsSuccess() bool {
	switch c {
	case StatusOK, StatusFrameReceived, StatusResidualBits:
		return true
	default:
		return false
	}
}
