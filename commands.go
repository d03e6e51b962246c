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

import "time"

// ST25R95 command codes
const (
	cmdIDN            = 0x01
	cmdProtocolSelect = 0x02
	cmdPollField      = 0x03
	cmdSendRecv       = 0x04
	cmdIdle           = 0x07
)

// Protocol select payload codes
const (
	protoCodeISO14443A = 0x02
)

// ISO/IEC 14443-A frames sent through SendRecv. The last byte of each is the
// transmission flag byte (number of significant bits, CRC/parity options).
var (
	reqAFrame          = []byte{0x26, 0x07}
	antiCollisionFrame = []byte{0x93, 0x20, 0x08}
)

// calibrationFrame is written verbatim after the control byte during
// Initialize. It is an Idle command (0x07, 14 byte payload) holding the
// chip's tag-detector calibration settings.
var calibrationFrame = [16]byte{
	0x07, 0x0E, 0x03, 0xA1, 0x00, 0xB8, 0x01, 0x18,
	0x00, 0x01, 0x60, 0x60, 0x00, 0x00, 0x3F, 0x01,
}

// calibrationCommit reads back the calibration result
var calibrationCommit = [3]byte{0x02, 0x00, 0x00}

// Reset and polling timing
const (
	irqPulseWidth   = 1 * time.Millisecond
	irqSettleTime   = 20 * time.Millisecond
	softResetSettle = 1 * time.Millisecond

	// DefaultPollInterval is the delay between two ready-poll attempts.
	DefaultPollInterval = 15 * time.Millisecond
	// DefaultReadyTimeout bounds a single ready-poll.
	DefaultReadyTimeout = 1 * time.Second
)
