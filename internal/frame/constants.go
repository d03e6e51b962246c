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

// Package frame holds the ST25R95 SPI wire format: control bytes, frame
// encoding and response length decoding. It has no I/O of its own.
package frame

// SPI control bytes sent as the first byte of every framed transaction
const (
	ControlSend  = 0x00 // Host sends a command frame
	ControlReset = 0x01 // Soft reset of the SPI interface
	ControlRead  = 0x02 // Host reads a response frame
	ControlPoll  = 0x03 // Host polls the flags register
)

// Poll flag bits returned while polling
const (
	FlagCanRead  = 0x08 // Response data is ready to be read
	FlagCanSend  = 0x04 // Chip can accept a command
	FlagFieldHit = 0x01 // Field event seen (WaitField mode)
)

// Frame size limits
const (
	MaxPayloadLength  = 255 // Largest payload a single length byte can describe
	ResponseCapacity  = 512 // Fixed response buffer capacity
	longFrameMask     = 0x60
	longFrameBaseCode = 0x80
)

// DummyByte is clocked out while reading from the chip
const DummyByte = 0x00
