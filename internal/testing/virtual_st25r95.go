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

// Package testing provides test utilities, chiefly a byte-level ST25R95
// simulator.
//
// VirtualST25R95 implements st25r95.Transport. It decodes the SPI control
// byte that opens every framed transaction (send, reset, read, poll), runs
// the command when the frame is released, and answers reads and polls the
// way the chip does. An ISO14443-A tag can be placed in or removed from its
// field at any time.
package testing

import (
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-st25r95"
	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// SPI control bytes
const (
	ctrlSend  = 0x00
	ctrlReset = 0x01
	ctrlRead  = 0x02
	ctrlPoll  = 0x03
)

// Command codes
const (
	cmdIDN            = 0x01
	cmdProtocolSelect = 0x02
	cmdPollField      = 0x03
	cmdSendRecv       = 0x04
	cmdIdle           = 0x07
)

// Result codes
const (
	statusOK             = 0x00
	statusFrameOK        = 0x80
	statusInvalidCmdLen  = 0x82
	statusInvalidProto   = 0x83
	statusFrameWaitTOut  = 0x87
	flagCanRead          = 0x08
	flagCanSend          = 0x04
	flagFieldEvent       = 0x01
	protoISO14443A       = 0x02
	trailerCollisionFlag = 0x80
)

// DefaultIDN is the identification string the simulator reports
const DefaultIDN = "NFC FS2JAST4"

// DefaultROMCRC is the ROM CRC the simulator reports
const DefaultROMCRC uint16 = 0x2A95

type mode int

const (
	modeIdle mode = iota
	modeSend
	modeReset
	modeRead
	modePoll
)

// VirtualTag is an ISO14443-A tag in the simulated field
type VirtualTag struct {
	UID  []byte
	ATQA [2]byte
}

// NewVirtualTag creates a tag with a 4 byte UID and a typical single size ATQA
func NewVirtualTag(uid ...byte) *VirtualTag {
	return &VirtualTag{UID: append([]byte(nil), uid...), ATQA: [2]byte{0x44, 0x00}}
}

// CommandLogEntry is one command frame the simulator executed
type CommandLogEntry struct {
	Data []byte
	Cmd  byte
}

// VirtualST25R95 simulates an ST25R95 behind its SPI interface
type VirtualST25R95 struct {
	writeErr  error
	tag       *VirtualTag
	statusFor map[byte]byte
	pending   []byte
	inbound   []byte
	commands  []CommandLogEntry
	irqLevels []gpio.Level
	configs   []st25r95.BusConfig
	readPos   int
	busyPolls int
	busyLeft  int
	mode      mode
	mu        syncutil.Mutex
	protocol  byte
	selected  bool
	closed    bool
	fieldOn   bool
	collision bool
	resets    int
}

// NewVirtualST25R95 creates a simulator with no tag in the field
func NewVirtualST25R95() *VirtualST25R95 {
	return &VirtualST25R95{statusFor: make(map[byte]byte)}
}

// Tag management

// PlaceTag puts tag in the field, replacing any other
func (v *VirtualST25R95) PlaceTag(tag *VirtualTag) {
	v.mu.Lock()
	v.tag = tag
	v.mu.Unlock()
}

// RemoveTag empties the field
func (v *VirtualST25R95) RemoveTag() {
	v.mu.Lock()
	v.tag = nil
	v.mu.Unlock()
}

// SetCollision makes anti-collision answers report a bit collision
func (v *VirtualST25R95) SetCollision(on bool) {
	v.mu.Lock()
	v.collision = on
	v.mu.Unlock()
}

// SetExternalField sets whether an external RF field is present, as seen by
// field-wait polls
func (v *VirtualST25R95) SetExternalField(on bool) {
	v.mu.Lock()
	v.fieldOn = on
	v.mu.Unlock()
}

// Behavior and fault injection

// SetBusyPolls makes the chip report not-ready for n polls after each command
func (v *VirtualST25R95) SetBusyPolls(n int) {
	v.mu.Lock()
	v.busyPolls = n
	v.mu.Unlock()
}

// SetStatus forces the result code for a command code. The response carries
// no data. Use ClearStatus to restore normal behavior.
func (v *VirtualST25R95) SetStatus(cmd, status byte) {
	v.mu.Lock()
	v.statusFor[cmd] = status
	v.mu.Unlock()
}

// ClearStatus removes a forced result code
func (v *VirtualST25R95) ClearStatus(cmd byte) {
	v.mu.Lock()
	delete(v.statusFor, cmd)
	v.mu.Unlock()
}

// SetWriteError makes every WriteByte fail with err (nil clears it)
func (v *VirtualST25R95) SetWriteError(err error) {
	v.mu.Lock()
	v.writeErr = err
	v.mu.Unlock()
}

// Inspection

// Commands returns the command frames executed so far
func (v *VirtualST25R95) Commands() []CommandLogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]CommandLogEntry, len(v.commands))
	copy(out, v.commands)
	return out
}

// CommandCount returns how often cmd was executed
func (v *VirtualST25R95) CommandCount(cmd byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.commands {
		if c.Cmd == cmd {
			n++
		}
	}
	return n
}

// ProtocolSelected reports whether ISO14443-A is active on the chip
func (v *VirtualST25R95) ProtocolSelected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.protocol == protoISO14443A
}

// Resets returns how many SPI soft resets were received
func (v *VirtualST25R95) Resets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}

// IRQLevels returns the recorded IRQ_IN levels
func (v *VirtualST25R95) IRQLevels() []gpio.Level {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]gpio.Level(nil), v.irqLevels...)
}

// Configs returns the recorded bus configurations
func (v *VirtualST25R95) Configs() []st25r95.BusConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]st25r95.BusConfig(nil), v.configs...)
}

// Transport implementation

// Configure implements st25r95.Transport
func (v *VirtualST25R95) Configure(freq physic.Frequency, m spi.Mode, bits int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return st25r95.NewTransportClosedError("Configure", "virtual")
	}
	v.configs = append(v.configs, st25r95.BusConfig{Frequency: freq, Mode: m, Bits: bits})
	return nil
}

// Select implements st25r95.Transport
func (v *VirtualST25R95) Select() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return st25r95.NewTransportClosedError("Select", "virtual")
	}
	if v.selected {
		return errors.New("virtual st25r95: select while selected")
	}
	v.selected = true
	v.mode = modeIdle
	v.inbound = v.inbound[:0]
	return nil
}

// Deselect implements st25r95.Transport. A completed send frame is executed
// here.
func (v *VirtualST25R95) Deselect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.selected {
		return nil
	}
	v.selected = false

	switch v.mode {
	case modeSend:
		v.execute()
	case modeReset:
		v.reset()
	case modeRead:
		// A read consumes the response even if it was not clocked out in full
		if v.readPos > 0 {
			v.pending = nil
		}
	case modeIdle, modePoll:
	}
	v.mode = modeIdle
	v.readPos = 0
	return nil
}

// WriteByte implements io.ByteWriter
func (v *VirtualST25R95) WriteByte(b byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return st25r95.NewTransportClosedError("WriteByte", "virtual")
	}
	if v.writeErr != nil {
		return v.writeErr
	}
	if !v.selected {
		return nil
	}

	if v.mode == modeIdle {
		switch b {
		case ctrlSend:
			v.mode = modeSend
		case ctrlReset:
			v.mode = modeReset
		case ctrlRead:
			v.mode = modeRead
		case ctrlPoll:
			v.mode = modePoll
		}
		return nil
	}

	switch v.mode {
	case modeSend, modePoll:
		v.inbound = append(v.inbound, b)
	case modeRead:
		// Full duplex: a written byte still clocks one response byte out
		v.nextReadByte()
	case modeIdle, modeReset:
	}
	return nil
}

// ReadByte implements io.ByteReader
func (v *VirtualST25R95) ReadByte() (byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, st25r95.NewTransportClosedError("ReadByte", "virtual")
	}
	if !v.selected {
		return 0, nil
	}

	switch v.mode {
	case modeRead:
		return v.nextReadByte(), nil
	case modePoll:
		return v.pollFlags(), nil
	case modeIdle, modeSend, modeReset:
	}
	return 0, nil
}

// SetIRQIn implements st25r95.Transport
func (v *VirtualST25R95) SetIRQIn(level gpio.Level) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return st25r95.NewTransportClosedError("SetIRQIn", "virtual")
	}
	v.irqLevels = append(v.irqLevels, level)
	return nil
}

// Close implements st25r95.Transport
func (v *VirtualST25R95) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

// Type implements st25r95.Transport
func (*VirtualST25R95) Type() st25r95.TransportType {
	return st25r95.TransportMock
}

// PortName implements st25r95.PortNamer
func (*VirtualST25R95) PortName() string {
	return "virtual"
}

// Chip behavior, called with mu held

func (v *VirtualST25R95) nextReadByte() byte {
	if v.readPos >= len(v.pending) {
		v.readPos++
		return 0x00
	}
	b := v.pending[v.readPos]
	v.readPos++
	return b
}

func (v *VirtualST25R95) pollFlags() byte {
	// A parameterized poll carries 0x03 + 5 bytes after the control byte
	if len(v.inbound) > 0 && v.inbound[0] == cmdPollField {
		if v.fieldOn == (len(v.inbound) > 1 && v.inbound[1]&0x01 != 0) {
			return flagFieldEvent
		}
		return 0x00
	}

	if v.pending == nil {
		return flagCanSend
	}
	if v.busyLeft > 0 {
		v.busyLeft--
		return 0x00
	}
	return flagCanRead
}

func (v *VirtualST25R95) reset() {
	v.resets++
	v.protocol = 0
	v.pending = nil
}

func (v *VirtualST25R95) respond(status byte, data []byte) {
	resp := make([]byte, 0, 2+len(data))
	resp = append(resp, status, byte(len(data)))
	v.pending = append(resp, data...)
	v.busyLeft = v.busyPolls
}

func (v *VirtualST25R95) execute() {
	if len(v.inbound) < 2 {
		return
	}
	cmd, length := v.inbound[0], int(v.inbound[1])
	data := v.inbound[2:]
	v.commands = append(v.commands, CommandLogEntry{Cmd: cmd, Data: append([]byte(nil), data...)})

	if length != len(data) {
		v.respond(statusInvalidCmdLen, nil)
		return
	}
	if status, ok := v.statusFor[cmd]; ok {
		v.respond(status, nil)
		return
	}

	switch cmd {
	case cmdIDN:
		v.respond(statusOK, BuildIDNResponse(DefaultIDN, DefaultROMCRC))
	case cmdProtocolSelect:
		v.protocolSelect(data)
	case cmdSendRecv:
		v.sendRecv(data)
	case cmdIdle:
		// Wake-up source: tag detector calibration done
		v.respond(statusOK, []byte{0x02})
	default:
		v.respond(statusInvalidCmdLen, nil)
	}
}

func (v *VirtualST25R95) protocolSelect(data []byte) {
	if len(data) < 2 || data[0] != protoISO14443A {
		v.protocol = 0
		v.respond(statusInvalidProto, nil)
		return
	}
	v.protocol = protoISO14443A
	v.respond(statusOK, nil)
}

func (v *VirtualST25R95) sendRecv(data []byte) {
	if v.protocol != protoISO14443A {
		v.respond(statusInvalidProto, nil)
		return
	}
	if v.tag == nil {
		v.respond(statusFrameWaitTOut, nil)
		return
	}

	switch {
	case bytes.Equal(data, []byte{0x26, 0x07}):
		v.respond(statusFrameOK, BuildATQAResponse(v.tag.ATQA))
	case bytes.Equal(data, []byte{0x93, 0x20, 0x08}):
		v.respond(statusFrameOK, BuildAntiCollisionResponse(v.tag.UID, v.collision))
	default:
		v.respond(statusFrameWaitTOut, nil)
	}
}
