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

import (
	"errors"
	"testing"

	"github.com/ZaparooProject/go-st25r95"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// transact runs one framed exchange: out is written, then n bytes are read
func transact(t *testing.T, sim *VirtualST25R95, out []byte, n int) []byte {
	t.Helper()
	require.NoError(t, sim.Select())
	for _, b := range out {
		require.NoError(t, sim.WriteByte(b))
	}
	in := make([]byte, n)
	for i := range in {
		b, err := sim.ReadByte()
		require.NoError(t, err)
		in[i] = b
	}
	require.NoError(t, sim.Deselect())
	return in
}

func command(t *testing.T, sim *VirtualST25R95, cmd byte, data ...byte) {
	t.Helper()
	transact(t, sim, append([]byte{ctrlSend, cmd, byte(len(data))}, data...), 0)
}

func poll(t *testing.T, sim *VirtualST25R95) byte {
	t.Helper()
	return transact(t, sim, []byte{ctrlPoll}, 1)[0]
}

// response reads the pending answer, n data bytes after status and length
func response(t *testing.T, sim *VirtualST25R95, n int) (status byte, data []byte) {
	t.Helper()
	in := transact(t, sim, []byte{ctrlRead}, 2+n)
	return in[0], in[2:]
}

func TestVirtualST25R95_IDN(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()

	assert.Equal(t, byte(flagCanSend), poll(t, sim))

	command(t, sim, cmdIDN)
	assert.Equal(t, byte(flagCanRead), poll(t, sim))

	want := BuildIDNResponse(DefaultIDN, DefaultROMCRC)
	status, data := response(t, sim, len(want))
	assert.Equal(t, byte(statusOK), status)
	assert.Equal(t, want, data)
	assert.Equal(t, byte(flagCanSend), poll(t, sim), "reading consumes the response")
	assert.Equal(t, 1, sim.CommandCount(cmdIDN))
}

func TestVirtualST25R95_LengthMismatch(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()

	transact(t, sim, []byte{ctrlSend, cmdIDN, 0x02, 0xAA}, 0)
	status, _ := response(t, sim, 0)
	assert.Equal(t, byte(statusInvalidCmdLen), status)
}

func TestVirtualST25R95_BusyPolls(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()
	sim.SetBusyPolls(2)

	command(t, sim, cmdIDN)
	assert.Equal(t, byte(0x00), poll(t, sim))
	assert.Equal(t, byte(0x00), poll(t, sim))
	assert.Equal(t, byte(flagCanRead), poll(t, sim))
}

func TestVirtualST25R95_Discovery(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()
	uid := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	command(t, sim, cmdSendRecv, 0x26, 0x07)
	status, _ := response(t, sim, 0)
	assert.Equal(t, byte(statusInvalidProto), status, "SendRecv needs a protocol")

	command(t, sim, cmdProtocolSelect, protoISO14443A, 0x00)
	status, _ = response(t, sim, 0)
	require.Equal(t, byte(statusOK), status)
	assert.True(t, sim.ProtocolSelected())

	command(t, sim, cmdSendRecv, 0x26, 0x07)
	status, _ = response(t, sim, 0)
	assert.Equal(t, byte(statusFrameWaitTOut), status, "empty field")

	sim.PlaceTag(NewVirtualTag(uid...))
	command(t, sim, cmdSendRecv, 0x26, 0x07)
	status, data := response(t, sim, 5)
	assert.Equal(t, byte(statusFrameOK), status)
	assert.Equal(t, []byte{0x44, 0x00}, data[:2])

	command(t, sim, cmdSendRecv, 0x93, 0x20, 0x08)
	status, data = response(t, sim, 8)
	assert.Equal(t, byte(statusFrameOK), status)
	assert.Equal(t, BuildAntiCollisionResponse(uid, false), data)

	sim.SetCollision(true)
	command(t, sim, cmdSendRecv, 0x93, 0x20, 0x08)
	_, data = response(t, sim, 8)
	assert.NotZero(t, data[5]&trailerCollisionFlag)
}

func TestVirtualST25R95_ProtocolSelectRejected(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()

	command(t, sim, cmdProtocolSelect, 0x01, 0x00)
	status, _ := response(t, sim, 0)
	assert.Equal(t, byte(statusInvalidProto), status)
	assert.False(t, sim.ProtocolSelected())
}

func TestVirtualST25R95_ResetClearsProtocol(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()

	command(t, sim, cmdProtocolSelect, protoISO14443A, 0x00)
	require.True(t, sim.ProtocolSelected())

	transact(t, sim, []byte{ctrlReset}, 0)
	assert.False(t, sim.ProtocolSelected())
	assert.Equal(t, 1, sim.Resets())
	assert.Equal(t, byte(flagCanSend), poll(t, sim), "reset drops the pending answer")
}

func TestVirtualST25R95_FieldPoll(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()
	appear := []byte{ctrlPoll, cmdPollField, 0x01, 0x10, 0x10, 0x00, 0x00}
	disappear := []byte{ctrlPoll, cmdPollField, 0x00, 0x10, 0x10, 0x00, 0x00}

	assert.Equal(t, byte(0x00), transact(t, sim, appear, 1)[0])
	assert.Equal(t, byte(flagFieldEvent), transact(t, sim, disappear, 1)[0])

	sim.SetExternalField(true)
	assert.Equal(t, byte(flagFieldEvent), transact(t, sim, appear, 1)[0])
	assert.Equal(t, byte(0x00), transact(t, sim, disappear, 1)[0])
}

func TestVirtualST25R95_ForcedStatus(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()
	sim.SetStatus(cmdIDN, 0x86)

	command(t, sim, cmdIDN)
	status, _ := response(t, sim, 0)
	assert.Equal(t, byte(0x86), status)

	sim.ClearStatus(cmdIDN)
	command(t, sim, cmdIDN)
	status, _ = response(t, sim, 0)
	assert.Equal(t, byte(statusOK), status)
}

func TestVirtualST25R95_TransportBookkeeping(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()

	require.NoError(t, sim.Configure(2*physic.MegaHertz, spi.Mode0, 8))
	require.NoError(t, sim.SetIRQIn(gpio.Low))
	require.NoError(t, sim.SetIRQIn(gpio.High))
	assert.Equal(t, []st25r95.BusConfig{{Frequency: 2 * physic.MegaHertz, Mode: spi.Mode0, Bits: 8}}, sim.Configs())
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High}, sim.IRQLevels())

	require.NoError(t, sim.Select())
	require.Error(t, sim.Select(), "nested select")
	require.NoError(t, sim.Deselect())

	command(t, sim, cmdIdle, 0x01)
	require.Len(t, sim.Commands(), 1)
	assert.Equal(t, CommandLogEntry{Cmd: cmdIdle, Data: []byte{0x01}}, sim.Commands()[0])

	assert.Equal(t, st25r95.TransportMock, sim.Type())
	assert.Equal(t, "virtual", sim.PortName())
}

func TestVirtualST25R95_Faults(t *testing.T) {
	t.Parallel()
	sim := NewVirtualST25R95()

	injected := errors.New("injected")
	sim.SetWriteError(injected)
	require.NoError(t, sim.Select())
	require.ErrorIs(t, sim.WriteByte(ctrlSend), injected)
	require.NoError(t, sim.Deselect())

	sim.SetWriteError(nil)
	require.NoError(t, sim.Close())
	require.ErrorIs(t, sim.WriteByte(ctrlSend), st25r95.ErrTransportClosed)
	_, err := sim.ReadByte()
	require.ErrorIs(t, err, st25r95.ErrTransportClosed)
	require.ErrorIs(t, sim.Select(), st25r95.ErrTransportClosed)
}

func TestBCC(t *testing.T) {
	t.Parallel()
	assert.Equal(t, byte(0x88^0x04^0x12^0x34), BCC([]byte{0x88, 0x04, 0x12, 0x34}))
	assert.Equal(t, byte(0x00), BCC(nil))
}
