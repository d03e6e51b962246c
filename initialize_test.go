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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// configureFailTransport is a MockTransport whose bus cannot be configured
type configureFailTransport struct {
	*MockTransport
	err error
}

func (c *configureFailTransport) Configure(physic.Frequency, spi.Mode, int) error {
	return c.err
}

func TestInitialize_Sequence(t *testing.T) {
	t.Parallel()
	device, mock, sleeper := createMockDevice(t)

	require.NoError(t, device.Initialize(context.Background()))

	assert.Equal(t, []BusConfig{{Frequency: physic.MegaHertz, Mode: spi.Mode0, Bits: 8}}, mock.Configs())

	assert.Equal(t, []AuxEvent{
		{Level: gpio.High}, {Level: gpio.Low}, {Level: gpio.High},
		{Level: gpio.High}, {Level: gpio.Low}, {Level: gpio.High},
	}, mock.AuxEvents())

	txs := mock.Transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, []byte{0x01}, txs[0].Out)
	assert.Equal(t, append([]byte{0x00}, calibrationFrame[:]...), txs[1].Out)
	assert.Equal(t, []byte{
		0x00, 0x07, 0x0E, 0x03, 0xA1, 0x00, 0xB8, 0x01, 0x18,
		0x00, 0x01, 0x60, 0x60, 0x00, 0x00, 0x3F, 0x01,
	}, txs[1].Out)
	assert.Equal(t, []byte{0x02, 0x00, 0x00}, txs[2].Out)

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{ms, ms, 20 * ms, ms, ms, ms, 20 * ms}, sleeper.Delays())
}

func TestInitialize_ClearsChipState(t *testing.T) {
	t.Parallel()
	device, mock, _ := createSelectedMockDevice(t)
	mock.QueueResponse(0x80, []byte{0x44, 0x00})
	_, err := device.ReceiveResponse(context.Background())
	require.NoError(t, err)

	require.NoError(t, device.Initialize(context.Background()))

	assert.Equal(t, ProtocolNone, device.Protocol())
	assert.Equal(t, ResponseFrame{}, device.LastResponse())
}

func TestInitialize_BusSettings(t *testing.T) {
	t.Parallel()
	device, mock, _ := createMockDevice(t,
		WithFrequency(2*physic.MegaHertz),
		WithSPIMode(spi.Mode3),
	)

	require.NoError(t, device.Initialize(context.Background()))
	assert.Equal(t, []BusConfig{{Frequency: 2 * physic.MegaHertz, Mode: spi.Mode3, Bits: 8}}, mock.Configs())
}

func TestInitialize_ConfigureFailure(t *testing.T) {
	t.Parallel()
	transport := &configureFailTransport{MockTransport: NewMockTransport(), err: errors.New("unsupported speed")}
	device, err := New(transport, WithSleeper((&fakeSleeper{}).Sleep))
	require.NoError(t, err)

	err = device.Initialize(context.Background())
	require.ErrorIs(t, err, ErrTransportConfigure)
	assert.Contains(t, err.Error(), "unsupported speed")
	assert.True(t, IsFatal(err))
	assert.Empty(t, transport.AuxEvents())
	assert.Empty(t, transport.Transactions())
}

func TestInitialize_AuxLineFailure(t *testing.T) {
	t.Parallel()
	device, mock, _ := createMockDevice(t)
	mock.SetAuxError(errors.New("irq pin busy"))

	err := device.Initialize(context.Background())
	require.ErrorIs(t, err, ErrTransportAuxLine)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Initialize", te.Op)
	assert.Empty(t, mock.Transactions())
}

func TestInitialize_CancelledDuringReset(t *testing.T) {
	t.Parallel()
	device, mock, _ := createMockDevice(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := device.Initialize(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mock.AuxEvents(), 1, "the first delay is where cancellation is noticed")
	assert.Empty(t, mock.Transactions())
}
