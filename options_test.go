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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

func TestOptions_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		opt  Option
		name string
	}{
		{name: "zero frequency", opt: WithFrequency(0)},
		{name: "SPI mode 1", opt: WithSPIMode(spi.Mode1)},
		{name: "SPI mode 2", opt: WithSPIMode(spi.Mode2)},
		{name: "zero ready timeout", opt: WithReadyTimeout(0)},
		{name: "negative poll interval", opt: WithPollInterval(-time.Millisecond)},
		{name: "zero trace size", opt: WithTraceSize(0)},
		{name: "negative trace size", opt: WithTraceSize(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(NewMockTransport(), tt.opt)
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}

	_, err := New(NewMockTransport(), WithSleeper(nil))
	require.Error(t, err)
}

func TestOptions_Applied(t *testing.T) {
	t.Parallel()

	var slept bool
	sleeper := func(context.Context, time.Duration) error {
		slept = true
		return nil
	}

	device, err := New(NewMockTransport(),
		WithFrequency(4*physic.MegaHertz),
		WithSPIMode(spi.Mode3),
		WithReadyTimeout(250*time.Millisecond),
		WithPollInterval(5*time.Millisecond),
		WithTraceSize(4),
		WithLegacyProtocolSelect(),
		WithSleeper(sleeper),
	)
	require.NoError(t, err)

	cfg := device.Config()
	assert.Equal(t, 4*physic.MegaHertz, cfg.Frequency)
	assert.Equal(t, spi.Mode3, cfg.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadyTimeout)
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 4, cfg.TraceSize)
	assert.True(t, cfg.LegacyProtocolSelect)
	assert.Len(t, device.trace.ring, 4)

	require.NoError(t, device.Initialize(context.Background()))
	assert.True(t, slept)
}
