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

//go:build !prod

package st25r95

import (
	"context"
	"testing"
	"time"

	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records every requested delay instead of blocking
type fakeSleeper struct {
	delays []time.Duration
	mu     syncutil.Mutex
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	return nil
}

func (f *fakeSleeper) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

// createMockDevice creates a device on a mock transport whose delays are
// recorded instead of slept
func createMockDevice(t *testing.T, opts ...Option) (*Device, *MockTransport, *fakeSleeper) {
	t.Helper()
	sleeper := &fakeSleeper{}
	mockTransport := NewMockTransport()
	device, err := New(mockTransport, append([]Option{WithSleeper(sleeper.Sleep)}, opts...)...)
	require.NoError(t, err)
	return device, mockTransport, sleeper
}

// createSelectedMockDevice is createMockDevice with ISO14443A already selected
func createSelectedMockDevice(t *testing.T, opts ...Option) (*Device, *MockTransport, *fakeSleeper) {
	t.Helper()
	device, mockTransport, sleeper := createMockDevice(t, opts...)
	device.state.Protocol = ProtocolISO14443A
	return device, mockTransport, sleeper
}
