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
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	transient := NewTransportReadError("op", "p", errors.New("glitch"))
	permanent := NewConfigureError("op", "p", errors.New("no bus"))

	tests := []struct {
		wantErr   error
		errs      []error
		name      string
		attempts  int
		wantCalls int
	}{
		{name: "first try", attempts: 3, errs: nil, wantCalls: 1},
		{name: "succeeds on retry", attempts: 3, errs: []error{transient, transient}, wantCalls: 3},
		{
			name:      "attempts exhausted",
			attempts:  2,
			errs:      []error{transient, transient, transient},
			wantCalls: 2,
			wantErr:   transient,
		},
		{name: "permanent stops", attempts: 3, errs: []error{permanent}, wantCalls: 1, wantErr: permanent},
		{name: "zero attempts is one call", attempts: 0, errs: []error{transient}, wantCalls: 1, wantErr: transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			err := RetryWithConfig(context.Background(), fastRetryConfig(tt.attempts), func() error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetryWithConfig_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithConfig(ctx, fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryWithConfig_ReturnsLastErrorOnTimeout(t *testing.T) {
	t.Parallel()

	cfg := fastRetryConfig(100)
	cfg.InitialBackoff = 20 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond
	cfg.RetryTimeout = 30 * time.Millisecond

	timeout := &ReadyTimeoutError{Op: "WaitReady"}
	calls := 0
	err := RetryWithConfig(context.Background(), cfg, func() error {
		calls++
		return timeout
	})
	require.ErrorIs(t, err, ErrReadyTimeout)
	assert.Less(t, calls, 100)
}

func TestRetryWithConfig_NilConfig(t *testing.T) {
	t.Parallel()
	calls := 0
	require.NoError(t, RetryWithConfig(context.Background(), nil, func() error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestNextBackoff(t *testing.T) {
	t.Parallel()
	cfg := &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: 300 * time.Millisecond}

	assert.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond, cfg))
	assert.Equal(t, 300*time.Millisecond, nextBackoff(200*time.Millisecond, cfg))
}

func TestJittered(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond

	assert.Equal(t, base, jittered(base, 0))
	for range 50 {
		d := jittered(base, 0.1)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+10*time.Millisecond)
	}
}

func TestConnectionRetryConfig(t *testing.T) {
	t.Parallel()
	cfg := ConnectionRetryConfig(5)

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, ConnectionInitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, ConnectionMaxBackoff, cfg.MaxBackoff)
	assert.Equal(t, ConnectionRetryTimeout, cfg.RetryTimeout)
}
