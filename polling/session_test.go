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

package polling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaparooProject/go-st25r95"
	testutil "github.com/ZaparooProject/go-st25r95/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func noSleep(context.Context, time.Duration) error { return nil }

// newSimDevice creates an initialized device backed by the chip simulator
func newSimDevice(t *testing.T) (*st25r95.Device, *testutil.VirtualST25R95) {
	t.Helper()
	sim := testutil.NewVirtualST25R95()
	device, err := st25r95.New(sim, st25r95.WithSleeper(noSleep))
	require.NoError(t, err)
	require.NoError(t, device.Initialize(context.Background()))
	return device, sim
}

func fastConfig() *Config {
	return &Config{
		PollInterval:         5 * time.Millisecond,
		CardRemovalTimeout:   60 * time.Millisecond,
		MaxConsecutiveErrors: 3,
	}
}

// startSession runs Start in the background and returns its result channel
func startSession(ctx context.Context, session *Session) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- session.Start(ctx)
	}()
	return done
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for "+what)
	}
	var zero T
	return zero
}

type fakeRecoverer struct {
	err     error
	device  *st25r95.Device
	onCall  func()
	attempt atomic.Int32
}

func (f *fakeRecoverer) AttemptRecovery(context.Context) error {
	f.attempt.Add(1)
	if f.onCall != nil {
		f.onCall()
	}
	return f.err
}

func (f *fakeRecoverer) GetDevice() *st25r95.Device {
	return f.device
}

func TestNewSession(t *testing.T) {
	t.Parallel()
	device, _ := newSimDevice(t)

	t.Run("WithDefaultConfig", func(t *testing.T) {
		t.Parallel()
		session := NewSession(device, nil)

		assert.NotNil(t, session)
		assert.Equal(t, device, session.GetDevice())
		assert.Equal(t, DefaultConfig(), session.config)
		assert.False(t, session.IsPaused())
		assert.Equal(t, StateIdle, session.GetState().DetectionState)
	})

	t.Run("WithCustomConfig", func(t *testing.T) {
		t.Parallel()
		config := &Config{PollInterval: 50 * time.Millisecond}
		session := NewSession(device, config)

		assert.Equal(t, config, session.config)
		assert.Equal(t, 50*time.Millisecond, session.pollInterval())
		assert.Equal(t, DefaultConfig().CardRemovalTimeout, session.removalTimeout())
	})
}

func TestSession_DetectAndRemove(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.PlaceTag(testutil.NewVirtualTag(0x04, 0xA1, 0xB2, 0xC3))

	session := NewSession(device, fastConfig())
	detected := make(chan *st25r95.DetectedTag, 1)
	removed := make(chan struct{}, 1)
	session.SetOnCardDetected(func(tag *st25r95.DetectedTag) error {
		detected <- tag
		return nil
	})
	session.SetOnCardRemoved(func() {
		removed <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := startSession(ctx, session)

	tag := waitFor(t, detected, "detection")
	assert.Equal(t, st25r95.TagIdentifier(0x04A1B2C3), tag.ID)
	assert.True(t, sim.ProtocolSelected())

	state := session.GetState()
	assert.True(t, state.Present)
	assert.Equal(t, st25r95.TagIdentifier(0x04A1B2C3), state.LastID)
	assert.Equal(t, []byte{0x04, 0xA1, 0xB2, 0xC3}, state.LastUID)

	sim.RemoveTag()
	waitFor(t, removed, "removal")
	assert.False(t, session.GetState().Present)

	cancel()
	err := waitFor(t, done, "session end")
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, session.Close())
}

func TestSession_CardChanged(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.PlaceTag(testutil.NewVirtualTag(0x11, 0x22, 0x33, 0x44))

	session := NewSession(device, fastConfig())
	detected := make(chan st25r95.TagIdentifier, 4)
	changed := make(chan st25r95.TagIdentifier, 4)
	session.SetOnCardDetected(func(tag *st25r95.DetectedTag) error {
		detected <- tag.ID
		return nil
	})
	session.SetOnCardChanged(func(tag *st25r95.DetectedTag) error {
		changed <- tag.ID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startSession(ctx, session)

	assert.Equal(t, st25r95.TagIdentifier(0x11223344), waitFor(t, detected, "first tag"))

	sim.PlaceTag(testutil.NewVirtualTag(0x55, 0x66, 0x77, 0x88))
	assert.Equal(t, st25r95.TagIdentifier(0x55667788), waitFor(t, changed, "second tag"))
	assert.Equal(t, st25r95.TagIdentifier(0x55667788), session.GetState().LastID)

	cancel()
	waitFor(t, done, "session end")
	assert.Empty(t, detected, "a swap must not look like a fresh detection")
}

func TestSession_CallbackFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		callback func(*st25r95.DetectedTag) error
		name     string
		wantErr  string
	}{
		{
			name: "ReturnsError",
			callback: func(*st25r95.DetectedTag) error {
				return errors.New("reader busy")
			},
			wantErr: "OnCardDetected callback failed: reader busy",
		},
		{
			name: "Panics",
			callback: func(*st25r95.DetectedTag) error {
				panic("boom")
			},
			wantErr: "OnCardDetected callback panicked: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, sim := newSimDevice(t)
			sim.PlaceTag(testutil.NewVirtualTag(0x01, 0x02, 0x03, 0x04))

			session := NewSession(device, fastConfig())
			session.SetOnCardDetected(tt.callback)

			err := waitFor(t, startSession(context.Background(), session), "session end")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "callback error during polling")
			assert.Contains(t, err.Error(), tt.wantErr)
			require.NoError(t, session.Close())
		})
	}
}

func TestSession_ProtocolSelectFailure(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetStatus(0x02, 0x83)

	session := NewSession(device, fastConfig())
	err := session.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select protocol")
	assert.True(t, st25r95.IsStatus(err, st25r95.StatusInvalidProtocol))
}

func TestSession_FatalErrorWithoutRecoverer(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	require.NoError(t, device.SelectISO14443A(context.Background(), st25r95.ProtocolParams{}))
	require.NoError(t, sim.Close())

	session := NewSession(device, fastConfig())
	err := waitFor(t, startSession(context.Background(), session), "session end")

	require.Error(t, err)
	require.ErrorIs(t, err, st25r95.ErrTransportClosed)
	assert.Contains(t, err.Error(), "tag detection failed")
}

func TestSession_RecoveryAfterRepeatedErrors(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	// Every SendRecv ends in a communication error
	sim.SetStatus(0x04, 0x86)
	sim.PlaceTag(testutil.NewVirtualTag(0xDE, 0xAD, 0xBE, 0xEF))

	recoverer := &fakeRecoverer{
		device: device,
		onCall: func() { sim.ClearStatus(0x04) },
	}

	session := NewSession(device, fastConfig())
	session.SetRecoverer(recoverer)
	detected := make(chan st25r95.TagIdentifier, 1)
	session.SetOnCardDetected(func(tag *st25r95.DetectedTag) error {
		detected <- tag.ID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startSession(ctx, session)

	assert.Equal(t, st25r95.TagIdentifier(0xDEADBEEF), waitFor(t, detected, "detection after recovery"))
	assert.Equal(t, int32(1), recoverer.attempt.Load())

	cancel()
	waitFor(t, done, "session end")
}

func TestSession_RecoveryFailureEndsSession(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetStatus(0x04, 0x86)

	recoverer := &fakeRecoverer{device: device, err: errors.New("reader unplugged")}
	session := NewSession(device, fastConfig())
	session.SetRecoverer(recoverer)

	err := waitFor(t, startSession(context.Background(), session), "session end")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device recovery failed: reader unplugged")
	assert.Equal(t, int32(1), recoverer.attempt.Load())
}

func TestSession_RetryableErrorsWithoutRecovererKeepPolling(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetStatus(0x04, 0x86)

	session := NewSession(device, fastConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := session.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, sim.CommandCount(0x04), 3)
}

func TestSession_WithDevicePausesPolling(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	session := NewSession(device, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startSession(ctx, session)

	var pausedInside bool
	err := session.WithDevice(ctx, func(d *st25r95.Device) error {
		pausedInside = session.IsPaused()
		id, err := d.IDN(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, testutil.DefaultIDN, id.Name)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, pausedInside)
	assert.False(t, session.IsPaused())

	cancel()
	waitFor(t, done, "session end")
}

func TestSession_WithDeviceKeepsExplicitPause(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	session := NewSession(device, fastConfig())
	session.Pause()

	err := session.WithDevice(context.Background(), func(*st25r95.Device) error { return nil })
	require.NoError(t, err)
	assert.True(t, session.IsPaused())

	session.Resume()
	assert.False(t, session.IsPaused())
}

func TestSession_WithDeviceCancelledContext(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	session := NewSession(device, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := session.WithDevice(ctx, func(*st25r95.Device) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.False(t, session.IsPaused())
}

func TestSession_PauseBeforeStart(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.PlaceTag(testutil.NewVirtualTag(0x01, 0x02, 0x03, 0x04))

	session := NewSession(device, fastConfig())
	detected := make(chan struct{}, 1)
	session.SetOnCardDetected(func(*st25r95.DetectedTag) error {
		detected <- struct{}{}
		return nil
	})
	session.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startSession(ctx, session)

	select {
	case <-detected:
		t.Fatal("paused session must not poll")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, sim.CommandCount(0x04))

	session.Resume()
	waitFor(t, detected, "detection after resume")

	cancel()
	waitFor(t, done, "session end")
}

func TestSession_CloseStopsRemovalTimer(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.PlaceTag(testutil.NewVirtualTag(0x01, 0x02, 0x03, 0x04))

	session := NewSession(device, fastConfig())
	detected := make(chan struct{}, 1)
	var removals atomic.Int32
	session.SetOnCardDetected(func(*st25r95.DetectedTag) error {
		detected <- struct{}{}
		return nil
	})
	session.SetOnCardRemoved(func() { removals.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := startSession(ctx, session)
	waitFor(t, detected, "detection")

	cancel()
	waitFor(t, done, "session end")
	require.NoError(t, session.Close())

	time.Sleep(3 * fastConfig().CardRemovalTimeout)
	assert.Equal(t, int32(0), removals.Load())
	assert.Nil(t, session.GetState().RemovalTimer)
}

func TestSession_HandleCardRemovalIgnoredWhileReading(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	session := NewSession(device, fastConfig())
	removed := false
	session.SetOnCardRemoved(func() { removed = true })

	session.state.Present = true
	session.state.LastID = 0x01020304
	session.state.TransitionToReading()

	session.handleCardRemoval()
	assert.False(t, removed)
	assert.True(t, session.GetState().Present)

	session.state.DetectionState = StateTagDetected
	session.handleCardRemoval()
	assert.True(t, removed)
	assert.False(t, session.GetState().Present)
}

func TestSession_SleepDetected(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)

	t.Run("FirstCycle", func(t *testing.T) {
		t.Parallel()
		session := NewSession(device, fastConfig())
		session.config.SleepRecovery = DefaultSleepRecoveryConfig()
		assert.False(t, session.sleepDetected())
	})

	t.Run("LongGap", func(t *testing.T) {
		t.Parallel()
		session := NewSession(device, fastConfig())
		session.config.SleepRecovery = DefaultSleepRecoveryConfig()
		session.lastPoll = time.Now().Add(-time.Hour)
		assert.True(t, session.sleepDetected())
		assert.False(t, session.sleepDetected(), "the next cycle measures from now")
	})

	t.Run("Disabled", func(t *testing.T) {
		t.Parallel()
		session := NewSession(device, fastConfig())
		session.lastPoll = time.Now().Add(-time.Hour)
		assert.False(t, session.sleepDetected())
	})
}
