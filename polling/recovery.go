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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-st25r95"
	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
)

// DeviceRecoverer handles device recovery after sleep/wake or errors
type DeviceRecoverer interface {
	// AttemptRecovery tries to bring the reader back to a state where tag
	// discovery works. Returns nil if recovery was successful.
	AttemptRecovery(ctx context.Context) error

	// GetDevice returns the current device reference (may change after reconnection)
	GetDevice() *st25r95.Device
}

// ReopenFunc is a function that attempts to reopen/reconnect the device.
// The returned device must already be initialized.
type ReopenFunc func(ctx context.Context) (*st25r95.Device, error)

// DefaultRecoverer implements a tiered recovery strategy:
// 1. Reset and calibrate the chip, then select ISO14443A again
// 2. Full reconnection via user-provided reopen function
type DefaultRecoverer struct {
	device      *st25r95.Device
	reopenFunc  ReopenFunc
	params      st25r95.ProtocolParams
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer with tiered recovery strategy.
// If reopenFunc is nil, only the chip reset will be attempted.
func NewDefaultRecoverer(
	device *st25r95.Device,
	reopenFunc ReopenFunc,
	params st25r95.ProtocolParams,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		device:      device,
		reopenFunc:  reopenFunc,
		params:      params,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery implements tiered recovery:
// 1. Re-run Initialize and protocol select - works if the bus is still usable
// 2. If that fails and reopenFunc is provided, try full reconnection
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error

	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		// Tier 1: chip reset
		err := r.reinitialize(ctx, r.device)
		if err == nil {
			return nil
		}
		lastErr = err
		st25r95.Debugf("recovery attempt %d: reset failed: %v", attempt+1, err)

		// Tier 2: full reconnection
		if r.reopenFunc != nil {
			_ = r.device.Close()
			newDevice, reopenErr := r.reopenFunc(ctx)
			if reopenErr == nil {
				if selErr := newDevice.SelectISO14443A(ctx, r.params); selErr != nil {
					lastErr = fmt.Errorf("select protocol after reopen: %w", selErr)
					r.device = newDevice
					continue
				}
				r.device = newDevice
				return nil
			}
			lastErr = reopenErr
		}
	}

	return lastErr
}

func (r *DefaultRecoverer) reinitialize(ctx context.Context, device *st25r95.Device) error {
	if err := device.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := device.SelectISO14443A(ctx, r.params); err != nil {
		return fmt.Errorf("select protocol: %w", err)
	}
	return nil
}

// GetDevice returns the current device reference.
// This may return a different device after a successful reconnection.
func (r *DefaultRecoverer) GetDevice() *st25r95.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}
