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
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithFrequency sets the SPI clock applied during Initialize
func WithFrequency(freq physic.Frequency) Option {
	return func(d *Device) error {
		if freq <= 0 {
			return fmt.Errorf("%w: frequency must be positive, got %v", ErrInvalidParameter, freq)
		}
		d.config.Frequency = freq
		return nil
	}
}

// WithSPIMode sets the SPI mode applied during Initialize. The ST25R95
// accepts mode 0 and mode 3.
func WithSPIMode(mode spi.Mode) Option {
	return func(d *Device) error {
		if mode != spi.Mode0 && mode != spi.Mode3 {
			return fmt.Errorf("%w: unsupported SPI mode %v", ErrInvalidParameter, mode)
		}
		d.config.Mode = mode
		return nil
	}
}

// WithReadyTimeout bounds every ready-poll
func WithReadyTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: ready timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		d.config.ReadyTimeout = timeout
		return nil
	}
}

// WithPollInterval sets the delay between ready-poll attempts
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) error {
		if interval <= 0 {
			return fmt.Errorf("%w: poll interval must be positive, got %v", ErrInvalidParameter, interval)
		}
		d.config.PollInterval = interval
		return nil
	}
}

// WithSleeper replaces the delay primitive, mainly for tests
func WithSleeper(sleep SleepFunc) Option {
	return func(d *Device) error {
		if sleep == nil {
			return errors.New("sleeper must not be nil")
		}
		d.config.Sleep = sleep
		return nil
	}
}

// WithTraceSize sets how many wire trace entries are kept per operation
func WithTraceSize(size int) Option {
	return func(d *Device) error {
		if size <= 0 {
			return fmt.Errorf("%w: trace size must be positive, got %d", ErrInvalidParameter, size)
		}
		d.config.TraceSize = size
		return nil
	}
}

// WithLegacyProtocolSelect disables the protocol select read-back
func WithLegacyProtocolSelect() Option {
	return func(d *Device) error {
		d.config.LegacyProtocolSelect = true
		return nil
	}
}
