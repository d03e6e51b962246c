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
	"fmt"
	"math/rand/v2"
	"time"
)

// Connection retry defaults used by ConnectDevice
const (
	DefaultConnectionRetries    = 3
	ConnectionInitialBackoff    = 100 * time.Millisecond
	ConnectionMaxBackoff        = 500 * time.Millisecond
	ConnectionBackoffMultiplier = 2.0
	ConnectionJitter            = 0.1
	ConnectionRetryTimeout      = 10 * time.Second
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (0 = single call, no retry)
	MaxAttempts int
	// InitialBackoff is the delay after the first failure
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay after every failure
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the delay at random
	Jitter float64
	// RetryTimeout bounds all attempts together
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the retry settings used for chip operations
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// ConnectionRetryConfig returns the retry settings used when opening a device
func ConnectionRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    ConnectionInitialBackoff,
		MaxBackoff:        ConnectionMaxBackoff,
		BackoffMultiplier: ConnectionBackoffMultiplier,
		Jitter:            ConnectionJitter,
		RetryTimeout:      ConnectionRetryTimeout,
	}
}

// RetryableFunc is one attempt of a retried operation
type RetryableFunc func() error

// RetryWithConfig calls fn until it succeeds, returns an error IsRetryable
// rejects, or the attempts or RetryTimeout run out. The last error is
// returned in the latter case.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	var lastErr error
	backoff := config.InitialBackoff
	for attempt := range config.MaxAttempts {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == config.MaxAttempts-1 {
			break
		}
		debugf("attempt %d/%d failed, retrying: %v", attempt+1, config.MaxAttempts, err)
		if sleepContext(ctx, jittered(backoff, config.Jitter)) != nil {
			return lastErr
		}
		backoff = nextBackoff(backoff, config)
	}

	return lastErr
}

func nextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	next := time.Duration(float64(backoff) * config.BackoffMultiplier)
	if config.MaxBackoff > 0 && next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

func jittered(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return base
	}
	return base + time.Duration(rand.Float64()*factor*float64(base))
}
