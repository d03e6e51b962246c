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
	"cmp"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-st25r95"
)

// SleepRecoveryConfig controls host sleep detection. A host that was
// suspended leaves the ST25R95 powered down or uncalibrated, so a gap
// between polls much longer than PollInterval triggers recovery.
type SleepRecoveryConfig struct {
	Enabled bool
	// TimeDiscontinuityThreshold is how far past PollInterval a gap must
	// run to count as a sleep. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration
}

// DefaultSleepRecoveryConfig enables detection with a 2 second threshold
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
	}
}

// DetectSleep reports whether elapsed since the last poll exceeds
// pollInterval + TimeDiscontinuityThreshold
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	return cfg.Enabled && elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds polling configuration options. Zero durations take the
// DefaultConfig values.
type Config struct {
	// Protocol holds the ISO14443A parameters selected when the session
	// starts and after every recovery
	Protocol st25r95.ProtocolParams
	// PollInterval is the time between DetectTag calls
	PollInterval time.Duration
	// CardRemovalTimeout is how long a tag may go unseen before
	// OnCardRemoved fires. It must exceed PollInterval.
	CardRemovalTimeout time.Duration
	// MaxConsecutiveErrors is how many failed discovery cycles in a row
	// trigger a recovery attempt. Zero disables error-triggered recovery.
	MaxConsecutiveErrors int
	SleepRecovery        SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:         100 * time.Millisecond,
		CardRemovalTimeout:   600 * time.Millisecond,
		MaxConsecutiveErrors: 5,
		SleepRecovery:        DefaultSleepRecoveryConfig(),
	}
}

// Validate checks the configuration after defaults are applied
func (c *Config) Validate() error {
	defaults := DefaultConfig()
	poll := cmp.Or(c.PollInterval, defaults.PollInterval)
	removal := cmp.Or(c.CardRemovalTimeout, defaults.CardRemovalTimeout)

	switch {
	case poll < 0 || removal < 0:
		return fmt.Errorf("%w: negative polling interval or removal timeout", st25r95.ErrInvalidParameter)
	case removal <= poll:
		// Every poll would otherwise look like a removal
		return fmt.Errorf("%w: removal timeout %v must exceed poll interval %v",
			st25r95.ErrInvalidParameter, removal, poll)
	case c.MaxConsecutiveErrors < 0:
		return fmt.Errorf("%w: negative MaxConsecutiveErrors", st25r95.ErrInvalidParameter)
	}
	return c.Protocol.Validate()
}
