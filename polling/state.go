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
	"errors"
	"time"

	"github.com/ZaparooProject/go-st25r95"
)

// CardDetectionState is where the session is in a tag's life in the field
type CardDetectionState int

const (
	// StateIdle: no tag in the field
	StateIdle CardDetectionState = iota
	// StateTagDetected: a tag answered and the removal timer is armed
	StateTagDetected
	// StateReading: callbacks for a tag are running, removal is held off
	StateReading
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateTagDetected: "detected",
	StateReading:     "reading",
}

func (s CardDetectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CardState is the session's view of the tag in the field
type CardState struct {
	// LastSeenTime is when DetectTag last returned the tag
	LastSeenTime time.Time
	// RemovalTimer fires OnCardRemoved unless the tag is seen again
	RemovalTimer *time.Timer
	// LastUID and LastID describe the present tag; both are zero when idle
	LastUID        []byte
	LastID         st25r95.TagIdentifier
	DetectionState CardDetectionState
	Present        bool
}

// ErrNoTagInPoll marks a discovery cycle in which no tag answered. It is
// not a failure.
var ErrNoTagInPoll = errors.New("no tag detected in polling cycle")

// safeTimerStop stops timer and drains a tick that already fired
func safeTimerStop(timer *time.Timer) {
	if timer == nil || timer.Stop() {
		return
	}
	select {
	case <-timer.C:
	default:
	}
}

func (cs *CardState) disarm() {
	safeTimerStop(cs.RemovalTimer)
	cs.RemovalTimer = nil
}

// TransitionToReading holds off removal while callbacks run
func (cs *CardState) TransitionToReading() {
	cs.DetectionState = StateReading
	cs.disarm()
}

// TransitionToDetected records a sighting and re-arms the removal timer
func (cs *CardState) TransitionToDetected(timeout time.Duration, onRemoved func()) {
	cs.disarm()
	cs.DetectionState = StateTagDetected
	cs.LastSeenTime = time.Now()
	cs.RemovalTimer = time.AfterFunc(timeout, onRemoved)
}

// TransitionToIdle forgets the tag
func (cs *CardState) TransitionToIdle() {
	cs.disarm()
	*cs = CardState{}
}
