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
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-st25r95"
	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
)

// Session handles continuous card monitoring with state machine.
//
// The session owns the device while Start runs. Other goroutines that need
// the reader go through WithDevice, which pauses polling first.
type Session struct {
	config         *Config
	OnCardDetected func(tag *st25r95.DetectedTag) error
	OnCardRemoved  func()
	OnCardChanged  func(tag *st25r95.DetectedTag) error
	recoverer      DeviceRecoverer
	pauseChan      chan struct{}
	resumeChan     chan struct{}
	ackChan        chan struct{}
	device         *st25r95.Device
	lastPoll       time.Time
	state          CardState
	errorCount     int
	stateMutex     syncutil.RWMutex
	deviceMutex    syncutil.Mutex
	closed         atomic.Bool
	isPaused       atomic.Bool
}

// NewSession creates a new card monitoring session
func NewSession(device *st25r95.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		device:     device,
		config:     config,
		state:      CardState{},
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		ackChan:    make(chan struct{}, 1),
	}
}

// SetRecoverer installs the strategy used after sleep/wake or repeated
// polling errors. Without one the session only reports the problem.
func (s *Session) SetRecoverer(recoverer DeviceRecoverer) {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	s.recoverer = recoverer
}

// Start selects ISO14443A if needed and then monitors the field until ctx
// is cancelled, a callback fails or the device is gone for good.
func (s *Session) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	if err := s.ensureProtocol(ctx); err != nil {
		return err
	}
	return s.runPollingLoop(ctx)
}

// GetState returns the current card state
func (s *Session) GetState() CardState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	state := s.state
	state.LastUID = append([]byte(nil), s.state.LastUID...)
	return state
}

// GetDevice returns the underlying ST25R95 device
func (s *Session) GetDevice() *st25r95.Device {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	return s.device
}

// SetOnCardDetected sets the callback for when a card is detected.
func (s *Session) SetOnCardDetected(callback func(*st25r95.DetectedTag) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardDetected = callback
}

// SetOnCardRemoved sets the callback for when a card is removed.
func (s *Session) SetOnCardRemoved(callback func()) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardRemoved = callback
}

// SetOnCardChanged sets the callback for when the card changes.
func (s *Session) SetOnCardChanged(callback func(*st25r95.DetectedTag) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardChanged = callback
}

// Close cleans up the monitor resources. The device is left open.
func (s *Session) Close() error {
	// Mark session as closed to prevent timer callbacks from executing
	s.closed.Store(true)

	s.stateMutex.Lock()
	if s.state.RemovalTimer != nil {
		safeTimerStop(s.state.RemovalTimer)
		s.state.RemovalTimer = nil
	}
	s.stateMutex.Unlock()

	s.isPaused.Store(false)

	select {
	case <-s.pauseChan:
	default:
	}
	select {
	case <-s.resumeChan:
	default:
	}

	return nil
}

// Pause temporarily stops the polling loop
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		// Non-blocking: no loop may be running
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts the polling loop after a pause
func (s *Session) Resume() {
	if s.isPaused.CompareAndSwap(true, false) {
		select {
		case s.resumeChan <- struct{}{}:
		default:
		}
	}
}

// IsPaused reports whether polling is paused
func (s *Session) IsPaused() bool {
	return s.isPaused.Load()
}

// WithDevice pauses polling, runs fn with exclusive access to the device and
// resumes polling afterwards. A session that was already paused stays paused.
func (s *Session) WithDevice(ctx context.Context, fn func(*st25r95.Device) error) error {
	paused, err := s.pauseWithAck(ctx)
	if err != nil {
		return err
	}
	if paused {
		defer s.Resume()
	}

	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	return fn(s.device)
}

// pauseWithAck pauses polling and waits briefly for the loop to acknowledge.
// paused is true if this call did the pausing.
func (s *Session) pauseWithAck(ctx context.Context) (paused bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !s.isPaused.CompareAndSwap(false, true) {
		return false, nil
	}

	select {
	case s.pauseChan <- struct{}{}:
		ackTimeout := time.NewTimer(100 * time.Millisecond)
		defer ackTimeout.Stop()

		select {
		case <-s.ackChan:
			return true, nil
		case <-ackTimeout.C:
			// No polling loop running; the device mutex still serializes access
			return true, nil
		case <-ctx.Done():
			s.isPaused.Store(false)
			return false, ctx.Err()
		}
	case <-ctx.Done():
		s.isPaused.Store(false)
		return false, ctx.Err()
	default:
		return true, nil
	}
}

// ensureProtocol selects ISO14443A unless the device already has it
func (s *Session) ensureProtocol(ctx context.Context) error {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()

	if s.device.Protocol() == st25r95.ProtocolISO14443A {
		return nil
	}
	if err := s.device.SelectISO14443A(ctx, s.config.Protocol); err != nil {
		return fmt.Errorf("failed to select protocol: %w", err)
	}
	return nil
}

// runPollingLoop runs discovery cycles until ctx ends or a cycle fails
func (s *Session) runPollingLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for {
		if err := s.handleContextAndPause(ctx); err != nil {
			return err
		}

		if err := s.executeSinglePollingCycle(ctx); err != nil {
			return err
		}

		if err := s.waitForNextPollOrPause(ctx, ticker); err != nil {
			return err
		}
	}
}

// executeSinglePollingCycle performs one polling cycle and processes results
func (s *Session) executeSinglePollingCycle(ctx context.Context) error {
	if s.sleepDetected() {
		st25r95.Debugln("polling: host sleep detected")
		if err := s.recoverDevice(ctx); err != nil {
			return err
		}
	}

	detectedTag, err := s.performSinglePoll(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTagInPoll) {
			s.errorCount = 0
			return nil
		}
		return s.handlePollingError(ctx, err)
	}
	s.errorCount = 0

	if err := s.processPollingResults(detectedTag); err != nil {
		return fmt.Errorf("callback error during polling: %w", err)
	}
	return nil
}

// sleepDetected compares the wall time between two cycles with the poll
// interval
func (s *Session) sleepDetected() bool {
	now := time.Now()
	last := s.lastPoll
	s.lastPoll = now
	if last.IsZero() {
		return false
	}
	return s.config.SleepRecovery.DetectSleep(now.Sub(last), s.pollInterval())
}

// waitForNextPollOrPause waits for the next poll interval or handles pause signals
func (s *Session) waitForNextPollOrPause(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ticker.C:
		return nil
	case <-s.pauseChan:
		return s.handlePauseSignal(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handlePauseSignal sends acknowledgment and waits for resume
func (s *Session) handlePauseSignal(ctx context.Context) error {
	select {
	case s.ackChan <- struct{}{}:
	default:
	}
	return s.waitForResume(ctx)
}

func (s *Session) handleContextAndPause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.pauseChan:
		return s.handlePauseSignal(ctx)
	default:
		return nil
	}
}

func (s *Session) waitForResume(ctx context.Context) error {
	select {
	case <-s.resumeChan:
		// A pause is not a sleep
		s.lastPoll = time.Time{}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// performSinglePoll runs one REQA + anti-collision round
func (s *Session) performSinglePoll(ctx context.Context) (*st25r95.DetectedTag, error) {
	s.deviceMutex.Lock()
	tag, err := s.device.DetectTag(ctx)
	s.deviceMutex.Unlock()

	if err != nil {
		return nil, fmt.Errorf("tag detection failed: %w", err)
	}
	if tag == nil {
		return nil, ErrNoTagInPoll
	}
	return tag, nil
}

// handlePollingError decides whether a failed cycle is skipped, triggers
// recovery or ends the session
func (s *Session) handlePollingError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	if st25r95.IsFatal(err) {
		s.handleCardRemoval()
		if !s.hasRecoverer() {
			return err
		}
		return s.recoverDevice(ctx)
	}

	s.errorCount++
	st25r95.Debugf("polling: cycle failed (%d in a row): %v", s.errorCount, err)

	limit := s.config.MaxConsecutiveErrors
	if limit <= 0 || s.errorCount < limit {
		return nil
	}

	s.errorCount = 0
	s.handleCardRemoval()
	if !s.hasRecoverer() {
		return nil
	}
	return s.recoverDevice(ctx)
}

func (s *Session) hasRecoverer() bool {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	return s.recoverer != nil
}

// recoverDevice runs the recoverer and adopts the device it hands back
func (s *Session) recoverDevice(ctx context.Context) error {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()

	if s.recoverer == nil {
		return nil
	}
	if err := s.recoverer.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("device recovery failed: %w", err)
	}
	s.device = s.recoverer.GetDevice()
	s.lastPoll = time.Time{}
	st25r95.Debugln("polling: device recovered")
	return nil
}

// handleCardRemoval handles card removal state changes
func (s *Session) handleCardRemoval() {
	// Bail out if session is closed to prevent timer callbacks from executing after cleanup
	if s.closed.Load() {
		return
	}

	s.stateMutex.Lock()
	// A poll cycle is running callbacks for this card; the timer is stale
	if s.state.DetectionState == StateReading {
		s.stateMutex.Unlock()
		return
	}
	wasPresent := s.state.Present
	if wasPresent {
		s.state.TransitionToIdle()
	}
	onRemoved := s.OnCardRemoved
	s.stateMutex.Unlock()

	// Call callback outside the lock to avoid potential deadlocks
	if wasPresent && onRemoved != nil {
		onRemoved()
	}
}

// processPollingResults processes the detected tag and returns any callback errors
func (s *Session) processPollingResults(detectedTag *st25r95.DetectedTag) error {
	// Stop the removal timer before callbacks run so a slow callback does
	// not look like a removal
	s.stateMutex.Lock()
	s.state.TransitionToReading()
	s.stateMutex.Unlock()

	err := s.updateCardState(detectedTag)

	s.stateMutex.Lock()
	s.state.TransitionToDetected(s.removalTimeout(), s.handleCardRemoval)
	s.stateMutex.Unlock()

	return err
}

// safeCallCallback executes a callback with panic recovery
func (*Session) safeCallCallback(
	callback func(*st25r95.DetectedTag) error,
	tag *st25r95.DetectedTag,
	callbackName string,
) error {
	var callbackErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callbackErr = fmt.Errorf("%s callback panicked: %v", callbackName, r)
			}
		}()
		callbackErr = callback(tag)
	}()
	if callbackErr != nil {
		return fmt.Errorf("%s callback failed: %w", callbackName, callbackErr)
	}
	return nil
}

// updateCardState records the tag and fires OnCardDetected or OnCardChanged
func (s *Session) updateCardState(detectedTag *st25r95.DetectedTag) error {
	s.stateMutex.RLock()
	wasPresent := s.state.Present
	wasChanged := wasPresent && s.state.LastID != detectedTag.ID
	onDetected := s.OnCardDetected
	onChanged := s.OnCardChanged
	s.stateMutex.RUnlock()

	if wasPresent && !wasChanged {
		return nil
	}

	s.stateMutex.Lock()
	s.state.Present = true
	s.state.LastID = detectedTag.ID
	s.state.LastUID = append([]byte(nil), detectedTag.UID...)
	s.stateMutex.Unlock()

	// Call callbacks outside of lock with panic recovery
	switch {
	case !wasPresent && onDetected != nil:
		return s.safeCallCallback(onDetected, detectedTag, "OnCardDetected")
	case wasChanged && onChanged != nil:
		return s.safeCallCallback(onChanged, detectedTag, "OnCardChanged")
	}
	return nil
}

func (s *Session) pollInterval() time.Duration {
	return cmp.Or(s.config.PollInterval, DefaultConfig().PollInterval)
}

func (s *Session) removalTimeout() time.Duration {
	return cmp.Or(s.config.CardRemovalTimeout, DefaultConfig().CardRemovalTimeout)
}
