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
	"io"
	"syscall"
	"time"
)

// Error categories
var (
	// Transport faults - surfaced as-is, never retried by the driver
	ErrTransportWrite     = errors.New("transport write failed")
	ErrTransportRead      = errors.New("transport read failed")
	ErrTransportClosed    = errors.New("transport is closed")
	ErrTransportFraming   = errors.New("framing signal control failed")
	ErrTransportAuxLine   = errors.New("auxiliary line control failed")
	ErrTransportConfigure = errors.New("transport configuration failed")

	// Protocol errors - the chip answered, but not with what was asked for
	ErrStatus          = errors.New("chip returned error status")
	ErrFrameOversized  = errors.New("response frame exceeds buffer capacity")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrReadyTimeout    = errors.New("chip did not signal ready in time")

	// Usage errors - rejected before any transport I/O
	ErrProtocolNotSelected = errors.New("no air protocol selected")
	ErrPayloadTooLarge     = errors.New("payload exceeds 255 bytes")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrUnsupportedProtocol = errors.New("protocol not supported")

	// Device errors
	ErrDeviceNotFound = errors.New("device not found")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Cause     error     // Error reported by the link, if any
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	msg := e.Err.Error()
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Port, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *TransportError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// StatusError carries a non-success result code returned by the chip.
//
//	var se *st25r95.StatusError
//	if errors.As(err, &se) && se.Code == st25r95.StatusFrameWaitTimeout {
//	    // no answer from the tag
//	}
type StatusError struct {
	Op   string
	Code StatusCode
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: chip status %s", e.Op, e.Code)
}

// Is lets errors.Is(err, ErrStatus) match any StatusError
func (*StatusError) Is(target error) bool {
	return target == ErrStatus
}

// ReadyTimeoutError is returned when a ready-poll exhausts its patience
type ReadyTimeoutError struct {
	Op       string
	Attempts int
	Elapsed  time.Duration
	// LastFlags is the last poll byte read from the chip
	LastFlags byte
}

func (e *ReadyTimeoutError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempts (%v, last flags 0x%02X)",
		e.Op, ErrReadyTimeout, e.Attempts, e.Elapsed, e.LastFlags)
}

func (*ReadyTimeoutError) Unwrap() error {
	return ErrReadyTimeout
}

// OversizedFrameError reports a response whose declared length does not fit
// in the response buffer
type OversizedFrameError struct {
	Declared int
	Capacity int
	Status   StatusCode
}

func (e *OversizedFrameError) Error() string {
	return fmt.Sprintf("%v: declared %d bytes, capacity %d (status %s)",
		ErrFrameOversized, e.Declared, e.Capacity, e.Status)
}

func (*OversizedFrameError) Unwrap() error {
	return ErrFrameOversized
}

// IsRetryable returns true if the error is potentially retryable.
// Chip status errors and ready timeouts are retryable from the caller's
// point of view: the next discovery cycle may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrReadyTimeout),
		errors.Is(err, ErrStatus),
		errors.Is(err, ErrFrameOversized),
		errors.Is(err, ErrInvalidResponse):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device or link is gone
// and polling should stop entirely
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// isDeviceGoneError checks for OS-level errors reported by spidev or the
// GPIO character device once the hardware has disappeared
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		//nolint:exhaustive // only device-gone errors are interesting
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
			return true
		}
	}
	return false
}

// IsStatus reports whether err carries the given chip status code
func IsStatus(err error, code StatusCode) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// Error constructors for consistent error creation

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, kind, cause error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       kind,
		Cause:     cause,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, cause, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, cause, ErrorTypeTransient)
}

// NewFramingError creates a chip-select control error (transient)
func NewFramingError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, ErrTransportFraming, cause, ErrorTypeTransient)
}

// NewAuxLineError creates an IRQ_IN control error (transient)
func NewAuxLineError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, ErrTransportAuxLine, cause, ErrorTypeTransient)
}

// NewConfigureError creates a bus configuration error (permanent)
func NewConfigureError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, ErrTransportConfigure, cause, ErrorTypePermanent)
}

// NewTransportClosedError creates a closed-transport error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, nil, ErrorTypePermanent)
}

// NewStatusError creates a chip status error
func NewStatusError(op string, code StatusCode) *StatusError {
	return &StatusError{Op: op, Code: code}
}
