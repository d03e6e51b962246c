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

// Package st25r95 drives an ST25R95 NFC transceiver over SPI. A Device
// resets and calibrates the chip, selects ISO14443-A and discovers tags in
// the field; transport/spi supplies the periph.io link and polling turns
// discovery into card-present events.
package st25r95

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Default bus settings
const (
	DefaultFrequency = 1 * physic.MegaHertz
	DefaultSPIMode   = spi.Mode0
	wordSize         = 8
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Sleep is used for every fixed delay in the reset sequence and between
	// ready-poll attempts
	Sleep SleepFunc
	// Frequency is the SPI clock set during Initialize
	Frequency physic.Frequency
	// Mode is the SPI clock polarity/phase set during Initialize
	Mode spi.Mode
	// ReadyTimeout bounds each ready-poll
	ReadyTimeout time.Duration
	// PollInterval is the delay between ready-poll attempts
	PollInterval time.Duration
	// TraceSize is the number of wire trace entries kept per operation
	TraceSize int
	// LegacyProtocolSelect skips reading back the protocol select result
	// and marks the protocol selected as soon as the command is sent
	LegacyProtocolSelect bool
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Sleep:        sleepContext,
		Frequency:    DefaultFrequency,
		Mode:         DefaultSPIMode,
		ReadyTimeout: DefaultReadyTimeout,
		PollInterval: DefaultPollInterval,
		TraceSize:    16,
	}
}

// ChipState is what the driver knows about the chip between operations
type ChipState struct {
	LastResponse ResponseFrame
	Protocol     Protocol
}

// Device represents an ST25R95 reader.
//
// Thread Safety: Device is NOT thread-safe. It owns its Transport
// exclusively and every method must be called from a single goroutine or
// behind external synchronization (the polling package does this).
type Device struct {
	transport Transport
	config    *DeviceConfig
	trace     *TraceBuffer
	state     ChipState
}

// New creates a new ST25R95 device with the given transport. The chip is
// not touched until Initialize is called.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, errors.New("transport is nil")
	}
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	port := string(transport.Type())
	if namer, ok := transport.(PortNamer); ok {
		port = namer.PortName()
	}
	device.trace = NewTraceBuffer(string(transport.Type()), port, device.config.TraceSize)

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Config returns a copy of the active configuration
func (d *Device) Config() DeviceConfig {
	return *d.config
}

// State returns a copy of the chip state
func (d *Device) State() ChipState {
	state := d.state
	state.LastResponse.Data = append([]byte(nil), d.state.LastResponse.Data...)
	return state
}

// Protocol returns the currently selected air protocol
func (d *Device) Protocol() Protocol {
	return d.state.Protocol
}

// LastResponse returns a copy of the last response frame read from the chip
func (d *Device) LastResponse() ResponseFrame {
	return d.State().LastResponse
}

// LastStatus returns the result code of the last response frame
func (d *Device) LastStatus() StatusCode {
	return d.state.LastResponse.Status
}

// Close closes the device connection
func (d *Device) Close() error {
	d.state = ChipState{}
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// beginOp starts a fresh wire trace for one public operation
func (d *Device) beginOp() {
	d.trace.Clear()
}

// endOp attaches the wire trace to a failed operation
func (d *Device) endOp(err error) error {
	if err != nil {
		debugf("operation failed: %v", err)
	}
	return d.trace.WrapError(err)
}

func (d *Device) sleep(ctx context.Context, dur time.Duration) error {
	return d.config.Sleep(ctx, dur)
}

// sleepContext waits for dur, returning early with ctx.Err() on cancellation
func sleepContext(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
