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
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-st25r95/detection"
)

// idnPrefix starts the identification string of every ST25R95
const idnPrefix = "NFC"

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// DeviceDetector lists candidate readers for auto-detection
type DeviceDetector func(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         DeviceDetector
	deviceOptions          []Option
	timeout                time.Duration
	connectionRetries      int
	autoDetect             bool
	checkIDN               bool
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout bounds the whole connection attempt, retries included
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection retry attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(detector DeviceDetector) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// WithIDNCheck asks the chip for its IDN after Initialize and rejects
// anything that does not identify as an ST25R95
func WithIDNCheck() ConnectOption {
	return func(c *connectConfig) error {
		c.checkIDN = true
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		timeout:           30 * time.Second,
		connectionRetries: DefaultConnectionRetries,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

// ConnectDevice creates and initializes an ST25R95 device from a path or
// auto-detection. Initialize (and the IDN check, if enabled) is retried on
// transient transport faults.
//
// Example usage:
//
//	// Connect to a specific bus
//	device, err := st25r95.ConnectDevice(ctx, "/dev/spidev0.0",
//	    st25r95.WithTransportFactory(factory))
//
//	// Auto-detect
//	device, err := st25r95.ConnectDevice(ctx, "",
//	    st25r95.WithAutoDetection(),
//	    st25r95.WithTransportFromDeviceFactory(fromDevice))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	if config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.timeout)
		defer cancel()
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := setupDeviceWithRetry(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return device, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	}
	return createManualTransport(path, config.transportFactory)
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector DeviceDetector,
) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	if detector == nil {
		detector = detection.DetectAll
	}
	devices, err := detector(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no ST25R95 readers detected", ErrDeviceNotFound)
	}

	debugf("auto-detected %v", devices[0])
	return factory(devices[0])
}

func setupDevice(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if err := device.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	if config.checkIDN {
		id, err := device.IDN(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read IDN: %w", err)
		}
		if !strings.HasPrefix(id.Name, idnPrefix) {
			return nil, fmt.Errorf("%w: unexpected IDN %q", ErrDeviceNotFound, id.Name)
		}
		debugf("connected to %v", id)
	}

	return device, nil
}

// setupDeviceWithRetry wraps setupDevice with retry logic for connection attempts
func setupDeviceWithRetry(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	// A detected device has just answered the detector; one attempt is enough
	if config.autoDetect {
		return setupDevice(ctx, transport, config)
	}

	var device *Device
	err := RetryWithConfig(ctx, ConnectionRetryConfig(config.connectionRetries), func() error {
		var err error
		device, err = setupDevice(ctx, transport, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup device after %d attempts: %w", config.connectionRetries, err)
	}

	return device, nil
}
