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

// Package detection finds ST25R95 readers attached to the host. Transport
// specific detectors register themselves on import, see detection/spi.
package detection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only checks device descriptors without any communication
	Passive Mode = iota
	// Safe mode resets the chip and asks for its IDN
	Safe
	// Full mode additionally selects ISO14443-A to prove the RF front end answers
	Full
)

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence - a bus node exists but nothing has answered
	Low Confidence = iota
	// Medium confidence - the node was named by configuration
	Medium
	// High confidence - the chip identified itself as an ST25R95
	High
)

// DeviceInfo represents a detected ST25R95 device
type DeviceInfo struct {
	// Additional metadata (e.g. cs_pin, irq_pin, idn)
	Metadata map[string]string
	// Transport type, currently always "spi"
	Transport string
	// Connection path (e.g. "/dev/spidev0.0")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	confidence := "unknown"
	switch d.Confidence {
	case Low:
		confidence = "low"
	case Medium:
		confidence = "medium"
	case High:
		confidence = "high"
	}
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, confidence)
}

// Options configures the detection behavior
type Options struct {
	// Device paths to explicitly ignore (e.g. ["/dev/spidev0.1"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     5 * time.Second,
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no ST25R95 devices were detected
	ErrNoDevicesFound = errors.New("no ST25R95 devices found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

var (
	registryMu syncutil.Mutex
	registry   []Detector
)

// RegisterDetector adds a detector to the registry. Transport detectors call
// it from init.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	registry = append(registry, d)
	registryMu.Unlock()
}

// detectorsFor returns the registered detectors whose transport is listed,
// or all of them when transports is empty
func detectorsFor(transports []string) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(transports) == 0 {
		return append([]Detector(nil), registry...)
	}
	var out []Detector
	for _, d := range registry {
		if slices.Contains(transports, d.Transport()) {
			out = append(out, d)
		}
	}
	return out
}

// DetectAll runs the matching detectors concurrently and merges what they
// find. The result is ordered by confidence, highest first, so callers that
// take the first entry get the reader that answered a probe. A path reported
// twice is kept once, at its best confidence.
//
// Failed detectors are tolerated while another one found a reader; otherwise
// the first failure is returned, or ErrNoDevicesFound.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := detectorsFor(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	found := make([][]DeviceInfo, len(detectors))
	errs := make([]error, len(detectors))
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i, d := range detectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found[i], errs[i] = detectOne(ctx, d, opts)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ErrDetectionTimeout
	}

	devices := mergeDevices(found)
	if len(devices) > 0 {
		return devices, nil
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return nil, ErrNoDevicesFound
}

// detectOne runs a single detector, going through the result cache when
// enabled. ErrNoDevicesFound is not a failure here.
func detectOne(ctx context.Context, d Detector, opts *Options) ([]DeviceInfo, error) {
	key := cacheKey{transport: d.Transport(), mode: opts.Mode}

	if opts.EnableCache {
		if cached, ok := results.lookup(key, opts.CacheTTL); ok {
			// Detect applies IgnorePaths itself; cached lists may predate them
			return withoutIgnored(cached, opts.IgnorePaths), nil
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return nil, fmt.Errorf("%s detector: %w", d.Transport(), err)
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			results.store(key, devices)
		} else {
			// A reader that vanished must not be served until the TTL runs out
			results.forget(key.transport)
		}
	}
	return devices, nil
}

func mergeDevices(found [][]DeviceInfo) []DeviceInfo {
	best := make(map[string]int)
	var merged []DeviceInfo
	for _, list := range found {
		for _, device := range list {
			if i, seen := best[device.Path]; seen {
				if device.Confidence > merged[i].Confidence {
					merged[i] = device
				}
				continue
			}
			best[device.Path] = len(merged)
			merged = append(merged, device)
		}
	}
	slices.SortStableFunc(merged, func(a, b DeviceInfo) int {
		return int(b.Confidence) - int(a.Confidence)
	})
	return merged
}

func withoutIgnored(devices []DeviceInfo, ignore []string) []DeviceInfo {
	if len(ignore) == 0 {
		return devices
	}
	return slices.DeleteFunc(devices, func(d DeviceInfo) bool {
		return IsPathIgnored(d.Path, ignore)
	})
}

// ClearDetectionCache drops every cached detection result
func ClearDetectionCache() {
	results.reset()
}

// ClearDetectionCacheForTransport drops the cached results of one transport,
// in every mode
func ClearDetectionCacheForTransport(transport string) {
	results.forget(transport)
}
