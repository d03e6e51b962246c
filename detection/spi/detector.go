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

// Package spi finds ST25R95 readers on Linux spidev buses. Importing it
// registers the detector with the detection package.
//
// Candidates come from, in order: a JSON config file, the ST25R95_SPI_*
// environment variables, and every accessible /dev/spidev* node. In Safe and
// Full mode each candidate with both GPIO lines known is reset and asked for
// its IDN before it is reported.
package spi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-st25r95"
	"github.com/ZaparooProject/go-st25r95/detection"
	spitransport "github.com/ZaparooProject/go-st25r95/transport/spi"
)

// Environment variables read by the detector
const (
	EnvDevice = "ST25R95_SPI_DEVICE"
	EnvCSPin  = "ST25R95_SPI_CS_PIN"
	EnvIRQPin = "ST25R95_SPI_IRQ_PIN"
)

const (
	transportName = "spi"
	probeTimeout  = 2 * time.Second
	spidevGlob    = "/dev/spidev*"
	idnPrefix     = "NFC"
)

// Config describes one reader. It is also the JSON config file format; a
// file may hold a single object or an array of them.
type Config struct {
	// Additional metadata copied into DeviceInfo
	Metadata map[string]string `json:"metadata,omitempty"`
	// Device path (e.g. "/dev/spidev0.0")
	Device string `json:"device"`
	// Human-readable name
	Name string `json:"name,omitempty"`
	// CSPin is the gpioreg name of the chip-select line
	CSPin string `json:"cs_pin,omitempty"`
	// IRQPin is the gpioreg name of the IRQ_IN line
	IRQPin string `json:"irq_pin,omitempty"`

	configured bool
}

// ProbeFunc confirms that cfg is an ST25R95 and returns its identity
type ProbeFunc func(ctx context.Context, cfg Config, mode detection.Mode) (*st25r95.Identity, error)

// sources lists where candidates come from
type sources struct {
	getenv      func(string) string
	access      func(path string) bool
	probe       ProbeFunc
	configPaths []string
	glob        string
}

func defaultSources() sources {
	home, _ := os.UserHomeDir()
	return sources{
		getenv: os.Getenv,
		access: accessible,
		probe:  probeDevice,
		configPaths: []string{
			"st25r95-spi.json",
			".st25r95-spi.json",
			filepath.Join(home, ".config", "st25r95", "spi.json"),
			"/etc/st25r95/spi.json",
		},
		glob: spidevGlob,
	}
}

type detector struct {
	src sources
}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{src: defaultSources()}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect searches for ST25R95 devices on SPI buses
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	configs := d.gatherConfigs()
	if len(configs) == 0 {
		if runtime.GOOS != "linux" {
			// Only Linux has spidev nodes to scan
			return nil, detection.ErrUnsupportedPlatform
		}
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, cfg := range configs {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(cfg.Device, opts.IgnorePaths) {
			continue
		}

		device := createDeviceInfo(cfg)
		if d.probeAndUpdate(ctx, cfg, &device, opts.Mode) {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// gatherConfigs collects candidates from every source, first one wins
func (d *detector) gatherConfigs() []Config {
	var configs []Config
	configs = append(configs, d.loadConfigFile()...)

	env := d.loadEnvConfig()
	if env.Device != "" {
		configs = append(configs, env)
	}

	if runtime.GOOS == "linux" {
		configs = append(configs, d.detectSPIDevices(env)...)
	}
	return deduplicateConfigs(configs)
}

func (d *detector) loadConfigFile() []Config {
	for _, path := range d.src.configPaths {
		data, err := os.ReadFile(path) //nolint:gosec // fixed list of config locations
		if err != nil {
			continue
		}
		configs, err := parseConfig(data)
		if err != nil {
			st25r95.Debugf("ignoring SPI config %s: %v", path, err)
			continue
		}
		return configs
	}
	return nil
}

// parseConfig accepts either one Config object or an array of them
func parseConfig(data []byte) ([]Config, error) {
	var configs []Config
	if err := json.Unmarshal(data, &configs); err != nil {
		var single Config
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("invalid SPI config: %w", err)
		}
		configs = []Config{single}
	}

	out := configs[:0]
	for _, cfg := range configs {
		if cfg.Device == "" {
			continue
		}
		cfg.configured = true
		out = append(out, cfg)
	}
	if len(out) == 0 {
		return nil, errors.New("invalid SPI config: no device entries")
	}
	return out, nil
}

// loadEnvConfig reads the ST25R95_SPI_* variables. The pins are returned
// even without a device so they can be applied to scanned nodes.
func (d *detector) loadEnvConfig() Config {
	cfg := Config{
		Device: strings.TrimSpace(d.src.getenv(EnvDevice)),
		CSPin:  strings.TrimSpace(d.src.getenv(EnvCSPin)),
		IRQPin: strings.TrimSpace(d.src.getenv(EnvIRQPin)),
	}
	if cfg.Device != "" {
		cfg.Name = "SPI device from environment"
		cfg.configured = true
	}
	return cfg
}

// detectSPIDevices lists accessible spidev nodes, using the environment
// pins as defaults
func (d *detector) detectSPIDevices(defaults Config) []Config {
	matches, err := filepath.Glob(d.src.glob)
	if err != nil {
		return nil
	}

	var configs []Config
	for _, path := range matches {
		if !d.src.access(path) {
			continue
		}
		configs = append(configs, Config{
			Device: path,
			Name:   "SPI device " + filepath.Base(path),
			CSPin:  defaults.CSPin,
			IRQPin: defaults.IRQPin,
		})
	}
	return configs
}

func deduplicateConfigs(configs []Config) []Config {
	seen := make(map[string]bool)
	var unique []Config
	for _, cfg := range configs {
		if !seen[cfg.Device] {
			seen[cfg.Device] = true
			unique = append(unique, cfg)
		}
	}
	return unique
}

func createDeviceInfo(cfg Config) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  transportName,
		Path:       cfg.Device,
		Name:       cfg.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string, len(cfg.Metadata)+2),
	}
	if cfg.configured {
		device.Confidence = detection.Medium
	}
	for k, v := range cfg.Metadata {
		device.Metadata[k] = v
	}
	if cfg.CSPin != "" {
		device.Metadata["cs_pin"] = cfg.CSPin
	}
	if cfg.IRQPin != "" {
		device.Metadata["irq_pin"] = cfg.IRQPin
	}
	if device.Name == "" {
		device.Name = "SPI device at " + cfg.Device
	}
	return device
}

// probeAndUpdate reports whether the device should be listed, raising its
// confidence when the chip answered
func (d *detector) probeAndUpdate(
	ctx context.Context,
	cfg Config,
	device *detection.DeviceInfo,
	mode detection.Mode,
) bool {
	if mode == detection.Passive {
		return true
	}
	if cfg.CSPin == "" || cfg.IRQPin == "" {
		st25r95.Debugf("not probing %s: chip-select and IRQ_IN pins are not configured", cfg.Device)
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	id, err := d.src.probe(probeCtx, cfg, mode)
	if err != nil {
		st25r95.Debugf("probe of %s failed: %v", cfg.Device, err)
		return false
	}
	device.Confidence = detection.High
	device.Metadata["idn"] = id.Name
	return true
}

// probeDevice resets the chip and checks its IDN. Full mode also selects
// ISO14443-A.
func probeDevice(ctx context.Context, cfg Config, mode detection.Mode) (*st25r95.Identity, error) {
	transport, err := spitransport.New(spitransport.Config{
		Port:   cfg.Device,
		CSPin:  cfg.CSPin,
		IRQPin: cfg.IRQPin,
	})
	if err != nil {
		return nil, err
	}
	device, err := st25r95.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	defer func() { _ = device.Close() }()

	return identify(ctx, device, mode)
}

// identify runs the probe sequence on an opened device
func identify(ctx context.Context, device *st25r95.Device, mode detection.Mode) (*st25r95.Identity, error) {
	if err := device.Initialize(ctx); err != nil {
		return nil, err
	}
	id, err := device.IDN(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(id.Name, idnPrefix) {
		return nil, fmt.Errorf("%w: unexpected IDN %q", st25r95.ErrInvalidResponse, id.Name)
	}
	if mode == detection.Full {
		if err := device.SelectISO14443A(ctx, st25r95.ProtocolParams{}); err != nil {
			return nil, err
		}
	}
	return id, nil
}
