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

// Command reader prints the UID of every ISO14443-A tag presented to an
// ST25R95 on a Linux SPI bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-st25r95"
	"github.com/ZaparooProject/go-st25r95/detection"
	_ "github.com/ZaparooProject/go-st25r95/detection/spi"
	"github.com/ZaparooProject/go-st25r95/polling"
	"github.com/ZaparooProject/go-st25r95/transport/spi"
	"periph.io/x/conn/v3/physic"
)

type config struct {
	devicePath string
	csPin      string
	irqPin     string
	logDir     string
	frequency  physic.Frequency
	timeout    time.Duration
	debug      bool
	once       bool
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{frequency: st25r95.DefaultFrequency}

	fs := flag.NewFlagSet("reader", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.devicePath, "spi", "", "SPI device path, e.g. /dev/spidev0.0 (auto-detect if empty)")
	fs.StringVar(&cfg.csPin, "cs", "", "GPIO name of the chip-select line")
	fs.StringVar(&cfg.irqPin, "irq", "", "GPIO name of the IRQ_IN line")
	fs.Var(&cfg.frequency, "freq", "SPI clock frequency")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug output")
	fs.StringVar(&cfg.logDir, "log", "", "Write a session log to this directory")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "Connection timeout")
	fs.BoolVar(&cfg.once, "once", false, "Exit after the first tag")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if cfg.devicePath != "" && (cfg.csPin == "" || cfg.irqPin == "") {
		return nil, errors.New("-cs and -irq are required with -spi")
	}
	return cfg, nil
}

// newTransport opens the SPI bus named on the command line
func (c *config) newTransport(path string) (st25r95.Transport, error) {
	transport, err := spi.New(spi.Config{Port: path, CSPin: c.csPin, IRQPin: c.irqPin})
	if err != nil {
		return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
	}
	return transport, nil
}

// newTransportFromDevice opens a detected reader. Pins recorded by the
// detector win over the command line.
func (c *config) newTransportFromDevice(device detection.DeviceInfo) (st25r95.Transport, error) {
	if device.Transport != "spi" {
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
	return c.pinsFor(device).newTransport(device.Path)
}

func (c *config) pinsFor(device detection.DeviceInfo) *config {
	out := *c
	if pin := device.Metadata["cs_pin"]; pin != "" {
		out.csPin = pin
	}
	if pin := device.Metadata["irq_pin"]; pin != "" {
		out.irqPin = pin
	}
	return &out
}

func (c *config) connectOptions() []st25r95.ConnectOption {
	opts := []st25r95.ConnectOption{
		st25r95.WithConnectTimeout(c.timeout),
		st25r95.WithDeviceOptions(st25r95.WithFrequency(c.frequency)),
		st25r95.WithIDNCheck(),
	}
	if c.devicePath == "" {
		return append(opts,
			st25r95.WithAutoDetection(),
			st25r95.WithTransportFromDeviceFactory(c.newTransportFromDevice))
	}
	return append(opts, st25r95.WithTransportFactory(c.newTransport))
}

func connectToDevice(ctx context.Context, cfg *config) (*st25r95.Device, error) {
	if cfg.debug {
		if cfg.devicePath == "" {
			_, _ = fmt.Println("Auto-detecting ST25R95 readers...")
		} else {
			_, _ = fmt.Printf("Opening device: %s\n", cfg.devicePath)
		}
	}

	device, err := st25r95.ConnectDevice(ctx, cfg.devicePath, cfg.connectOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ST25R95 device: %w", err)
	}
	return device, nil
}

func runReadMode(ctx context.Context, device *st25r95.Device, cfg *config, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := polling.NewSession(device, polling.DefaultConfig())
	defer func() {
		if err := session.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
	}()

	session.SetRecoverer(polling.NewDefaultRecoverer(device, func(ctx context.Context) (*st25r95.Device, error) {
		return connectToDevice(ctx, cfg)
	}, st25r95.ProtocolParams{}, 0, 0))

	var found bool
	report := func(tag *st25r95.DetectedTag) error {
		_, _ = fmt.Fprintf(out, "Tag detected: UID=%s ATQA=%X ID=%v\n", tag.UIDHex(), tag.ATQA, tag.ID)
		if tag.Collision {
			_, _ = fmt.Fprintln(out, "  (collision: more than one tag in the field)")
		}
		if cfg.once {
			found = true
			cancel()
		}
		return nil
	}
	session.SetOnCardDetected(report)
	session.SetOnCardChanged(report)
	session.SetOnCardRemoved(func() {
		_, _ = fmt.Fprintln(out, "Tag removed - ready for next tag...")
	})

	if !cfg.once {
		_, _ = fmt.Fprintln(out, "Starting continuous tag monitoring. Press Ctrl+C to stop...")
	}

	err := session.Start(ctx)
	if found && errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("polling stopped: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config) error {
	if cfg.debug {
		st25r95.SetDebugEnabled(true)
	}
	if cfg.logDir != "" {
		path, err := st25r95.InitSessionLog(cfg.logDir)
		if err != nil {
			return err
		}
		defer func() { _ = st25r95.CloseSessionLog() }()
		_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
	}

	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	if cfg.debug {
		if id, err := device.IDN(ctx); err == nil {
			_, _ = fmt.Printf("ST25R95: %v\n", id)
		}
	}

	return runReadMode(ctx, device, cfg, os.Stdout)
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
