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

// Package spi provides the periph.io SPI transport for the ST25R95.
//
// The chip-select line is driven as a plain GPIO so that one framed
// transaction can span many single-byte transfers; the bus itself is
// connected with spi.NoCS. IRQ_IN is a second GPIO used for the reset pulse.
package spi

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-st25r95"
	"github.com/ZaparooProject/go-st25r95/internal/frame"
	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var (
	// ErrPinNotFound is returned when a GPIO name does not resolve
	ErrPinNotFound = errors.New("gpio pin not found")
	// ErrReconfigure is returned when Configure asks for different bus
	// settings after the bus has been connected
	ErrReconfigure = errors.New("spi bus already connected with different settings")
)

// Config names the bus and the two GPIO lines
type Config struct {
	// Port is the spireg port name, e.g. "/dev/spidev0.0" or "SPI0.0"
	Port string
	// CSPin is the gpioreg name of the chip-select line, e.g. "GPIO8"
	CSPin string
	// IRQPin is the gpioreg name of the IRQ_IN line, e.g. "GPIO25"
	IRQPin string
}

// Transport implements st25r95.Transport over periph.io
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	cs       gpio.PinOut
	irq      gpio.PinOut
	portName string
	bus      st25r95.BusConfig
	tx       [1]byte
	rx       [1]byte
	mu       syncutil.Mutex
	closed   bool
}

// New initializes the periph host drivers, opens the SPI port and resolves
// both GPIO lines
func New(config Config) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	cs, err := lookupPin(config.CSPin)
	if err != nil {
		return nil, fmt.Errorf("chip-select: %w", err)
	}
	irq, err := lookupPin(config.IRQPin)
	if err != nil {
		return nil, fmt.Errorf("IRQ_IN: %w", err)
	}

	port, err := spireg.Open(config.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", config.Port, err)
	}

	t, err := NewWithPort(port, cs, irq, config.Port)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort builds a transport from an already opened port and pins.
// Both lines are driven high (chip deselected, IRQ_IN idle).
func NewWithPort(port spi.PortCloser, cs, irq gpio.PinOut, portName string) (*Transport, error) {
	if port == nil || cs == nil || irq == nil {
		return nil, errors.New("spi transport needs a port, a chip-select pin and an IRQ_IN pin")
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to drive chip-select high: %w", err)
	}
	if err := irq.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to drive IRQ_IN high: %w", err)
	}
	return &Transport{
		port:     port,
		cs:       cs,
		irq:      irq,
		portName: portName,
	}, nil
}

func lookupPin(name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no pin name given", ErrPinNotFound)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return p, nil
}

// Configure connects the bus. periph allows a port to be connected once, so
// later calls must repeat the same settings.
func (t *Transport) Configure(freq physic.Frequency, mode spi.Mode, bits int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return st25r95.NewTransportClosedError("Configure", t.portName)
	}
	return t.connectLocked(st25r95.BusConfig{Frequency: freq, Mode: mode, Bits: bits})
}

func (t *Transport) connectLocked(bus st25r95.BusConfig) error {
	if t.conn != nil {
		if bus != t.bus {
			return st25r95.NewConfigureError("Configure", t.portName,
				fmt.Errorf("%w: have %v/%v/%d", ErrReconfigure, t.bus.Frequency, t.bus.Mode, t.bus.Bits))
		}
		return nil
	}

	conn, err := t.port.Connect(bus.Frequency, bus.Mode|spi.NoCS, bus.Bits)
	if err != nil {
		return st25r95.NewConfigureError("Configure", t.portName, err)
	}
	t.conn = conn
	t.bus = bus
	return nil
}

// ensureConnectedLocked connects with the driver defaults when nothing
// called Configure first
func (t *Transport) ensureConnectedLocked() error {
	if t.conn != nil {
		return nil
	}
	return t.connectLocked(st25r95.BusConfig{
		Frequency: st25r95.DefaultFrequency,
		Mode:      st25r95.DefaultSPIMode,
		Bits:      8,
	})
}

// WriteByte clocks one byte out, discarding what comes back
func (t *Transport) WriteByte(b byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return st25r95.NewTransportClosedError("WriteByte", t.portName)
	}
	if err := t.ensureConnectedLocked(); err != nil {
		return err
	}
	t.tx[0] = b
	if err := t.conn.Tx(t.tx[:], nil); err != nil {
		return st25r95.NewTransportWriteError("WriteByte", t.portName, err)
	}
	return nil
}

// ReadByte clocks a dummy byte out and returns the byte clocked in
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, st25r95.NewTransportClosedError("ReadByte", t.portName)
	}
	if err := t.ensureConnectedLocked(); err != nil {
		return 0, err
	}
	t.tx[0] = frame.DummyByte
	if err := t.conn.Tx(t.tx[:], t.rx[:]); err != nil {
		return 0, st25r95.NewTransportReadError("ReadByte", t.portName, err)
	}
	return t.rx[0], nil
}

// Select drives chip-select low
func (t *Transport) Select() error {
	return t.drive(t.cs, gpio.Low, "Select", st25r95.NewFramingError)
}

// Deselect drives chip-select high
func (t *Transport) Deselect() error {
	return t.drive(t.cs, gpio.High, "Deselect", st25r95.NewFramingError)
}

// SetIRQIn drives the IRQ_IN line
func (t *Transport) SetIRQIn(level gpio.Level) error {
	return t.drive(t.irq, level, "SetIRQIn", st25r95.NewAuxLineError)
}

func (t *Transport) drive(
	p gpio.PinOut,
	level gpio.Level,
	op string,
	wrap func(op, port string, cause error) *st25r95.TransportError,
) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return st25r95.NewTransportClosedError(op, t.portName)
	}
	if err := p.Out(level); err != nil {
		return wrap(op, t.portName, err)
	}
	return nil
}

// Close deselects the chip and closes the port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.cs.Out(gpio.High)
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close SPI port %s: %w", t.portName, err)
	}
	return nil
}

// Type implements st25r95.Transport
func (*Transport) Type() st25r95.TransportType {
	return st25r95.TransportSPI
}

// PortName returns the SPI port name
func (t *Transport) PortName() string {
	return t.portName
}

var _ st25r95.Transport = (*Transport)(nil)
