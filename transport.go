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
	"io"

	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Transport is the byte-level link to one ST25R95. A Transport is owned by
// exactly one Device; nothing else may drive it while the Device is in use.
//
// WriteByte and ReadByte each clock one byte full-duplex; ReadByte clocks
// out a dummy 0x00. Select and Deselect drive the framing (chip-select)
// line that brackets one transaction. SetIRQIn drives the IRQ_IN line used
// for the reset pulse.
type Transport interface {
	io.ByteWriter
	io.ByteReader

	// Configure sets clock frequency, SPI mode and word size
	Configure(freq physic.Frequency, mode spi.Mode, bits int) error

	// Select asserts the framing signal (chip-select low)
	Select() error

	// Deselect releases the framing signal (chip-select high)
	Deselect() error

	// SetIRQIn drives the auxiliary IRQ_IN line
	SetIRQIn(level gpio.Level) error

	// Close releases the underlying bus and pins
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportSPI represents an SPI bus transport
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// PortNamer is implemented by transports that can name their bus, used to
// label wire traces
type PortNamer interface {
	PortName() string
}

// Transaction is one framed exchange recorded by MockTransport
type Transaction struct {
	Out []byte // bytes written, in order
	In  []byte // bytes read, in order
}

// AuxEvent is one IRQ_IN level change recorded by MockTransport
type AuxEvent struct {
	Level gpio.Level
}

// BusConfig is one Configure call recorded by MockTransport
type BusConfig struct {
	Frequency physic.Frequency
	Mode      spi.Mode
	Bits      int
}

// MockTransport provides a scripted implementation of Transport for testing.
// ReadByte returns queued bytes in order and 0x00 once the queue is empty.
type MockTransport struct {
	writeErr     error
	readErr      error
	selectErr    error
	auxErr       error
	current      *Transaction
	rx           []byte
	transactions []Transaction
	auxEvents    []AuxEvent
	configs      []BusConfig
	writes       int
	reads        int
	mu           syncutil.Mutex
	closed       bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// WriteByte implements io.ByteWriter
func (m *MockTransport) WriteByte(b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewTransportClosedError("WriteByte", "mock")
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	if m.current != nil {
		m.current.Out = append(m.current.Out, b)
	}
	return nil
}

// ReadByte implements io.ByteReader
func (m *MockTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, NewTransportClosedError("ReadByte", "mock")
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	m.reads++
	var b byte
	if len(m.rx) > 0 {
		b = m.rx[0]
		m.rx = m.rx[1:]
	}
	if m.current != nil {
		m.current.In = append(m.current.In, b)
	}
	return b, nil
}

// Configure implements Transport
func (m *MockTransport) Configure(freq physic.Frequency, mode spi.Mode, bits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = append(m.configs, BusConfig{Frequency: freq, Mode: mode, Bits: bits})
	return nil
}

// Select implements Transport
func (m *MockTransport) Select() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.selectErr != nil {
		return m.selectErr
	}
	if m.current != nil {
		return errors.New("mock: select while already selected")
	}
	m.current = &Transaction{}
	return nil
}

// Deselect implements Transport
func (m *MockTransport) Deselect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.transactions = append(m.transactions, *m.current)
		m.current = nil
	}
	return nil
}

// SetIRQIn implements Transport
func (m *MockTransport) SetIRQIn(level gpio.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.auxErr != nil {
		return m.auxErr
	}
	m.auxEvents = append(m.auxEvents, AuxEvent{Level: level})
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// PortName implements PortNamer
func (*MockTransport) PortName() string {
	return "mock"
}

// Test helper methods

// QueueRX appends raw bytes to be returned by ReadByte
func (m *MockTransport) QueueRX(data ...byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// QueueResponse queues the bytes of one response frame: status, length, data
func (m *MockTransport) QueueResponse(status byte, data []byte) {
	m.QueueRX(append([]byte{status, byte(len(data))}, data...)...)
}

// QueueReady queues a poll byte with the ready flag set
func (m *MockTransport) QueueReady() {
	m.QueueRX(0x08)
}

// SetWriteError makes every WriteByte fail with err (nil clears it)
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// SetReadError makes every ReadByte fail with err (nil clears it)
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetSelectError makes Select fail with err (nil clears it)
func (m *MockTransport) SetSelectError(err error) {
	m.mu.Lock()
	m.selectErr = err
	m.mu.Unlock()
}

// SetAuxError makes SetIRQIn fail with err (nil clears it)
func (m *MockTransport) SetAuxError(err error) {
	m.mu.Lock()
	m.auxErr = err
	m.mu.Unlock()
}

// Transactions returns a copy of all completed framed transactions
func (m *MockTransport) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

// AuxEvents returns the recorded IRQ_IN levels
func (m *MockTransport) AuxEvents() []AuxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuxEvent, len(m.auxEvents))
	copy(out, m.auxEvents)
	return out
}

// Configs returns the recorded Configure calls
func (m *MockTransport) Configs() []BusConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BusConfig, len(m.configs))
	copy(out, m.configs)
	return out
}

// WriteCount returns how many bytes have been written
func (m *MockTransport) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ReadCount returns how many bytes have been read
func (m *MockTransport) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Pending returns how many queued RX bytes have not been consumed
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// Reset clears recorded activity, queued bytes and injected errors
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = nil
	m.transactions = nil
	m.auxEvents = nil
	m.configs = nil
	m.current = nil
	m.writes = 0
	m.reads = 0
	m.writeErr = nil
	m.readErr = nil
	m.selectErr = nil
	m.auxErr = nil
	m.closed = false
}
