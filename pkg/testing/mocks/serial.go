// Bytenuts
// Copyright (c) 2026 The Bytenuts Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Bytenuts.
//
// Bytenuts is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Bytenuts is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Bytenuts.  If not, see <http://www.gnu.org/licenses/>.

package mocks

import (
	"errors"
	"sync"
	"time"

	"github.com/bytenuts/bytenuts/pkg/helpers/syncutil"
	"github.com/bytenuts/bytenuts/pkg/serial"
)

var ErrPortClosed = errors.New("mock port closed")

// MockPort is an in-memory serial.Port. Data passed to Feed is returned by
// Read; everything written is recorded. Read waits for data up to the read
// timeout and then returns (0, nil) like a real port.
type MockPort struct {
	feed       chan []byte
	wake       chan struct{}
	closed     chan struct{}
	readErr    error
	writeErr   error
	closeErr   error
	dtr        *bool
	rts        *bool
	pending    []byte
	written    []byte
	breaks     []time.Duration
	timeout    time.Duration
	closeCalls int
	closeOnce  sync.Once
	mu         syncutil.Mutex
}

// NewMockPort creates an open mock port.
func NewMockPort() *MockPort {
	return &MockPort{
		feed:   make(chan []byte, 64),
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Factory returns a serial.Factory that always hands out m.
func (m *MockPort) Factory() serial.Factory {
	return func(_ string, _ serial.Speed) (serial.Port, error) {
		return m, nil
	}
}

// Feed queues data to be returned by Read.
func (m *MockPort) Feed(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.feed <- cp
}

// FailReads makes every following Read return err, waking a blocked Read.
func (m *MockPort) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// FailWrites makes every following Write return err.
func (m *MockPort) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailClose makes Close return err.
func (m *MockPort) FailClose(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	if len(m.pending) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	timeout := m.timeout
	m.mu.Unlock()

	if timeout <= 0 {
		timeout = 10 * time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.closed:
		return 0, ErrPortClosed
	case <-m.wake:
		m.mu.Lock()
		defer m.mu.Unlock()
		return 0, m.readErr
	case data := <-m.feed:
		n := copy(p, data)
		if n < len(data) {
			m.mu.Lock()
			m.pending = append(m.pending, data[n:]...)
			m.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isClosed() {
		return 0, ErrPortClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.written = append(m.written, p...)
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.closeOnce.Do(func() { close(m.closed) })
	return m.closeErr
}

func (m *MockPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = t
	return nil
}

func (m *MockPort) Break(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaks = append(m.breaks, d)
	return nil
}

func (m *MockPort) SetDTR(dtr bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dtr = &dtr
	return nil
}

func (m *MockPort) SetRTS(rts bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rts = &rts
	return nil
}

func (m *MockPort) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of everything written so far.
func (m *MockPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.written))
	copy(out, m.written)
	return out
}

// CloseCalls returns how many times Close was called.
func (m *MockPort) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// Closed reports whether Close has been called.
func (m *MockPort) Closed() bool {
	return m.isClosed()
}

// Breaks returns the durations of the breaks sent.
func (m *MockPort) Breaks() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.breaks...)
}

// DTR returns the last DTR level set, and whether it was ever set.
func (m *MockPort) DTR() (level, set bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dtr == nil {
		return false, false
	}
	return *m.dtr, true
}

// RTS returns the last RTS level set, and whether it was ever set.
func (m *MockPort) RTS() (level, set bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rts == nil {
		return false, false
	}
	return *m.rts, true
}

// ReadTimeout returns the last read timeout set.
func (m *MockPort) ReadTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}
