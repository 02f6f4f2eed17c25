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

package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	bugst "go.bug.st/serial"
)

// PTYPath opens a fresh pseudo-terminal instead of a real device. The slave
// side can then be attached to from another program for testing.
const PTYPath = "/dev/ptmx"

var (
	ErrUnsetSpeed  = errors.New("baud rate not set")
	ErrUnsupported = errors.New("operation not supported by port")
)

// Port is an open serial connection. Read returns (0, nil) when the read
// timeout expires without data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	Break(d time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Named is implemented by ports that have a peer path distinct from the one
// they were opened with, such as a PTY master.
type Named interface {
	Name() string
}

// Factory opens a Port. It exists so the session can be driven by mocks.
type Factory func(path string, speed Speed) (Port, error)

// Open is the default Factory. It opens path as 8N1 at the given speed, or
// a new PTY when path is PTYPath.
func Open(path string, speed Speed) (Port, error) {
	if path == PTYPath {
		pty, err := OpenPTY()
		if err != nil {
			return nil, err
		}
		return pty, nil
	}

	if !speed.Valid() {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, ErrUnsetSpeed)
	}

	port, err := bugst.Open(path, &bugst.Mode{
		BaudRate: speed.Rate(),
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	log.Debug().Str("path", path).Stringer("baud", speed).Msg("opened serial port")
	return port, nil
}

// Ports lists the serial devices visible to the system.
func Ports() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
