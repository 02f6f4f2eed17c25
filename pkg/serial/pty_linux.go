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

//go:build linux

package serial

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// PTY is the master side of a pseudo-terminal pair, used in place of a real
// serial device. The slave end stays open for the life of the PTY so peers
// can come and go without the master seeing a hangup.
type PTY struct {
	f       *os.File
	tty     *os.File
	timeout atomic.Int64
}

// OpenPTY allocates a new PTY pair and puts it in raw mode.
func OpenPTY() (*PTY, error) {
	master, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", PTYPath, err)
	}

	if _, err := term.MakeRaw(int(tty.Fd())); err != nil {
		_ = tty.Close()
		_ = master.Close()
		return nil, fmt.Errorf("failed to set pty raw mode: %w", err)
	}

	return &PTY{f: master, tty: tty}, nil
}

// Name returns the slave device path other programs should open.
func (p *PTY) Name() string {
	return p.tty.Name()
}

func (p *PTY) Read(b []byte) (int, error) {
	if d := time.Duration(p.timeout.Load()); d > 0 {
		if err := p.f.SetReadDeadline(time.Now().Add(d)); err != nil {
			return 0, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	n, err := p.f.Read(b)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, nil
	default:
		return n, fmt.Errorf("failed to read from pty: %w", err)
	}
}

func (p *PTY) Write(b []byte) (int, error) {
	n, err := p.f.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write to pty: %w", err)
	}
	return n, nil
}

func (p *PTY) Close() error {
	ttyErr := p.tty.Close()
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("failed to close pty: %w", err)
	}
	if ttyErr != nil {
		return fmt.Errorf("failed to close pty slave: %w", ttyErr)
	}
	return nil
}

func (p *PTY) SetReadTimeout(t time.Duration) error {
	p.timeout.Store(int64(t))
	return nil
}

func (*PTY) Break(time.Duration) error {
	return ErrUnsupported
}

func (*PTY) SetDTR(bool) error {
	return ErrUnsupported
}

func (*PTY) SetRTS(bool) error {
	return ErrUnsupported
}
