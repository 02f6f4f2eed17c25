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

//go:build !linux

package serial

import (
	"time"
)

// PTY is only available on Linux.
type PTY struct{}

func OpenPTY() (*PTY, error) {
	return nil, ErrUnsupported
}

func (*PTY) Name() string { return "" }
func (*PTY) Read([]byte) (int, error) { return 0, ErrUnsupported }
func (*PTY) Write([]byte) (int, error) { return 0, ErrUnsupported }
func (*PTY) Close() error { return nil }
func (*PTY) SetReadTimeout(time.Duration) error { return ErrUnsupported }
func (*PTY) Break(time.Duration) error { return ErrUnsupported }
func (*PTY) SetDTR(bool) error { return ErrUnsupported }
func (*PTY) SetRTS(bool) error { return ErrUnsupported }
