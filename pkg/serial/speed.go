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
	"strconv"
	"strings"
)

// Speed is one of the standard termios line rates. The zero value B0 means
// the rate is unset.
type Speed int

const (
	B0       Speed = 0
	B50      Speed = 50
	B75      Speed = 75
	B110     Speed = 110
	B134     Speed = 134
	B150     Speed = 150
	B200     Speed = 200
	B300     Speed = 300
	B600     Speed = 600
	B1200    Speed = 1200
	B1800    Speed = 1800
	B2400    Speed = 2400
	B4800    Speed = 4800
	B9600    Speed = 9600
	B19200   Speed = 19200
	B38400   Speed = 38400
	B57600   Speed = 57600
	B115200  Speed = 115200
	B230400  Speed = 230400
	B460800  Speed = 460800
	B500000  Speed = 500000
	B576000  Speed = 576000
	B921600  Speed = 921600
	B1000000 Speed = 1000000
	B1152000 Speed = 1152000
	B1500000 Speed = 1500000
	B2000000 Speed = 2000000
	B2500000 Speed = 2500000
	B3000000 Speed = 3000000
	B3500000 Speed = 3500000
	B4000000 Speed = 4000000
)

// Speeds lists every supported rate in ascending order, B0 excluded.
var Speeds = []Speed{
	B50, B75, B110, B134, B150, B200, B300, B600, B1200, B1800, B2400,
	B4800, B9600, B19200, B38400, B57600, B115200, B230400, B460800,
	B500000, B576000, B921600, B1000000, B1152000, B1500000, B2000000,
	B2500000, B3000000, B3500000, B4000000,
}

// ParseSpeed converts a rate such as "115200" (or "B115200") to a Speed.
// Anything outside the supported set maps to B0 rather than failing.
//
// Note: 115200 maps to B115200. Older tables labelled this entry B1152000,
// which selected a rate ten times too fast.
func ParseSpeed(s string) Speed {
	s = strings.TrimPrefix(strings.TrimSpace(s), "B")
	n, err := strconv.Atoi(s)
	if err != nil {
		return B0
	}
	for _, sp := range Speeds {
		if int(sp) == n {
			return sp
		}
	}
	return B0
}

// Rate returns the line rate in bits per second.
func (s Speed) Rate() int {
	return int(s)
}

// Valid reports whether s is one of the supported, set rates.
func (s Speed) Valid() bool {
	return s != B0 && ParseSpeed(strconv.Itoa(int(s))) == s
}

func (s Speed) String() string {
	if !s.Valid() {
		return "B0"
	}
	return "B" + strconv.Itoa(int(s))
}
