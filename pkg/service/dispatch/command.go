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

package dispatch

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bytenuts/bytenuts/pkg/config"
	"github.com/bytenuts/bytenuts/pkg/serial"
	"github.com/bytenuts/bytenuts/pkg/ui/surface"
	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog/log"
)

const commandPrompt = ":"

type commandFunc func(e *Engine, args string) error

var commands = map[string]commandFunc{
	"quit":  cmdQuit,
	"q":     cmdQuit,
	"stats": cmdStats,
	"clear": cmdClear,
	"help":  cmdHelp,
	"send":  cmdSend,
	"hex":   cmdHex,
	"break": cmdBreak,
}

// escapeAction handles the one key read after the escape key. Unknown keys
// are discarded.
func (e *Engine) escapeAction(ev *tcell.EventKey) error {
	if b := KeyBytes(ev); len(b) == 1 && b[0] == e.cfg.Escape {
		return e.send(b, false)
	}

	switch ev.Key() {
	case tcell.KeyPgUp:
		e.scrollHalfPage(true)
		return nil
	case tcell.KeyPgDn:
		e.scrollHalfPage(false)
		return nil
	case tcell.KeyRune:
	default:
		return nil
	}
	if ev.Modifiers()&tcell.ModAlt != 0 {
		return nil
	}

	switch ev.Rune() {
	case 'q':
		e.quit()
	case 's':
		e.stats()
	case 'h', '?':
		e.help()
	case 'c':
		e.surf.Clear()
	case 'b':
		e.sendBreak()
	case 'd':
		e.dtr = !e.dtr
		e.setLine("dtr", e.dtr, e.st.Port().SetDTR)
	case 'r':
		e.rts = !e.rts
		e.setLine("rts", e.rts, e.st.Port().SetRTS)
	case 'k':
		e.scrollHalfPage(true)
	case 'j':
		e.scrollHalfPage(false)
	case 'G':
		e.surf.ScrollReset()
	case ':':
		e.enterCommand()
	}
	return nil
}

func (e *Engine) scrollHalfPage(up bool) {
	n := max(e.surf.OutputRows()/2, 1)
	if up {
		e.surf.ScrollUp(n)
	} else {
		e.surf.ScrollDown(n)
	}
}

func (e *Engine) stats() {
	for _, line := range e.cfg.StatsLines() {
		e.surf.Notice(line)
	}
}

func (e *Engine) help() {
	esc := config.EscapeString(e.cfg.Escape)
	lines := []string{
		fmt.Sprintf("%s %s    send %s", esc, esc, esc),
		esc + " q     quit",
		esc + " s     statistics",
		esc + " h ?   this help",
		esc + " c     clear output",
		esc + " b     send break",
		esc + " d     toggle DTR",
		esc + " r     toggle RTS",
		esc + " k j   scroll back / forward (also PgUp PgDn)",
		esc + " G     scroll to newest",
		esc + " :     command: quit stats clear help send <text> hex <bytes> break",
	}
	for _, line := range lines {
		e.surf.Notice(line)
	}
}

func (e *Engine) sendBreak() {
	err := e.st.Port().Break(BreakDuration)
	switch {
	case errors.Is(err, serial.ErrUnsupported):
		e.surf.SetStatus(surface.OwnerCommand, "break unsupported")
	case err != nil:
		log.Warn().Err(err).Msg("failed to send break")
		e.surf.SetStatus(surface.OwnerCommand, "break failed")
	default:
		e.surf.SetStatus(surface.OwnerCommand, "break sent")
	}
}

func (e *Engine) setLine(name string, level bool, set func(bool) error) {
	onOff := "off"
	if level {
		onOff = "on"
	}
	err := set(level)
	switch {
	case errors.Is(err, serial.ErrUnsupported):
		e.surf.SetStatus(surface.OwnerCommand, "%s unsupported", name)
	case err != nil:
		log.Warn().Err(err).Str("line", name).Msg("failed to set modem line")
		e.surf.SetStatus(surface.OwnerCommand, "%s failed", name)
	default:
		e.surf.SetStatus(surface.OwnerCommand, "%s %s", name, onOff)
	}
}

func (e *Engine) enterCommand() {
	e.setMode(ModeCommand)
	e.line = e.line[:0]
	e.surf.SetStatus(surface.OwnerCommand, "command")
	e.surf.SetInput(commandPrompt, "")
}

func (e *Engine) leaveCommand() {
	e.setMode(ModeNormal)
	e.line = e.line[:0]
	e.surf.SetInput("", "")
}

// editCommand is the line editor used in command mode.
func (e *Engine) editCommand(ev *tcell.EventKey) error {
	switch ev.Key() {
	case tcell.KeyEnter:
		cmd := string(e.line)
		e.leaveCommand()
		return e.execute(cmd)
	case tcell.KeyEsc:
		e.leaveCommand()
		e.surf.SetStatus(surface.OwnerCommand, "")
		return nil
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(e.line) == 0 {
			e.leaveCommand()
			e.surf.SetStatus(surface.OwnerCommand, "")
			return nil
		}
		e.line = e.line[:len(e.line)-1]
	case tcell.KeyCtrlU:
		e.line = e.line[:0]
	case tcell.KeyRune:
		e.line = append(e.line, ev.Rune())
	default:
		return nil
	}
	e.surf.SetInput(commandPrompt, string(e.line))
	return nil
}

func (e *Engine) execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		e.surf.SetStatus(surface.OwnerCommand, "")
		return nil
	}

	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	cmd, ok := commands[name]
	if !ok {
		e.surf.SetStatus(surface.OwnerCommand, "unknown: %s", name)
		return nil
	}

	log.Debug().Str("command", name).Msg("running command")
	e.surf.SetStatus(surface.OwnerCommand, "")
	return cmd(e, args)
}

func cmdQuit(e *Engine, _ string) error {
	e.quit()
	return nil
}

func cmdStats(e *Engine, _ string) error {
	e.stats()
	return nil
}

func cmdClear(e *Engine, _ string) error {
	e.surf.Clear()
	return nil
}

func cmdHelp(e *Engine, _ string) error {
	e.help()
	return nil
}

// cmdSend sends args followed by the line ending.
func cmdSend(e *Engine, args string) error {
	return e.send([]byte(args+"\r"), true)
}

// cmdHex sends raw bytes given as hex, with or without spaces.
func cmdHex(e *Engine, args string) error {
	data, err := hex.DecodeString(strings.Join(strings.Fields(args), ""))
	if err != nil || len(data) == 0 {
		e.surf.SetStatus(surface.OwnerCommand, "bad hex: %s", args)
		return nil
	}
	return e.send(data, false)
}

func cmdBreak(e *Engine, _ string) error {
	e.sendBreak()
	return nil
}
