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


package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bytenuts/bytenuts/pkg/config"
	"github.com/bytenuts/bytenuts/pkg/helpers"
	"github.com/bytenuts/bytenuts/pkg/serial"
	"github.com/bytenuts/bytenuts/pkg/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var ErrNotTerminal = errors.New("stdin is not a terminal")

// App holds the process-level dependencies of the root command.
type App struct {
	Fs          afero.Fs
	IsTerminal  func() bool
	InitLogging func(debug bool) error
	ListPorts   func() ([]string, error)
	Run         func(ctx context.Context, cfg *config.Values) error
}

func DefaultApp() App {
	return App{
		Fs: afero.NewOsFs(),
		IsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // fd fits in int
		},
		InitLogging: func(debug bool) error {
			return helpers.InitLogging(helpers.StateDir(), debug)
		},
		ListPorts: serial.Ports,
		Run: func(ctx context.Context, cfg *config.Values) error {
			return service.Run(ctx, cfg, service.DefaultOptions())
		},
	}
}

type flags struct {
	baud       string
	logPath    string
	configPath string
	escape     string
	colors     bool
	echo       bool
	noCRLF     bool
	normalize  bool
	debug      bool
	list       bool
}

// NewRootCmd builds the bytenuts command around app.
func NewRootCmd(app App) *cobra.Command {
	f := &flags{}
	var cfg config.Values

	cmd := &cobra.Command{
		Use:   config.AppName + " [flags] <serial path>",
		Short: "Interactive serial terminal",
		Long: `Bytenuts opens a serial device and gives it the terminal: incoming bytes
scroll in the output view, keystrokes go to the device. Press the escape
key (^B by default) followed by h for the list of session commands.`,
		Version:       config.AppVersion,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.list {
				return nil
			}
			ov, err := f.overrides(cmd.Flags())
			if err != nil {
				return err
			}
			vals := config.BaseDefaults
			vals.SerialPath = args[0]
			vals.LogPath = f.logPath
			vals.ConfigPath = f.configPath
			cfg = config.Load(app.Fs, vals, ov)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			if f.list {
				return listPorts(cmd, app)
			}

			if !app.IsTerminal() {
				return ErrNotTerminal
			}
			if err := app.InitLogging(f.debug); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			log.Info().Str("serial", cfg.SerialPath).Stringer("baud", cfg.Baud).Msg("starting session")

			ctx, stop := signal.NotifyContext(cmd.Context(),
				os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			return app.Run(ctx, &cfg)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	f.register(cmd.Flags())

	return cmd
}

func (f *flags) register(fl *pflag.FlagSet) {
	fl.SortFlags = false
	fl.StringVarP(&f.baud, "baud", "b", strconv.Itoa(config.BaseDefaults.Baud.Rate()),
		"line rate in bits per second")
	fl.StringVarP(&f.logPath, "log", "l", "", "append received bytes to this file")
	fl.StringVarP(&f.configPath, "config", "c", config.DefaultConfigPath(), "config file path")
	fl.BoolVar(&f.colors, "colors", config.BaseDefaults.Colors, "render ANSI colours (0|1)")
	fl.BoolVar(&f.echo, "echo", config.BaseDefaults.Echo, "echo sent bytes locally (0|1)")
	fl.BoolVar(&f.noCRLF, "no_crlf", config.BaseDefaults.NoCRLF, "send a bare CR for enter (0|1)")
	fl.BoolVar(&f.normalize, "normalize", config.BaseDefaults.Normalize, "treat a bare LF as CRLF (0|1)")
	fl.StringVar(&f.escape, "escape", config.EscapeString(config.BaseDefaults.Escape),
		"session escape key, a character or ^X")
	fl.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fl.BoolVar(&f.list, "list", false, "print available serial ports and exit")
}

// overrides collects the flags given explicitly on the command line. Flags
// left at their default don't override the config file.
func (f *flags) overrides(fl *pflag.FlagSet) (config.Overrides, error) {
	var ov config.Overrides

	if fl.Changed("baud") {
		sp := serial.ParseSpeed(f.baud)
		ov.Baud = &sp
	}
	if fl.Changed("escape") {
		esc, err := config.ParseEscape(f.escape)
		if err != nil {
			return ov, fmt.Errorf("invalid escape %q: %w", f.escape, err)
		}
		ov.Escape = &esc
	}
	if fl.Changed("colors") {
		ov.Colors = &f.colors
	}
	if fl.Changed("echo") {
		ov.Echo = &f.echo
	}
	if fl.Changed("no_crlf") {
		ov.NoCRLF = &f.noCRLF
	}
	if fl.Changed("normalize") {
		ov.Normalize = &f.normalize
	}
	return ov, nil
}

func listPorts(cmd *cobra.Command, app App) error {
	ports, err := app.ListPorts()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(out, p)
	}
	return nil
}

// Execute runs the root command against the real process environment.
func Execute() error {
	return NewRootCmd(DefaultApp()).Execute() //nolint:wrapcheck // printed by main
}
