// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
)

const usage = `Usage: modbus-rtu-tester <command> [flags]

Commands:
  read      read coils, discrete inputs, holding or input registers
  write     write one coil (FC5) or one holding register (FC16)
  scan      probe a range of slave ids for responding devices; an exception
            reply counts as a device, a garbled reply stops the scan
  poll      read repeatedly at a fixed interval
  simulate  answer requests on a serial port as one or more slaves

Run 'modbus-rtu-tester <command> --help' for the flags of a command.
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("no command given")
	}

	var cmd command
	switch args[0] {
	case "read":
		cmd = &readCommand{}
	case "write":
		cmd = &writeCommand{}
	case "scan":
		cmd = &scanCommand{}
	case "poll":
		cmd = &pollCommand{}
	case "simulate":
		cmd = &simulateCommand{}
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(stdout)
	config.AddFlags(fs)
	cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Log)

	return cmd.run(ctx, cfg, stdout)
}

// command is one CLI subcommand.
type command interface {
	flags(fs *pflag.FlagSet)
	run(ctx context.Context, cfg *config.Config, stdout io.Writer) error
}

// describeError renders an error for the terminal.
func describeError(err error) string {
	var exc *modbus.ExceptionError
	switch {
	case errors.As(err, &exc):
		return fmt.Sprintf("Modbus exception %d: %s", exc.ExceptionCode, exc.Description())
	case errors.Is(err, modbus.ErrTimeout):
		return fmt.Sprintf("No response from device: %v", err)
	case errors.Is(err, modbus.ErrPortUnavailable):
		return fmt.Sprintf("Serial port unavailable: %v", err)
	case modbus.IsProtocolError(err):
		return fmt.Sprintf("Protocol error (check wiring, line settings and slave id): %v", err)
	}
	return fmt.Sprintf("Error: %v", err)
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		// stdout carries command results
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
