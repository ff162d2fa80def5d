// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/transport"
)

// pollTimeout bounds a single blocking read on the driver, so deadlines are observed promptly.
const pollTimeout = 20 * time.Millisecond

var openSerial = func(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

// SerialOpener opens physical serial ports through github.com/grid-x/serial.
type SerialOpener struct{}

// NewSerialOpener returns the default Opener.
func NewSerialOpener() *SerialOpener {
	return &SerialOpener{}
}

// Open opens and configures the device named in cfg.
func (SerialOpener) Open(cfg config.SerialConfig) (transport.Port, error) {
	sc := serialConfig(cfg)
	port, err := openSerial(sc)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open %s: %v", modbus.ErrPortUnavailable, cfg.Device, err)
	}
	slog.Debug("serial port opened", "device", cfg.Device, "baudRate", cfg.BaudRate, "parity", cfg.Parity)
	return newSerialPort(cfg.Device, port), nil
}

func serialConfig(cfg config.SerialConfig) *serial.Config {
	sc := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  pollTimeout,
	}
	if cfg.Timeout > 0 && cfg.Timeout < pollTimeout {
		sc.Timeout = cfg.Timeout
	}
	if cfg.RS485 {
		sc.RS485.Enabled = true
		sc.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		sc.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		sc.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		sc.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		sc.RS485.RxDuringTx = cfg.RxDuringTx
	}
	return sc
}

// serialPort wraps a driver port to add deadline support and error classification.
type serialPort struct {
	device   string
	port     io.ReadWriteCloser
	deadline time.Time
}

func newSerialPort(device string, port io.ReadWriteCloser) *serialPort {
	return &serialPort{device: device, port: port}
}

// Read returns modbus.ErrTimeout without touching the port once the deadline has passed.
// Driver read timeouts before the deadline are masked and reported as an empty read.
func (p *serialPort) Read(buf []byte) (int, error) {
	if !p.deadline.IsZero() && time.Now().After(p.deadline) {
		return 0, modbus.ErrTimeout
	}
	n, err := p.port.Read(buf)
	if err != nil {
		if n > 0 || isDriverTimeout(err) {
			return n, nil
		}
		return n, fmt.Errorf("%w: read %s: %v", modbus.ErrIO, p.device, err)
	}
	return n, nil
}

// Write sends all of buf or fails with modbus.ErrIO.
func (p *serialPort) Write(buf []byte) (int, error) {
	n, err := p.port.Write(buf)
	if err != nil {
		return n, fmt.Errorf("%w: write %s: %v", modbus.ErrIO, p.device, err)
	}
	if n != len(buf) {
		return n, fmt.Errorf("%w: short write to %s, %d of %d bytes", modbus.ErrIO, p.device, n, len(buf))
	}
	return n, nil
}

func (p *serialPort) SetDeadline(deadline time.Time) error {
	p.deadline = deadline
	return nil
}

func (p *serialPort) Close() error {
	return p.port.Close()
}

// isDriverTimeout recognises the driver's "no data within Timeout" result.
func isDriverTimeout(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return err.Error() == "serial: timeout"
}
