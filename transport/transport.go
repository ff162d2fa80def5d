// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"io"
	"time"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// Port is an opened serial byte stream, exclusively owned by one transaction.
//
// Read returns modbus.ErrTimeout once the deadline set by SetDeadline has passed.
// Before the deadline a Read may return zero bytes and a nil error.
type Port interface {
	io.ReadWriteCloser
	SetDeadline(deadline time.Time) error
}

// Opener opens a Port for the given line settings.
// Failures to open or configure the device wrap modbus.ErrPortUnavailable.
type Opener interface {
	Open(cfg config.SerialConfig) (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(cfg config.SerialConfig) (Port, error)

func (f OpenerFunc) Open(cfg config.SerialConfig) (Port, error) {
	return f(cfg)
}

// RequestHandler answers a request addressed to slaveID on the slave side of a line.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
