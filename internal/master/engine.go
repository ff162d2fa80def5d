// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master implements the Modbus RTU master transaction engine.
package master

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/modbus/codec"
	rtupacket "github.com/ffutop/modbus-rtu-tester/modbus/rtu"
	"github.com/ffutop/modbus-rtu-tester/transport"
	"github.com/ffutop/modbus-rtu-tester/transport/rtu"
)

// TraceFunc receives the raw request frame and whatever arrived in response.
// It is called once per exchange that put bytes on the wire, including failed ones.
type TraceFunc func(request, response []byte)

// Engine runs one request/response exchange at a time over ports obtained from an Opener.
// The port is opened and closed within each call.
type Engine struct {
	opener transport.Opener

	// Trace, when set, is invoked for every exchange. Panics in it are recovered.
	Trace TraceFunc

	mu           sync.Mutex
	lastActivity time.Time
}

// NewEngine creates an Engine using opener for every transaction.
func NewEngine(opener transport.Opener) *Engine {
	return &Engine{opener: opener}
}

// Execute sends one request to slaveID and returns the response PDU.
//
// Arguments are validated before any I/O. ctx is only consulted before the port is opened;
// once the request is written the call waits for the response or cfg.Timeout.
// A device-reported exception is returned as *modbus.ExceptionError.
func (e *Engine) Execute(ctx context.Context, cfg config.SerialConfig, slaveID int, functionCode modbus.FunctionCode, payload []byte) (modbus.ProtocolDataUnit, error) {
	if err := cfg.Validate(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if !modbus.ValidSlaveID(slaveID) {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("%w: got %d", modbus.ErrInvalidAddressRange, slaveID)
	}
	if err := validateRequest(functionCode, payload); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	req := &rtupacket.ApplicationDataUnit{
		SlaveID: byte(slaveID),
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: functionCode, Data: payload},
	}
	frame, err := req.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	raw, err := e.exchange(cfg, frame)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("slave %d %v: %w", slaveID, functionCode, err)
	}

	resp, err := rtupacket.DecodeResponse(req, raw)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("slave %d %v: %w", slaveID, functionCode, err)
	}
	return resp.Pdu, nil
}

// exchange opens the port, writes frame and reads one response frame.
func (e *Engine) exchange(cfg config.SerialConfig, frame []byte) ([]byte, error) {
	port, err := e.opener.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := port.Close(); err != nil {
			slog.Debug("failed to close port", "device", cfg.Device, "err", err)
		}
	}()

	// keep the t3.5 silence between consecutive frames
	if wait := time.Until(e.lastActivity.Add(rtu.FrameDelay(cfg.BaudRate))); wait > 0 {
		time.Sleep(wait)
	}

	start := time.Now()
	raw, err := rtu.Send(port, frame, cfg.Timeout)
	e.lastActivity = time.Now()
	slog.Debug("exchange finished", "device", cfg.Device, "elapsed", e.lastActivity.Sub(start),
		"wireTime", rtu.TransactionTime(cfg.BaudRate, len(frame), len(raw)))
	e.trace(frame, raw)
	return raw, err
}

func (e *Engine) trace(request, response []byte) {
	if e.Trace == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("frame trace callback panicked", "panic", r)
		}
	}()
	e.Trace(append([]byte(nil), request...), append([]byte(nil), response...))
}

// validateRequest checks payload shape and quantity limits for the function codes a master originates.
func validateRequest(functionCode modbus.FunctionCode, payload []byte) error {
	if !functionCode.Valid() {
		return fmt.Errorf("%w: function code %v is not originated by this master", modbus.ErrInvalidArgument, functionCode)
	}

	switch functionCode {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		return validateRead(payload, modbus.MaxReadBits)
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		return validateRead(payload, modbus.MaxReadRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		if len(payload) != 4 {
			return fmt.Errorf("%w: write coil payload of %d bytes", modbus.ErrInvalidArgument, len(payload))
		}
		if _, err := codec.ParseCoilValue(binary.BigEndian.Uint16(payload[2:])); err != nil {
			return fmt.Errorf("%w: coil value 0x%04X", modbus.ErrValueOutOfRange, binary.BigEndian.Uint16(payload[2:]))
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		if len(payload) < 5 {
			return fmt.Errorf("%w: write registers payload of %d bytes", modbus.ErrInvalidArgument, len(payload))
		}
		address := int(binary.BigEndian.Uint16(payload[0:]))
		count := int(binary.BigEndian.Uint16(payload[2:]))
		if err := checkQuantity(address, count, modbus.MaxWriteRegisters); err != nil {
			return err
		}
		if int(payload[4]) != count*2 || len(payload) != 5+count*2 {
			return fmt.Errorf("%w: byte count %d for %d registers", modbus.ErrInvalidArgument, payload[4], count)
		}
	}
	return nil
}

func validateRead(payload []byte, limit int) error {
	if len(payload) != 4 {
		return fmt.Errorf("%w: read payload of %d bytes", modbus.ErrInvalidArgument, len(payload))
	}
	address := int(binary.BigEndian.Uint16(payload[0:]))
	count := int(binary.BigEndian.Uint16(payload[2:]))
	return checkQuantity(address, count, limit)
}

func checkQuantity(address, count, limit int) error {
	switch {
	case count < 1:
		return fmt.Errorf("%w: quantity must be at least 1", modbus.ErrInvalidArgument)
	case count > limit:
		return fmt.Errorf("%w: quantity %d exceeds %d", modbus.ErrInvalidPayloadSize, count, limit)
	case address+count > 0x10000:
		return fmt.Errorf("%w: address %d + quantity %d exceeds the address space", modbus.ErrInvalidArgument, address, count)
	}
	return nil
}
