// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package local provides an in-process RS-485 line populated with simulated slaves.
package local

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	localslave "github.com/ffutop/modbus-rtu-tester/internal/local-slave"
	"github.com/ffutop/modbus-rtu-tester/modbus"
	rtupacket "github.com/ffutop/modbus-rtu-tester/modbus/rtu"
	"github.com/ffutop/modbus-rtu-tester/transport"
)

// ErrNoSuchSlave is returned by Handle when nothing is attached at the addressed id.
var ErrNoSuchSlave = errors.New("no slave attached")

// Bus is a shared line with slaves attached by id. It implements transport.Opener,
// and its Handle method serves as the transport.RequestHandler of a serial server.
type Bus struct {
	mu     sync.RWMutex
	slaves map[byte]transport.RequestHandler

	// OpenErr, when set, is returned by every Open.
	OpenErr error
	// Tamper, when set, may rewrite each encoded response frame before it is read back.
	Tamper func(frame []byte) []byte

	opens  atomic.Int64
	closes atomic.Int64
}

// NewBus returns an empty line.
func NewBus() *Bus {
	return &Bus{slaves: make(map[byte]transport.RequestHandler)}
}

// Attach connects a simulated slave at slaveID, replacing any previous one.
func (b *Bus) Attach(slaveID byte, s *localslave.LocalSlave) {
	b.AttachHandler(slaveID, func(_ context.Context, _ byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return s.Process(pdu), nil
	})
}

// AttachHandler connects an arbitrary responder at slaveID.
func (b *Bus) AttachHandler(slaveID byte, h transport.RequestHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slaves[slaveID] = h
}

// Detach removes the slave at slaveID.
func (b *Bus) Detach(slaveID byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.slaves, slaveID)
}

// Handle dispatches a request to the slave at slaveID.
func (b *Bus) Handle(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	b.mu.RLock()
	h, ok := b.slaves[slaveID]
	b.mu.RUnlock()
	if !ok {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("%w at id %d", ErrNoSuchSlave, slaveID)
	}
	return h(ctx, slaveID, pdu)
}

// Open returns a fresh port onto the line. The line settings are not checked.
func (b *Bus) Open(cfg config.SerialConfig) (transport.Port, error) {
	if b.OpenErr != nil {
		return nil, fmt.Errorf("%w: could not open %s: %v", modbus.ErrPortUnavailable, cfg.Device, b.OpenErr)
	}
	b.opens.Add(1)
	return &port{bus: b}, nil
}

// Opens reports how many ports were opened.
func (b *Bus) Opens() int64 { return b.opens.Load() }

// Closes reports how many ports were closed.
func (b *Bus) Closes() int64 { return b.closes.Load() }

// respond runs one request frame through the line and returns the response frame,
// or nil when nobody answers.
func (b *Bus) respond(frame []byte) []byte {
	req, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Debug("loopback dropped request", "request", hex.EncodeToString(frame), "err", err)
		return nil
	}
	pdu, err := b.Handle(context.Background(), req.SlaveID, req.Pdu)
	if err != nil {
		return nil
	}
	resp := &rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: pdu}
	raw, err := resp.Encode()
	if err != nil {
		slog.Error("loopback failed to encode response", "slaveID", req.SlaveID, "err", err)
		return nil
	}
	if b.Tamper != nil {
		raw = b.Tamper(raw)
	}
	return raw
}
