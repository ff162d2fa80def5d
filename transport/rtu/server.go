// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/modbus/crc"
	rtupacket "github.com/ffutop/modbus-rtu-tester/modbus/rtu"
	"github.com/ffutop/modbus-rtu-tester/transport"
)

// Server answers requests on a serial line, acting as one or more slaves.
type Server struct {
	Config config.SerialConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// Start opens the serial port and serves requests until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	sc := serialConfig(s.Config)
	sc.Timeout = s.Config.Timeout

	port, err := openSerial(sc)
	if err != nil {
		return fmt.Errorf("%w: failed to open serial port %s: %v", modbus.ErrPortUnavailable, s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU slave listening", "device", s.Config.Device, "baudRate", s.Config.BaudRate)

	// handle close
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.scanLoop(ctx, port, handler)
}

func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.RequestHandler) error {
	buf := make([]byte, rtupacket.MaxSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Read 1 byte to unblock
		n, err := port.Read(buf[:1])
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}

		// Read header (attempt 7 bytes total to cover ByteCount for variable length functions)
		current := readAvailable(port, buf, 1, 7)
		if current < 2 {
			continue
		}

		functionCode := modbus.FunctionCode(buf[1])
		expectedLen, err := rtupacket.CalculateRequestLength(functionCode, buf[:current])
		if err != nil || expectedLen > len(buf) {
			slog.Debug("discarding unsupported request", "request", hex.EncodeToString(buf[:current]), "err", err)
			continue
		}

		if current = readAvailable(port, buf, current, expectedLen); current != expectedLen {
			continue
		}

		if crc.Checksum(buf[:expectedLen]) != 0 {
			slog.Debug("discarding request with bad crc", "request", hex.EncodeToString(buf[:expectedLen]))
			continue
		}

		slaveID := buf[0]
		reqPDU := modbus.ProtocolDataUnit{
			FunctionCode: functionCode,
			Data:         append([]byte(nil), buf[2:expectedLen-2]...),
		}

		respPDU, err := handler(ctx, slaveID, reqPDU)
		if err != nil {
			// silence, the master sees a timeout
			slog.Debug("request not answered", "slaveID", slaveID, "err", err)
			continue
		}

		adu := &rtupacket.ApplicationDataUnit{SlaveID: slaveID, Pdu: respPDU}
		raw, err := adu.Encode()
		if err != nil {
			slog.Error("Failed to encode response", "slaveID", slaveID, "err", err)
			continue
		}
		if _, err := port.Write(raw); err != nil {
			slog.Error("Failed to write response", "slaveID", slaveID, "err", err)
		}
	}
}

// readAvailable fills buf[current:need] until it is full or the port stops delivering.
func readAvailable(port io.Reader, buf []byte, current, need int) int {
	for current < need {
		n, err := port.Read(buf[current:need])
		current += n
		if err != nil || n == 0 {
			break
		}
	}
	return current
}

// Close stops a running Start and releases the serial port.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
