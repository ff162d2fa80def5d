// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"fmt"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// port buffers the responses produced by writes on the line until they are read.
type port struct {
	bus *Bus

	mu       sync.Mutex
	rx       []byte
	deadline time.Time
	closed   bool
}

// Write delivers one complete request frame to the line.
func (p *port) Write(frame []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("%w: port closed", modbus.ErrIO)
	}

	resp := p.bus.respond(append([]byte(nil), frame...))

	p.mu.Lock()
	p.rx = append(p.rx, resp...)
	p.mu.Unlock()
	return len(frame), nil
}

// Read returns buffered bytes. With nothing buffered it waits out the deadline.
func (p *port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, fmt.Errorf("%w: port closed", modbus.ErrIO)
	}
	if len(p.rx) > 0 {
		n := copy(buf, p.rx)
		p.rx = p.rx[n:]
		p.mu.Unlock()
		return n, nil
	}
	deadline := p.deadline
	p.mu.Unlock()

	if wait := time.Until(deadline); wait > 0 {
		time.Sleep(wait)
	}
	return 0, modbus.ErrTimeout
}

func (p *port) SetDeadline(deadline time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = deadline
	return nil
}

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.bus.closes.Add(1)
	return nil
}
