// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package poller reads one block of points repeatedly at a fixed interval.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/internal/master"
	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// Reader performs the read. *master.Engine implements it.
type Reader interface {
	Read(ctx context.Context, cfg config.SerialConfig, slaveID int, kind master.RegisterKind, address, count uint16, in master.Interpretation) ([]master.Reading, error)
}

// Config describes what to poll and how often.
type Config struct {
	Serial         config.SerialConfig
	SlaveID        int
	Kind           master.RegisterKind
	Address        uint16
	Count          uint16
	Interpretation master.Interpretation
	Interval       time.Duration
}

// Result is the outcome of one poll cycle.
type Result struct {
	At       time.Time
	Readings []master.Reading
	Err      error
}

// Poller is a clock-driven reader. A tick that arrives while the previous read is
// still in flight is skipped, never queued.
type Poller struct {
	cfg    Config
	reader Reader

	busy    atomic.Bool
	skipped atomic.Int64
}

// New creates a poller with immutable config.
func New(cfg Config, reader Reader) (*Poller, error) {
	if err := (config.PollConfig{Interval: cfg.Interval}).Validate(); err != nil {
		return nil, err
	}
	if cfg.Count == 0 {
		return nil, fmt.Errorf("%w: poll count must be at least 1", modbus.ErrInvalidArgument)
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: poller needs a reader", modbus.ErrInvalidArgument)
	}
	return &Poller{cfg: cfg, reader: reader}, nil
}

// PollOnce performs exactly one read.
func (p *Poller) PollOnce(ctx context.Context) Result {
	res := Result{At: time.Now()}
	res.Readings, res.Err = p.reader.Read(ctx, p.cfg.Serial, p.cfg.SlaveID, p.cfg.Kind, p.cfg.Address, p.cfg.Count, p.cfg.Interpretation)
	return res
}

// Skipped reports how many ticks were dropped because a read was in flight.
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

// Run polls once immediately and then on every tick until ctx is done.
// Results are sent on out. Run returns after the last in-flight read finished.
func (p *Poller) Run(ctx context.Context, out chan<- Result) {
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx, &wg, out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, &wg, out)
		}
	}
}

func (p *Poller) tick(ctx context.Context, wg *sync.WaitGroup, out chan<- Result) {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		slog.Debug("poll tick skipped, previous read still in flight", "slaveID", p.cfg.SlaveID)
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.busy.Store(false)

		res := p.PollOnce(ctx)
		select {
		case out <- res:
		case <-ctx.Done():
		}
	}()
}
