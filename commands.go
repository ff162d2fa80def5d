// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	localslave "github.com/ffutop/modbus-rtu-tester/internal/local-slave"
	"github.com/ffutop/modbus-rtu-tester/internal/local-slave/persistence"
	"github.com/ffutop/modbus-rtu-tester/internal/master"
	"github.com/ffutop/modbus-rtu-tester/internal/poller"
	"github.com/ffutop/modbus-rtu-tester/internal/scanner"
	"github.com/ffutop/modbus-rtu-tester/transport"
	"github.com/ffutop/modbus-rtu-tester/transport/local"
	"github.com/ffutop/modbus-rtu-tester/transport/rtu"
)

// masterFlags are shared by the commands that drive the transaction engine.
type masterFlags struct {
	loopback bool
	trace    bool
}

func (m *masterFlags) add(fs *pflag.FlagSet) {
	fs.BoolVar(&m.loopback, "loopback", false, "Talk to in-process simulated slaves (see --slave-ids) instead of a serial port.")
	fs.BoolVarP(&m.trace, "trace", "t", false, "Print every request and response frame.")
	fs.String("slave-ids", "", "Slave ids answered in loopback or simulate mode, e.g. \"1,2,5-10\".")
	fs.String("storage", "", "Simulated slave storage: memory, file or mmap.")
	fs.String("storage-path", "", "Storage file for file or mmap storage.")
}

// engine builds the transaction engine. The returned func releases loopback resources.
func (m *masterFlags) engine(cfg *config.Config, stdout io.Writer) (*master.Engine, func(), error) {
	var opener transport.Opener = rtu.NewSerialOpener()
	cleanup := func() {}
	if m.loopback {
		bus, closeBus, err := newSimulatedBus(cfg.Simulator)
		if err != nil {
			return nil, nil, err
		}
		opener, cleanup = bus, closeBus
	}

	e := master.NewEngine(opener)
	if m.trace {
		e.Trace = func(request, response []byte) {
			fmt.Fprintf(stdout, "TX: % X\nRX: % X\n", request, response)
		}
	}
	return e, cleanup, nil
}

// newSimulatedBus attaches one simulated slave at every configured id. All ids share one data model.
func newSimulatedBus(cfg config.SimulatorConfig) (*local.Bus, func(), error) {
	ids, err := config.ParseSlaveIDs(cfg.SlaveIDs)
	if err != nil {
		return nil, nil, err
	}
	storage, err := persistence.NewStorage(cfg.Persistence)
	if err != nil {
		return nil, nil, err
	}
	m, err := storage.Load()
	if err != nil {
		storage.Close()
		return nil, nil, fmt.Errorf("failed to load simulated slave data: %w", err)
	}

	slave := localslave.NewLocalSlave(m, storage)
	bus := local.NewBus()
	for _, id := range ids {
		bus.Attach(id, slave)
	}
	closeBus := func() {
		if err := storage.Save(m); err != nil {
			slog.Error("Failed to save simulated slave data", "err", err)
		}
		if err := storage.Close(); err != nil {
			slog.Error("Failed to close storage", "err", err)
		}
	}
	return bus, closeBus, nil
}

// pointFlags select the points of a read, write or poll.
type pointFlags struct {
	slaveID  int
	kind     string
	address  uint16
	count    uint16
	signed   bool
	decimals int
}

func (p *pointFlags) add(fs *pflag.FlagSet, withCount bool) {
	fs.IntVarP(&p.slaveID, "slave", "s", 1, "Slave id [1,247].")
	fs.StringVarP(&p.kind, "kind", "k", "holding", "Table: holding, input, coils or discrete.")
	fs.Uint16VarP(&p.address, "address", "a", 0, "Start address (0-based).")
	if withCount {
		fs.Uint16VarP(&p.count, "count", "n", 1, "Number of points.")
	}
	fs.BoolVar(&p.signed, "signed", false, "Interpret registers as two's complement.")
	fs.IntVarP(&p.decimals, "decimals", "d", 0, "Decimal places: value = raw / 10^decimals.")
}

func (p *pointFlags) interpretation() master.Interpretation {
	return master.Interpretation{Signed: p.signed, Decimals: p.decimals}
}

func printReadings(w io.Writer, readings []master.Reading) {
	for _, r := range readings {
		if r.IsBit {
			fmt.Fprintf(w, "%5d: %s\n", r.Address, r)
			continue
		}
		fmt.Fprintf(w, "%5d: %s (raw 0x%04X)\n", r.Address, r, r.Raw)
	}
}

type readCommand struct {
	masterFlags
	pointFlags
}

func (c *readCommand) flags(fs *pflag.FlagSet) {
	c.masterFlags.add(fs)
	c.pointFlags.add(fs, true)
}

func (c *readCommand) run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	kind, err := master.ParseRegisterKind(c.kind)
	if err != nil {
		return err
	}
	e, cleanup, err := c.engine(cfg, stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	readings, err := e.Read(ctx, cfg.Serial, c.slaveID, kind, c.address, c.count, c.interpretation())
	if err != nil {
		return err
	}
	printReadings(stdout, readings)
	return nil
}

type writeCommand struct {
	masterFlags
	pointFlags
	value string
}

func (c *writeCommand) flags(fs *pflag.FlagSet) {
	c.masterFlags.add(fs)
	c.pointFlags.add(fs, false)
	fs.StringVarP(&c.value, "value", "V", "", "Value to write: a number for registers, on/off/1/0 for coils.")
}

func (c *writeCommand) run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	kind, err := master.ParseRegisterKind(c.kind)
	if err != nil {
		return err
	}
	e, cleanup, err := c.engine(cfg, stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := e.Write(ctx, cfg.Serial, c.slaveID, kind, c.address, c.value, c.interpretation()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s to %v %d of slave %d\n", c.value, kind, c.address, c.slaveID)
	return nil
}

type scanCommand struct {
	masterFlags
	scanRange string
}

func (c *scanCommand) flags(fs *pflag.FlagSet) {
	c.masterFlags.add(fs)
	fs.Int("scan-start", 0, "First slave id to probe.")
	fs.Int("scan-end", 0, "Last slave id to probe.")
	fs.Duration("scan-timeout", 0, "Response wait time per slave id.")
	fs.StringVarP(&c.scanRange, "range", "r", "", "Slave id range, e.g. \"1-247\". Overrides --scan-start/--scan-end.")
}

func (c *scanCommand) run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	start, end := cfg.Scan.Start, cfg.Scan.End
	if c.scanRange != "" {
		var err error
		if start, end, err = scanner.ParseRange(c.scanRange); err != nil {
			return err
		}
	}
	start, end = scanner.Ordered(start, end)

	e, cleanup, err := c.engine(cfg, stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	template := cfg.Serial
	template.Timeout = cfg.Scan.Timeout
	result, err := scanner.Scan(ctx, e, template, start, end, func(done, total int, entry scanner.Entry) {
		if entry.Responded {
			fmt.Fprintf(stdout, "Slave %3d: %s\n", entry.SlaveID, entry.Detail)
		}
		slog.Debug("Scan progress", "done", done, "total", total)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Found %d device(s) in [%d,%d]: %v\n", len(result.Responsive()), start, end, result.Responsive())
	return nil
}

type pollCommand struct {
	masterFlags
	pointFlags
}

func (c *pollCommand) flags(fs *pflag.FlagSet) {
	c.masterFlags.add(fs)
	c.pointFlags.add(fs, true)
	fs.DurationP("interval", "i", 0, "Poll interval, 100ms to 10s.")
}

func (c *pollCommand) run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	kind, err := master.ParseRegisterKind(c.kind)
	if err != nil {
		return err
	}
	e, cleanup, err := c.engine(cfg, stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := poller.New(poller.Config{
		Serial:         cfg.Serial,
		SlaveID:        c.slaveID,
		Kind:           kind,
		Address:        c.address,
		Count:          c.count,
		Interpretation: c.interpretation(),
		Interval:       cfg.Poll.Interval,
	}, e)
	if err != nil {
		return err
	}

	results := make(chan poller.Result)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, results)
		close(done)
	}()

	for {
		select {
		case <-done:
			fmt.Fprintf(stdout, "Stopped, %d tick(s) skipped\n", p.Skipped())
			return nil
		case res := <-results:
			fmt.Fprintf(stdout, "[%s]\n", res.At.Format(time.TimeOnly+".000"))
			if res.Err != nil {
				fmt.Fprintln(stdout, describeError(res.Err))
				continue
			}
			printReadings(stdout, res.Readings)
		}
	}
}

type simulateCommand struct{}

func (c *simulateCommand) flags(fs *pflag.FlagSet) {
	fs.String("slave-ids", "", "Slave ids to answer, e.g. \"1,2,5-10\".")
	fs.String("storage", "", "Storage: memory, file or mmap.")
	fs.String("storage-path", "", "Storage file for file or mmap storage.")
}

func (c *simulateCommand) run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	bus, cleanup, err := newSimulatedBus(cfg.Simulator)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintf(stdout, "Simulating slave(s) %s on %s, press Ctrl-C to stop\n", cfg.Simulator.SlaveIDs, cfg.Serial.Device)
	server := rtu.NewServer(cfg.Serial)
	defer server.Close()
	return server.Start(ctx, bus.Handle)
}
