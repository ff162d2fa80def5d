// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package scanner probes a range of slave ids for responsive devices.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// Prober issues the probe request. *master.Engine implements it.
type Prober interface {
	ReadHoldingRegisters(ctx context.Context, cfg config.SerialConfig, slaveID int, address, count uint16) ([]uint16, error)
}

// Entry is the outcome for one slave id.
type Entry struct {
	SlaveID   int
	Responded bool
	Detail    string
}

// Result lists probed ids in ascending order.
type Result []Entry

// Responsive returns the ids that answered.
func (r Result) Responsive() []int {
	var ids []int
	for _, e := range r {
		if e.Responded {
			ids = append(ids, e.SlaveID)
		}
	}
	return ids
}

// ProgressFunc is called after each probe with the number of ids done so far.
type ProgressFunc func(done, total int, entry Entry)

// Scan probes every id in [start, end] with ReadHoldingRegisters(0, 1).
// A timeout means no device at that id. An exception reply counts as a responsive device.
// Any other error aborts the scan and is returned together with the entries collected so far.
func Scan(ctx context.Context, prober Prober, template config.SerialConfig, start, end int, progress ProgressFunc) (Result, error) {
	if !modbus.ValidSlaveID(start) || !modbus.ValidSlaveID(end) {
		return nil, fmt.Errorf("%w: scan range [%d,%d] outside [%d,%d]", modbus.ErrInvalidArgument, start, end, modbus.MinSlaveID, modbus.MaxSlaveID)
	}
	if start > end {
		return nil, fmt.Errorf("%w: scan start %d is greater than end %d", modbus.ErrInvalidArgument, start, end)
	}

	total := end - start + 1
	result := make(Result, 0, total)
	slog.Info("Scanning bus", "device", template.Device, "start", start, "end", end, "timeout", template.Timeout)

	for id := start; id <= end; id++ {
		cfg := template
		entry := Entry{SlaveID: id}

		var exception *modbus.ExceptionError
		values, err := prober.ReadHoldingRegisters(ctx, cfg, id, 0, 1)
		switch {
		case err == nil:
			entry.Responded = true
			entry.Detail = fmt.Sprintf("Responded to FC3 at address 0, value=%d", values[0])
			slog.Info("Slave responded", "slaveID", id, "value", values[0])
		case errors.As(err, &exception):
			entry.Responded = true
			entry.Detail = fmt.Sprintf("Responded to FC3 with exception %d: %s", exception.ExceptionCode, exception.Description())
			slog.Info("Slave responded with exception", "slaveID", id, "exception", exception.ExceptionCode)
		case errors.Is(err, modbus.ErrTimeout):
			entry.Detail = "No response"
		default:
			return result, fmt.Errorf("scan aborted at slave %d: %w", id, err)
		}

		result = append(result, entry)
		if progress != nil {
			progress(len(result), total, entry)
		}
	}

	slog.Info("Scan complete", "probed", total, "responsive", len(result.Responsive()))
	return result, nil
}

// ParseRange parses "a-b" or a single id "a". The bounds are returned as written.
func ParseRange(s string) (start, end int, err error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if start, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
		return 0, 0, fmt.Errorf("%w: invalid scan range %q", modbus.ErrInvalidArgument, s)
	}
	if !ok {
		return start, start, nil
	}
	if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
		return 0, 0, fmt.Errorf("%w: invalid scan range %q", modbus.ErrInvalidArgument, s)
	}
	return start, end, nil
}

// Ordered returns start and end with the smaller first.
func Ordered(start, end int) (int, int) {
	if start > end {
		return end, start
	}
	return start, end
}
