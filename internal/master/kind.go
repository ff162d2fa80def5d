// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/modbus/codec"
)

// RegisterKind selects one of the four Modbus data tables.
type RegisterKind int

const (
	HoldingRegisters RegisterKind = iota + 1
	InputRegisters
	Coils
	DiscreteInputs
)

// ParseRegisterKind accepts the table names used on the command line.
func ParseRegisterKind(s string) (RegisterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "holding", "holding-registers", "hr", "4x":
		return HoldingRegisters, nil
	case "input", "input-registers", "ir", "3x":
		return InputRegisters, nil
	case "coil", "coils", "co", "0x":
		return Coils, nil
	case "discrete", "discrete-inputs", "di", "1x":
		return DiscreteInputs, nil
	}
	return 0, fmt.Errorf("%w: unknown register kind %q", modbus.ErrInvalidArgument, s)
}

func (k RegisterKind) String() string {
	switch k {
	case HoldingRegisters:
		return "Holding Registers"
	case InputRegisters:
		return "Input Registers"
	case Coils:
		return "Coils"
	case DiscreteInputs:
		return "Discrete Inputs"
	}
	return fmt.Sprintf("RegisterKind(%d)", int(k))
}

// ReadFunction is the function code that reads this table.
func (k RegisterKind) ReadFunction() modbus.FunctionCode {
	switch k {
	case HoldingRegisters:
		return modbus.FuncCodeReadHoldingRegisters
	case InputRegisters:
		return modbus.FuncCodeReadInputRegisters
	case Coils:
		return modbus.FuncCodeReadCoils
	case DiscreteInputs:
		return modbus.FuncCodeReadDiscreteInputs
	}
	return 0
}

// WriteFunction is the function code that writes this table, if it is writable.
func (k RegisterKind) WriteFunction() (modbus.FunctionCode, bool) {
	switch k {
	case HoldingRegisters:
		return modbus.FuncCodeWriteMultipleRegisters, true
	case Coils:
		return modbus.FuncCodeWriteSingleCoil, true
	}
	return 0, false
}

// IsBit reports whether the table holds single-bit points.
func (k RegisterKind) IsBit() bool {
	return k == Coils || k == DiscreteInputs
}

// Interpretation selects how raw register words are presented. It never alters the raw word.
type Interpretation struct {
	Signed   bool
	Decimals int
}

// Reading is one point returned by Read.
type Reading struct {
	Address uint16
	Raw     uint16
	// Value is the scaled register value; for bit tables it is 0 or 1.
	Value    float64
	Bit      bool
	IsBit    bool
	Decimals int
}

func (r Reading) String() string {
	if r.IsBit {
		if r.Bit {
			return "ON"
		}
		return "OFF"
	}
	return strconv.FormatFloat(r.Value, 'f', r.Decimals, 64)
}

// Read reads count points of kind starting at address and interprets them.
func (e *Engine) Read(ctx context.Context, cfg config.SerialConfig, slaveID int, kind RegisterKind, address, count uint16, in Interpretation) ([]Reading, error) {
	if kind.IsBit() {
		bits, err := e.readBits(ctx, cfg, slaveID, kind.ReadFunction(), address, count)
		if err != nil {
			return nil, err
		}
		readings := make([]Reading, len(bits))
		for i, on := range bits {
			readings[i] = Reading{Address: address + uint16(i), Bit: on, IsBit: true}
			if on {
				readings[i].Raw, readings[i].Value = 1, 1
			}
		}
		return readings, nil
	}

	fc := kind.ReadFunction()
	if fc == 0 {
		return nil, fmt.Errorf("%w: unknown register kind %d", modbus.ErrInvalidArgument, int(kind))
	}
	// reject bad decimals before any I/O
	if _, err := codec.ToScaled(0, in.Decimals, in.Signed); err != nil {
		return nil, err
	}
	regs, err := e.readRegisters(ctx, cfg, slaveID, fc, address, count)
	if err != nil {
		return nil, err
	}
	readings := make([]Reading, len(regs))
	for i, raw := range regs {
		value, _ := codec.ToScaled(raw, in.Decimals, in.Signed)
		readings[i] = Reading{Address: address + uint16(i), Raw: raw, Value: value, Decimals: in.Decimals}
	}
	return readings, nil
}

// Write writes one point of kind at address from a user token: a coil token for Coils,
// a decimal number for HoldingRegisters.
func (e *Engine) Write(ctx context.Context, cfg config.SerialConfig, slaveID int, kind RegisterKind, address uint16, token string, in Interpretation) error {
	switch kind {
	case Coils:
		on, err := codec.ParseCoilToken(token)
		if err != nil {
			return err
		}
		return e.WriteSingleCoil(ctx, cfg, slaveID, address, on)
	case HoldingRegisters:
		value, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", modbus.ErrInvalidArgument, token)
		}
		return e.WriteScaledRegister(ctx, cfg, slaveID, address, value, in.Decimals, in.Signed)
	}
	return fmt.Errorf("%w: %v are read-only", modbus.ErrInvalidArgument, kind)
}
