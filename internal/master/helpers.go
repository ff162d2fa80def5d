// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/modbus/codec"
)

// ReadCoils reads count coils starting at address (FC1).
func (e *Engine) ReadCoils(ctx context.Context, cfg config.SerialConfig, slaveID int, address, count uint16) ([]bool, error) {
	return e.readBits(ctx, cfg, slaveID, modbus.FuncCodeReadCoils, address, count)
}

// ReadDiscreteInputs reads count discrete inputs starting at address (FC2).
func (e *Engine) ReadDiscreteInputs(ctx context.Context, cfg config.SerialConfig, slaveID int, address, count uint16) ([]bool, error) {
	return e.readBits(ctx, cfg, slaveID, modbus.FuncCodeReadDiscreteInputs, address, count)
}

// ReadHoldingRegisters reads count holding registers starting at address (FC3).
func (e *Engine) ReadHoldingRegisters(ctx context.Context, cfg config.SerialConfig, slaveID int, address, count uint16) ([]uint16, error) {
	return e.readRegisters(ctx, cfg, slaveID, modbus.FuncCodeReadHoldingRegisters, address, count)
}

// ReadInputRegisters reads count input registers starting at address (FC4).
func (e *Engine) ReadInputRegisters(ctx context.Context, cfg config.SerialConfig, slaveID int, address, count uint16) ([]uint16, error) {
	return e.readRegisters(ctx, cfg, slaveID, modbus.FuncCodeReadInputRegisters, address, count)
}

// WriteSingleCoil sets one coil (FC5).
func (e *Engine) WriteSingleCoil(ctx context.Context, cfg config.SerialConfig, slaveID int, address uint16, on bool) error {
	payload := dataBlock(address, codec.CoilValue(on))
	_, err := e.Execute(ctx, cfg, slaveID, modbus.FuncCodeWriteSingleCoil, payload)
	return err
}

// WriteRegisters writes consecutive holding registers (FC16).
func (e *Engine) WriteRegisters(ctx context.Context, cfg config.SerialConfig, slaveID int, address uint16, values []uint16) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: no register values", modbus.ErrInvalidArgument)
	}
	if len(values) > modbus.MaxWriteRegisters {
		return fmt.Errorf("%w: %d registers exceeds %d", modbus.ErrInvalidPayloadSize, len(values), modbus.MaxWriteRegisters)
	}
	data := codec.RegistersToBytes(values)
	payload := append(dataBlock(address, uint16(len(values))), byte(len(data)))
	payload = append(payload, data...)
	_, err := e.Execute(ctx, cfg, slaveID, modbus.FuncCodeWriteMultipleRegisters, payload)
	return err
}

// WriteScaledRegister writes value, scaled by 10^decimals, into one holding register using FC16.
func (e *Engine) WriteScaledRegister(ctx context.Context, cfg config.SerialConfig, slaveID int, address uint16, value float64, decimals int, signed bool) error {
	raw, err := codec.FromScaled(value, decimals, signed)
	if err != nil {
		return err
	}
	return e.WriteRegisters(ctx, cfg, slaveID, address, []uint16{raw})
}

func (e *Engine) readBits(ctx context.Context, cfg config.SerialConfig, slaveID int, functionCode modbus.FunctionCode, address, count uint16) ([]bool, error) {
	resp, err := e.Execute(ctx, cfg, slaveID, functionCode, dataBlock(address, count))
	if err != nil {
		return nil, err
	}
	return codec.UnpackBits(resp.Data[1:], int(count)), nil
}

func (e *Engine) readRegisters(ctx context.Context, cfg config.SerialConfig, slaveID int, functionCode modbus.FunctionCode, address, count uint16) ([]uint16, error) {
	resp, err := e.Execute(ctx, cfg, slaveID, functionCode, dataBlock(address, count))
	if err != nil {
		return nil, err
	}
	return codec.RegistersFromBytes(resp.Data[1:]), nil
}

// dataBlock creates a sequence of uint16 data.
func dataBlock(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}
