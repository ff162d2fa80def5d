// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"fmt"
	"sync"

	"github.com/ffutop/modbus-rtu-tester/modbus/codec"
)

const (
	MaxAddress = 65535
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete-inputs"
	case TableHoldingRegisters:
		return "holding-registers"
	case TableInputRegisters:
		return "input-registers"
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// DataModel holds the data tables of one simulated slave, covering the full 16-bit address space.
// Bit tables store one byte per point, 1 (ON) or 0 (OFF).
type DataModel struct {
	mu sync.RWMutex

	Coils            []byte
	DiscreteInputs   []byte
	HoldingRegisters []uint16
	InputRegisters   []uint16
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{
		Coils:            make([]byte, MaxAddress+1),
		DiscreteInputs:   make([]byte, MaxAddress+1),
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

// ReadBits returns quantity points of a bit table packed in Modbus order.
func (m *DataModel) ReadBits(table TableType, address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	var src []byte
	switch table {
	case TableCoils:
		src = m.Coils
	case TableDiscreteInputs:
		src = m.DiscreteInputs
	default:
		return nil, fmt.Errorf("%v is not a bit table", table)
	}

	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = src[int(address)+i] != 0
	}
	return codec.PackBits(bits), nil
}

// ReadRegisters returns quantity words of a register table as big endian bytes.
func (m *DataModel) ReadRegisters(table TableType, address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	var src []uint16
	switch table {
	case TableHoldingRegisters:
		src = m.HoldingRegisters
	case TableInputRegisters:
		src = m.InputRegisters
	default:
		return nil, fmt.Errorf("%v is not a register table", table)
	}
	return codec.RegistersToBytes(src[address : int(address)+int(quantity)]), nil
}

// WriteSingleCoil writes a single coil. value must be 0xFF00 (ON) or 0x0000 (OFF).
func (m *DataModel) WriteSingleCoil(address uint16, value uint16) error {
	on, err := codec.ParseCoilValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Coils[address] = boolByte(on)
	return nil
}

// WriteMultipleCoils writes a range of coils from packed bytes.
func (m *DataModel) WriteMultipleCoils(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity); err != nil {
		return err
	}
	if len(data) < (int(quantity)+7)/8 {
		return fmt.Errorf("insufficient data length")
	}
	for i, on := range codec.UnpackBits(data, int(quantity)) {
		m.Coils[int(address)+i] = boolByte(on)
	}
	return nil
}

// WriteRegisters writes a range of holding registers from big endian bytes.
func (m *DataModel) WriteRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity); err != nil {
		return err
	}
	if len(data) < int(quantity)*2 {
		return fmt.Errorf("insufficient data length")
	}
	copy(m.HoldingRegisters[address:], codec.RegistersFromBytes(data[:int(quantity)*2]))
	return nil
}

// SetRegisters seeds a register table, e.g. read-only input registers.
func (m *DataModel) SetRegisters(table TableType, address uint16, values ...uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, uint16(len(values))); err != nil {
		return err
	}
	switch table {
	case TableHoldingRegisters:
		copy(m.HoldingRegisters[address:], values)
	case TableInputRegisters:
		copy(m.InputRegisters[address:], values)
	default:
		return fmt.Errorf("%v is not a register table", table)
	}
	return nil
}

// SetBits seeds a bit table.
func (m *DataModel) SetBits(table TableType, address uint16, values ...bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, uint16(len(values))); err != nil {
		return err
	}
	var dst []byte
	switch table {
	case TableCoils:
		dst = m.Coils
	case TableDiscreteInputs:
		dst = m.DiscreteInputs
	default:
		return fmt.Errorf("%v is not a bit table", table)
	}
	for i, on := range values {
		dst[int(address)+i] = boolByte(on)
	}
	return nil
}

func boolByte(on bool) byte {
	if on {
		return 1
	}
	return 0
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
