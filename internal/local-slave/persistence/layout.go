// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"unsafe"

	"github.com/ffutop/modbus-rtu-tester/internal/local-slave/model"
)

// On-disk layout shared by file and mmap storage:
//
//	Coils            65536 bytes      offset 0
//	DiscreteInputs   65536 bytes      offset 65536
//	HoldingRegisters 65536 * 2 bytes  offset 131072
//	InputRegisters   65536 * 2 bytes  offset 262144
const (
	sizeCoils    = model.MaxAddress + 1
	sizeDiscrete = model.MaxAddress + 1
	sizeHolding  = (model.MaxAddress + 1) * 2
	sizeInput    = (model.MaxAddress + 1) * 2
	totalSize    = sizeCoils + sizeDiscrete + sizeHolding + sizeInput

	offsetCoils    = 0
	offsetDiscrete = offsetCoils + sizeCoils
	offsetHolding  = offsetDiscrete + sizeDiscrete
	offsetInput    = offsetHolding + sizeHolding
)

// mapBytesToModel constructs a DataModel backed by data without copying.
// Register words use host byte order, so files are not portable across endianness.
func mapBytesToModel(data []byte) *model.DataModel {
	m := &model.DataModel{}
	m.Coils = data[offsetCoils : offsetCoils+sizeCoils]
	m.DiscreteInputs = data[offsetDiscrete : offsetDiscrete+sizeDiscrete]

	holdingBytes := data[offsetHolding : offsetHolding+sizeHolding]
	m.HoldingRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&holdingBytes[0])), sizeHolding/2)

	inputBytes := data[offsetInput : offsetInput+sizeInput]
	m.InputRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&inputBytes[0])), sizeInput/2)
	return m
}

// tableRange returns the byte span of [address, address+quantity) of table in the layout.
func tableRange(table model.TableType, address, quantity uint16) (offset, length int) {
	switch table {
	case model.TableCoils:
		return offsetCoils + int(address), int(quantity)
	case model.TableDiscreteInputs:
		return offsetDiscrete + int(address), int(quantity)
	case model.TableHoldingRegisters:
		return offsetHolding + int(address)*2, int(quantity) * 2
	case model.TableInputRegisters:
		return offsetInput + int(address)*2, int(quantity) * 2
	}
	return 0, totalSize
}
