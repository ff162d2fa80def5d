// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package localslave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-rtu-tester/internal/local-slave/model"
	"github.com/ffutop/modbus-rtu-tester/internal/local-slave/persistence"
	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// LocalSlave implements the slave side of the Modbus protocol on top of a DataModel.
type LocalSlave struct {
	model   *model.DataModel
	storage persistence.Storage
}

// NewLocalSlave creates a new LocalSlave. storage may be nil.
func NewLocalSlave(m *model.DataModel, storage persistence.Storage) *LocalSlave {
	return &LocalSlave{model: m, storage: storage}
}

// Model exposes the data tables, e.g. to seed values.
func (s *LocalSlave) Model() *model.DataModel {
	return s.model
}

// Process executes the Modbus Function Code against the memory model.
func (s *LocalSlave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return s.handleReadBits(req, model.TableCoils)
	case modbus.FuncCodeReadDiscreteInputs:
		return s.handleReadBits(req, model.TableDiscreteInputs)
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleReadRegisters(req, model.TableHoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleReadRegisters(req, model.TableInputRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		return s.handleWriteSingleCoil(req)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleCoils:
		return s.handleWriteMultipleCoils(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (s *LocalSlave) handleReadBits(req modbus.ProtocolDataUnit, table model.TableType) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < 1 || quantity > modbus.MaxReadBits {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := s.model.ReadBits(table, address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	return byteCounted(req.FunctionCode, data)
}

func (s *LocalSlave) handleReadRegisters(req modbus.ProtocolDataUnit, table model.TableType) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := s.model.ReadRegisters(table, address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	return byteCounted(req.FunctionCode, data)
}

func (s *LocalSlave) handleWriteSingleCoil(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.model.WriteSingleCoil(address, value); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	s.written(model.TableCoils, address, 1)
	return req // Echo request
}

func (s *LocalSlave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])

	if err := s.model.WriteRegisters(address, 1, req.Data[2:4]); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.written(model.TableHoldingRegisters, address, 1)
	return req // Echo request
}

func (s *LocalSlave) handleWriteMultipleCoils(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	address, quantity, values, ok := splitWriteMultiple(req, modbus.MaxWriteCoils)
	if !ok {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteMultipleCoils(address, quantity, values); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.written(model.TableCoils, address, quantity)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: req.Data[:4]}
}

func (s *LocalSlave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	address, quantity, values, ok := splitWriteMultiple(req, modbus.MaxWriteRegisters)
	if !ok || len(values) != int(quantity)*2 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteRegisters(address, quantity, values); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.written(model.TableHoldingRegisters, address, quantity)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: req.Data[:4]}
}

// splitWriteMultiple parses [Addr(2), Quant(2), ByteCount(1), Values(N)].
func splitWriteMultiple(req modbus.ProtocolDataUnit, maxQuantity uint16) (address, quantity uint16, values []byte, ok bool) {
	if len(req.Data) < 6 {
		return 0, 0, nil, false
	}
	address = binary.BigEndian.Uint16(req.Data[0:2])
	quantity = binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])
	if quantity < 1 || quantity > maxQuantity || len(req.Data)-5 != byteCount {
		return 0, 0, nil, false
	}
	return address, quantity, req.Data[5:], true
}

func (s *LocalSlave) written(table model.TableType, address, quantity uint16) {
	if s.storage != nil {
		s.storage.OnWrite(table, address, quantity)
	}
}

func byteCounted(functionCode modbus.FunctionCode, data []byte) modbus.ProtocolDataUnit {
	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)
	return modbus.ProtocolDataUnit{FunctionCode: functionCode, Data: respData}
}

func exception(functionCode modbus.FunctionCode, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: functionCode | modbus.ExceptionBit,
		Data:         []byte{code},
	}
}
