// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus holds the protocol vocabulary shared by the RTU master:
function codes, protocol data units, exception codes and the error taxonomy.
*/
package modbus

import "fmt"

// FunctionCode selects a Modbus operation.
type FunctionCode byte

// Function codes originated by the master.
const (
	FuncCodeReadCoils              FunctionCode = 0x01
	FuncCodeReadDiscreteInputs     FunctionCode = 0x02
	FuncCodeReadHoldingRegisters   FunctionCode = 0x03
	FuncCodeReadInputRegisters     FunctionCode = 0x04
	FuncCodeWriteSingleCoil        FunctionCode = 0x05
	FuncCodeWriteMultipleRegisters FunctionCode = 0x10
)

// Function codes only understood by the simulated slave.
const (
	FuncCodeWriteSingleRegister FunctionCode = 0x06
	FuncCodeWriteMultipleCoils  FunctionCode = 0x0F
)

// ExceptionBit marks an exception response in the function code byte.
const ExceptionBit = 0x80

// Protocol limits.
const (
	MaxReadRegisters  = 125
	MaxReadBits       = 2000
	MaxWriteRegisters = 123
	MaxWriteCoils     = 1968

	MinSlaveID = 1
	MaxSlaveID = 247
)

// Valid reports whether fc is one of the codes this master originates.
func (fc FunctionCode) Valid() bool {
	switch fc {
	case FuncCodeReadCoils,
		FuncCodeReadDiscreteInputs,
		FuncCodeReadHoldingRegisters,
		FuncCodeReadInputRegisters,
		FuncCodeWriteSingleCoil,
		FuncCodeWriteMultipleRegisters:
		return true
	}
	return false
}

func (fc FunctionCode) String() string {
	switch fc {
	case FuncCodeReadCoils:
		return "ReadCoils"
	case FuncCodeReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncCodeReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncCodeReadInputRegisters:
		return "ReadInputRegisters"
	case FuncCodeWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncCodeWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncCodeWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncCodeWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	}
	return fmt.Sprintf("FC%d", byte(fc))
}

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode FunctionCode
	Data         []byte
}

// IsException reports whether the PDU is an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionBit != 0
}

// ExceptionCode returns the exception code of an exception response, or 0.
func (pdu ProtocolDataUnit) ExceptionCode() byte {
	if !pdu.IsException() || len(pdu.Data) == 0 {
		return 0
	}
	return pdu.Data[0]
}

// ValidSlaveID reports whether id is a unicast slave address.
func ValidSlaveID(id int) bool {
	return id >= MinSlaveID && id <= MaxSlaveID
}
