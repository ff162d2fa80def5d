// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/modbus/crc"
)

// ApplicationDataUnit is a PDU addressed to one slave on a serial line.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Encode builds the wire frame for a request.
func Encode(slaveID byte, functionCode modbus.FunctionCode, payload []byte) ([]byte, error) {
	adu := &ApplicationDataUnit{
		SlaveID: slaveID,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: functionCode, Data: payload},
	}
	return adu.Encode()
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes, low byte first
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	if !modbus.ValidSlaveID(int(adu.SlaveID)) {
		return nil, fmt.Errorf("%w: got %d", modbus.ErrInvalidAddressRange, adu.SlaveID)
	}
	length := len(adu.Pdu.Data) + MinSize
	if length > MaxSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds %d", modbus.ErrInvalidPayloadSize, length, MaxSize)
	}
	raw = make([]byte, headerSize, length)
	raw[0] = adu.SlaveID
	raw[1] = byte(adu.Pdu.FunctionCode)
	raw = append(raw, adu.Pdu.Data...)
	return crc.Append(raw), nil
}

// Decode verifies the CRC of raw and splits it into slave id and PDU.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		return nil, fmt.Errorf("%w: length %d does not meet minimum %d", modbus.ErrMalformedResponse, length, MinSize)
	}

	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if expected := crc.Checksum(raw[:length-crcSize]); checksum != expected {
		return nil, fmt.Errorf("%w: received 0x%04X, computed 0x%04X", modbus.ErrChecksumMismatch, checksum, expected)
	}

	adu := &ApplicationDataUnit{SlaveID: raw[0]}
	adu.Pdu.FunctionCode = modbus.FunctionCode(raw[1])
	adu.Pdu.Data = append([]byte(nil), raw[headerSize:length-crcSize]...)
	if adu.Pdu.IsException() && len(adu.Pdu.Data) != 1 {
		return nil, fmt.Errorf("%w: exception payload of %d bytes", modbus.ErrMalformedResponse, len(adu.Pdu.Data))
	}
	return adu, nil
}

// DecodeResponse decodes raw and verifies it answers req.
// Exception responses are returned as *modbus.ExceptionError.
func DecodeResponse(req *ApplicationDataUnit, raw []byte) (*ApplicationDataUnit, error) {
	resp, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := req.Verify(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Verify checks that resp answers req: slave id, function code and payload shape.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if req.SlaveID != resp.SlaveID {
		return fmt.Errorf("%w: response slave id %d does not match request %d", modbus.ErrSlaveMismatch, resp.SlaveID, req.SlaveID)
	}
	if resp.Pdu.FunctionCode&^modbus.ExceptionBit != req.Pdu.FunctionCode {
		return fmt.Errorf("%w: response function 0x%02X does not match request 0x%02X",
			modbus.ErrFunctionMismatch, byte(resp.Pdu.FunctionCode), byte(req.Pdu.FunctionCode))
	}
	if resp.Pdu.IsException() {
		return &modbus.ExceptionError{FunctionCode: resp.Pdu.FunctionCode, ExceptionCode: resp.Pdu.ExceptionCode()}
	}
	return verifyShape(req.Pdu, resp.Pdu)
}

// ExpectedDataLength returns the response data length (without function code) for a request,
// or false if the request cannot be sized.
func ExpectedDataLength(req modbus.ProtocolDataUnit) (int, bool) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		if len(req.Data) < 4 {
			return 0, false
		}
		count := int(binary.BigEndian.Uint16(req.Data[2:]))
		return 1 + (count+7)/8, true
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(req.Data) < 4 {
			return 0, false
		}
		count := int(binary.BigEndian.Uint16(req.Data[2:]))
		return 1 + count*2, true
	case modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		return 4, true
	}
	return 0, false
}

func verifyShape(req, resp modbus.ProtocolDataUnit) error {
	want, ok := ExpectedDataLength(req)
	if !ok {
		return fmt.Errorf("%w: unsupported function 0x%02X", modbus.ErrFunctionMismatch, byte(req.FunctionCode))
	}
	if len(resp.Data) != want {
		return fmt.Errorf("%w: data length %d, expected %d", modbus.ErrMalformedResponse, len(resp.Data), want)
	}

	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters:
		if int(resp.Data[0]) != want-1 {
			return fmt.Errorf("%w: byte count %d, expected %d", modbus.ErrMalformedResponse, resp.Data[0], want-1)
		}
	case modbus.FuncCodeWriteSingleCoil:
		value := binary.BigEndian.Uint16(resp.Data[2:])
		if value != 0xFF00 && value != 0x0000 {
			return fmt.Errorf("%w: coil value 0x%04X", modbus.ErrMalformedResponse, value)
		}
		fallthrough
	default:
		// write responses echo address and value/quantity
		if len(req.Data) < 4 || string(req.Data[:4]) != string(resp.Data[:4]) {
			return fmt.Errorf("%w: echo % X does not match request", modbus.ErrMalformedResponse, resp.Data)
		}
	}
	return nil
}
