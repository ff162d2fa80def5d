// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ffutop/modbus-rtu-tester/modbus"
)

type InvalidLengthError struct {
	Length byte
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid length received: %d", e.Length)
}

func (e *InvalidLengthError) Unwrap() error {
	return modbus.ErrMalformedResponse
}

// CalculateRequestLength returns the expected total length of a request ADU based on its header.
func CalculateRequestLength(functionCode modbus.FunctionCode, header []byte) (int, error) {
	// Header should be at least 7 bytes to cover ByteCount for 0x0F/0x10.
	// [SlaveID, Func, Addr(2), Quant(2), ByteCount]
	switch functionCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", byte(functionCode), len(header))
		}
		// Total = 7 (Header up to ByteCount) + N (Data) + 2 (CRC)
		return 7 + int(header[6]) + crcSize, nil
	}
	return 0, fmt.Errorf("unsupported function code: 0x%02X", byte(functionCode))
}

// ReadResponse assembles one response frame for functionCode from r.
// The frame length is derived from the header, so nothing past the frame is consumed.
// Whatever arrived is returned alongside the error, for tracing.
//
// Only a silent line is reported as modbus.ErrTimeout. A frame cut short by the deadline
// is malformed, and additionally a checksum mismatch when the bytes received fail the CRC.
func ReadResponse(functionCode modbus.FunctionCode, r io.Reader, deadline time.Time) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	data := make([]byte, MaxSize)
	n, err := readFrame(functionCode, r, data, deadline)
	if err != nil && n > 0 && errors.Is(err, modbus.ErrTimeout) {
		err = truncatedError(data[:n])
	}
	return data[:n], err
}

func readFrame(functionCode modbus.FunctionCode, r io.Reader, data []byte, deadline time.Time) (int, error) {
	n, err := readFull(r, data[:headerSize], deadline)
	if err != nil {
		return n, err
	}

	var toRead int
	switch fc := modbus.FunctionCode(data[1]); {
	case fc == functionCode|modbus.ExceptionBit:
		toRead = ExceptionSize - headerSize
	case fc != functionCode:
		return headerError(r, data, n, deadline, fmt.Errorf("%w: response function 0x%02X does not match request 0x%02X",
			modbus.ErrFunctionMismatch, byte(fc), byte(functionCode)))
	default:
		switch functionCode {
		case modbus.FuncCodeReadCoils,
			modbus.FuncCodeReadDiscreteInputs,
			modbus.FuncCodeReadHoldingRegisters,
			modbus.FuncCodeReadInputRegisters:

			m, err := readFull(r, data[n:n+1], deadline)
			n += m
			if err != nil {
				return n, err
			}
			length := data[n-1]
			if int(length) > MaxSize-5 || length == 0 {
				return headerError(r, data, n, deadline, &InvalidLengthError{Length: length})
			}
			toRead = int(length) + crcSize
		case modbus.FuncCodeWriteSingleCoil,
			modbus.FuncCodeWriteSingleRegister,
			modbus.FuncCodeWriteMultipleCoils,
			modbus.FuncCodeWriteMultipleRegisters:

			toRead = 4 + crcSize
		default:
			return n, fmt.Errorf("%w: function code not handled: %d", modbus.ErrFunctionMismatch, functionCode)
		}
	}

	m, err := readFull(r, data[n:n+toRead], deadline)
	return n + m, err
}

// headerError collects the rest of a frame whose header cannot be interpreted.
// If the bytes received fail the CRC the frame was corrupted on the line and
// the checksum error is reported instead of cause.
func headerError(r io.Reader, data []byte, n int, deadline time.Time, cause error) (int, error) {
	m, _ := readFull(r, data[n:], deadline)
	n += m
	if _, err := Decode(data[:n]); errors.Is(err, modbus.ErrChecksumMismatch) {
		return n, err
	}
	return n, cause
}

// truncatedError classifies a response that stopped before its announced length.
func truncatedError(partial []byte) error {
	if _, err := Decode(partial); errors.Is(err, modbus.ErrChecksumMismatch) {
		return fmt.Errorf("%w: response truncated after %d bytes: %w", modbus.ErrMalformedResponse, len(partial), err)
	}
	return fmt.Errorf("%w: response truncated after %d bytes", modbus.ErrMalformedResponse, len(partial))
}

// readFull reads len(buf) bytes unless the deadline passes first.
func readFull(r io.Reader, buf []byte, deadline time.Time) (int, error) {
	var n int
	for n < len(buf) {
		if time.Now().After(deadline) {
			return n, modbus.ErrTimeout
		}
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			switch {
			case errors.Is(err, modbus.ErrTimeout):
				return n, err
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				// nothing more will arrive before the deadline
				return n, fmt.Errorf("%w: received %d of %d bytes", modbus.ErrTimeout, n, len(buf))
			default:
				return n, fmt.Errorf("%w: %v", modbus.ErrIO, err)
			}
		}
	}
	return n, nil
}
