// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned before any I/O for bad addresses, quantities or values.
	ErrInvalidArgument = errors.New("modbus: invalid argument")
	// ErrPortUnavailable is returned when the serial device cannot be opened or configured.
	ErrPortUnavailable = errors.New("modbus: port unavailable")
	// ErrIO is returned on failed or partial writes.
	ErrIO = errors.New("modbus: i/o error")
	// ErrTimeout is returned when no complete response arrives within the configured timeout.
	ErrTimeout = errors.New("modbus: request timed out")
	// ErrProtocol groups every malformed, mismatched or corrupted response.
	ErrProtocol = errors.New("modbus: protocol error")
)

var (
	ErrInvalidAddressRange = fmt.Errorf("%w: slave address out of range [%d,%d]", ErrInvalidArgument, MinSlaveID, MaxSlaveID)
	ErrInvalidPayloadSize  = fmt.Errorf("%w: payload size exceeds protocol limits", ErrInvalidArgument)
	ErrValueOutOfRange     = fmt.Errorf("%w: value out of range", ErrInvalidArgument)

	ErrChecksumMismatch  = fmt.Errorf("%w: checksum mismatch", ErrProtocol)
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrProtocol)
	ErrSlaveMismatch     = fmt.Errorf("%w: slave mismatch", ErrProtocol)
	ErrFunctionMismatch  = fmt.Errorf("%w: function mismatch", ErrProtocol)
)

// ExceptionError is a successful exchange in which the slave refused the request.
type ExceptionError struct {
	FunctionCode  FunctionCode
	ExceptionCode byte
}

// Description returns the decoded exception text.
func (e *ExceptionError) Description() string {
	return Describe(e.ExceptionCode)
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception '%d' (%s), function '%d'", e.ExceptionCode, e.Description(), byte(e.FunctionCode&^ExceptionBit))
}

// IsProtocolError reports whether err is one of the protocol error kinds.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}
