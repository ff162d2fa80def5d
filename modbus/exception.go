// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// Exception codes
const (
	ExceptionCodeIllegalFunction                    = 0x01
	ExceptionCodeIllegalDataAddress                 = 0x02
	ExceptionCodeIllegalDataValue                   = 0x03
	ExceptionCodeServerDeviceFailure                = 0x04
	ExceptionCodeAcknowledge                        = 0x05
	ExceptionCodeServerDeviceBusy                   = 0x06
	ExceptionCodeMemoryParityError                  = 0x08
	ExceptionCodeGatewayPathUnavailable             = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond = 0x0B
)

// DescriptionNonStandard is returned by Describe for codes outside the standard set.
const DescriptionNonStandard = "Non-standard or vendor-specific exception"

// Describe returns a human readable description of an exception code.
func Describe(code byte) string {
	switch code {
	case ExceptionCodeIllegalFunction:
		return "Illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "Illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "Illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "Slave device failure"
	case ExceptionCodeAcknowledge:
		return "Acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "Slave device busy"
	case ExceptionCodeMemoryParityError:
		return "Memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "Gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "Gateway target device failed to respond"
	}
	return DescriptionNonStandard
}
