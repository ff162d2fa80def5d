// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package codec converts between Modbus wire representations and typed values.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// Wire values of a single coil.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// PackBits packs bits LSB first, zero padding the unused high bits of the last byte.
func PackBits(bits []bool) []byte {
	result := make([]byte, (len(bits)+7)/8)
	for i, on := range bits {
		if on {
			result[i/8] |= 1 << uint(i%8)
		}
	}
	return result
}

// UnpackBits is the inverse of PackBits, truncated to count entries.
func UnpackBits(data []byte, count int) []bool {
	if limit := len(data) * 8; count > limit {
		count = limit
	}
	if count < 0 {
		count = 0
	}
	bits := make([]bool, count)
	for i := range bits {
		bits[i] = data[i/8]>>uint(i%8)&1 != 0
	}
	return bits
}

// CoilValue returns the FC5 wire value for on.
func CoilValue(on bool) uint16 {
	if on {
		return CoilOn
	}
	return CoilOff
}

// ParseCoilValue decodes an FC5 wire value.
func ParseCoilValue(value uint16) (bool, error) {
	switch value {
	case CoilOn:
		return true, nil
	case CoilOff:
		return false, nil
	}
	return false, fmt.Errorf("%w: coil value 0x%04X", modbus.ErrMalformedResponse, value)
}

// ParseCoilToken parses a user supplied coil state such as "on", "0" or "true".
func ParseCoilToken(token string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "1", "on", "true", "high":
		return true, nil
	case "0", "off", "false", "low":
		return false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil {
		return false, fmt.Errorf("%w: coil value %q is not a number or on/off", modbus.ErrInvalidArgument, token)
	}
	if n == 0 || n == 1 {
		return n == 1, nil
	}
	return false, fmt.Errorf("%w: coil value must be 0 or 1, got %d", modbus.ErrInvalidArgument, n)
}
