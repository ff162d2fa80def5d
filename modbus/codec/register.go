// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// MaxDecimals is the largest supported decimal scaling.
const MaxDecimals = 6

// ToSigned16 reinterprets raw as a two's complement value.
func ToSigned16(raw uint16) int16 {
	return int16(raw)
}

// ToScaled converts raw into a display value, raw / 10^decimals.
func ToScaled(raw uint16, decimals int, signed bool) (float64, error) {
	if err := checkDecimals(decimals); err != nil {
		return 0, err
	}
	v := float64(raw)
	if signed {
		v = float64(ToSigned16(raw))
	}
	return v / math.Pow10(decimals), nil
}

// FromScaled converts a display value into its raw register value.
func FromScaled(value float64, decimals int, signed bool) (uint16, error) {
	if err := checkDecimals(decimals); err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %v", modbus.ErrValueOutOfRange, value)
	}

	raw := math.Round(value * math.Pow10(decimals))
	lo, hi := 0.0, float64(math.MaxUint16)
	if signed {
		lo, hi = math.MinInt16, math.MaxInt16
	}
	if raw < lo || raw > hi {
		return 0, fmt.Errorf("%w: %v with %d decimals is outside [%v,%v]", modbus.ErrValueOutOfRange, value, decimals, lo, hi)
	}
	if signed {
		return uint16(int16(raw)), nil
	}
	return uint16(raw), nil
}

// RegistersFromBytes decodes big endian register words.
func RegistersFromBytes(data []byte) []uint16 {
	regs := make([]uint16, len(data)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return regs
}

// RegistersToBytes encodes register words big endian.
func RegistersToBytes(regs []uint16) []byte {
	data := make([]byte, len(regs)*2)
	for i, r := range regs {
		binary.BigEndian.PutUint16(data[i*2:], r)
	}
	return data
}

func checkDecimals(decimals int) error {
	if decimals < 0 || decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d outside [0,%d]", modbus.ErrInvalidArgument, decimals, MaxDecimals)
	}
	return nil
}
