// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

const (
	initial    = 0xFFFF
	polynomial = 0xA001
)

// CRC is a Modbus CRC-16 accumulator.
type CRC struct {
	value uint16
}

// Reset restores the initial accumulator value.
func (crc *CRC) Reset() *CRC {
	crc.value = initial
	return crc
}

// PushBytes folds data into the accumulator.
func (crc *CRC) PushBytes(data []byte) *CRC {
	v := crc.value
	for _, b := range data {
		v ^= uint16(b)
		for i := 0; i < 8; i++ {
			if v&1 != 0 {
				v = (v >> 1) ^ polynomial
			} else {
				v >>= 1
			}
		}
	}
	crc.value = v
	return crc
}

// Value returns the current checksum.
func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum computes the Modbus CRC-16 of data.
func Checksum(data []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(data).Value()
}

// Append appends the checksum of data to data, low byte first.
func Append(data []byte) []byte {
	sum := Checksum(data)
	return append(data, byte(sum), byte(sum>>8))
}
