// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/modbus/crc"
)

func TestEncode(t *testing.T) {
	raw, err := Encode(1, modbus.FuncCodeReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if !bytes.Equal(raw, want) {
		t.Errorf("Encode() = % X, want % X", raw, want)
	}
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		slaveID byte
		payload []byte
		wantErr error
	}{
		{"Broadcast", 0, []byte{0, 0, 0, 1}, modbus.ErrInvalidAddressRange},
		{"Reserved", 248, []byte{0, 0, 0, 1}, modbus.ErrInvalidAddressRange},
		{"TooLong", 1, make([]byte, 253), modbus.ErrInvalidPayloadSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.slaveID, modbus.FuncCodeReadHoldingRegisters, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Encode() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, modbus.ErrInvalidArgument) {
				t.Errorf("Encode() error = %v should be an invalid argument", err)
			}
		})
	}
}

func TestDecode_RoundTripAndTamper(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		payload := make([]byte, r.Intn(200))
		r.Read(payload)
		slaveID := byte(1 + r.Intn(247))
		fc := modbus.FunctionCode(1 + r.Intn(0x7F))

		raw, err := Encode(slaveID, fc, payload)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		adu, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if adu.SlaveID != slaveID || adu.Pdu.FunctionCode != fc || !bytes.Equal(adu.Pdu.Data, payload) {
			t.Fatalf("round trip mismatch: %+v", adu)
		}

		bit := r.Intn(len(raw) * 8)
		tampered := append([]byte(nil), raw...)
		tampered[bit/8] ^= 1 << (bit % 8)
		if _, err := Decode(tampered); !errors.Is(err, modbus.ErrChecksumMismatch) {
			t.Fatalf("Decode(tampered bit %d) error = %v, want checksum mismatch", bit, err)
		}
	}
}

func TestDecode_Short(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x03, 0x00}); !errors.Is(err, modbus.ErrMalformedResponse) {
		t.Errorf("Decode() error = %v, want malformed", err)
	}
}

func TestDecodeResponse(t *testing.T) {
	readReq := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: []byte{0x00, 0x00, 0x00, 0x02},
	}}
	coilReq := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleCoil, Data: []byte{0x00, 0x0A, 0xFF, 0x00},
	}}
	writeReq := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteMultipleRegisters, Data: []byte{0x00, 0x05, 0x00, 0x01, 0x02, 0x00, 0x07},
	}}
	bitsReq := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadCoils, Data: []byte{0x00, 0x00, 0x00, 0x0A},
	}}

	tests := []struct {
		name    string
		req     *ApplicationDataUnit
		resp    []byte
		wantErr error
	}{
		{"Registers", readReq, []byte{0x01, 0x03, 0x04, 0x00, 0x01, 0xFF, 0xFF}, nil},
		{"Bits", bitsReq, []byte{0x01, 0x01, 0x02, 0xFF, 0x03}, nil},
		{"Coil", coilReq, []byte{0x01, 0x05, 0x00, 0x0A, 0xFF, 0x00}, nil},
		{"WriteRegisters", writeReq, []byte{0x01, 0x10, 0x00, 0x05, 0x00, 0x01}, nil},
		{"SlaveMismatch", readReq, []byte{0x02, 0x03, 0x04, 0x00, 0x01, 0xFF, 0xFF}, modbus.ErrSlaveMismatch},
		{"FunctionMismatch", readReq, []byte{0x01, 0x04, 0x04, 0x00, 0x01, 0xFF, 0xFF}, modbus.ErrFunctionMismatch},
		{"ByteCountMismatch", readReq, []byte{0x01, 0x03, 0x02, 0x00, 0x01}, modbus.ErrMalformedResponse},
		{"ByteCountLies", readReq, []byte{0x01, 0x03, 0x02, 0x00, 0x01, 0xFF, 0xFF}, modbus.ErrMalformedResponse},
		{"CoilValueInvalid", coilReq, []byte{0x01, 0x05, 0x00, 0x0A, 0x12, 0x34}, modbus.ErrMalformedResponse},
		{"CoilEchoMismatch", coilReq, []byte{0x01, 0x05, 0x00, 0x0A, 0x00, 0x00}, modbus.ErrMalformedResponse},
		{"WriteEchoMismatch", writeReq, []byte{0x01, 0x10, 0x00, 0x06, 0x00, 0x01}, modbus.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.req, crc.Append(append([]byte(nil), tt.resp...)))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeResponse() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !modbus.IsProtocolError(err) {
				t.Errorf("DecodeResponse() error = %v should be a protocol error", err)
			}
		})
	}
}

func TestDecodeResponse_Exception(t *testing.T) {
	req := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: []byte{0x00, 0x00, 0x00, 0x01},
	}}
	_, err := DecodeResponse(req, crc.Append([]byte{0x01, 0x83, 0x02}))

	var exc *modbus.ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("DecodeResponse() error = %v, want ExceptionError", err)
	}
	if exc.ExceptionCode != 2 || exc.Description() != "Illegal data address" {
		t.Errorf("unexpected exception %+v (%s)", exc, exc.Description())
	}

	// exception for a different function is still a function mismatch
	_, err = DecodeResponse(req, crc.Append([]byte{0x01, 0x84, 0x02}))
	if !errors.Is(err, modbus.ErrFunctionMismatch) {
		t.Errorf("DecodeResponse() error = %v, want function mismatch", err)
	}
}

func TestExpectedDataLength(t *testing.T) {
	tests := []struct {
		name string
		pdu  modbus.ProtocolDataUnit
		want int
		ok   bool
	}{
		{"Holding", modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0, 0, 0, 125}}, 251, true},
		{"Coils9", modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0, 0, 0, 9}}, 3, true},
		{"Coils8", modbus.ProtocolDataUnit{FunctionCode: 0x02, Data: []byte{0, 0, 0, 8}}, 2, true},
		{"WriteCoil", modbus.ProtocolDataUnit{FunctionCode: 0x05, Data: []byte{0, 0, 0xFF, 0}}, 4, true},
		{"Short", modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0}}, 0, false},
		{"Unknown", modbus.ProtocolDataUnit{FunctionCode: 0x2B}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExpectedDataLength(tt.pdu)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ExpectedDataLength() = %d, %v, want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
