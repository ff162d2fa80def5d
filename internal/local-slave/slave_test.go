// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package localslave

import (
	"bytes"
	"testing"

	"github.com/ffutop/modbus-rtu-tester/internal/local-slave/model"
	"github.com/ffutop/modbus-rtu-tester/modbus"
)

type writeRecord struct {
	table             model.TableType
	address, quantity uint16
}

type recordingStorage struct {
	writes []writeRecord
}

func (r *recordingStorage) Load() (*model.DataModel, error) { return model.NewDataModel(), nil }
func (r *recordingStorage) Save(*model.DataModel) error     { return nil }
func (r *recordingStorage) Close() error                    { return nil }
func (r *recordingStorage) OnWrite(t model.TableType, a, q uint16) {
	r.writes = append(r.writes, writeRecord{t, a, q})
}

func newTestSlave() (*LocalSlave, *recordingStorage) {
	m := model.NewDataModel()
	_ = m.SetRegisters(model.TableHoldingRegisters, 0, 0x0102, 0x0304)
	_ = m.SetRegisters(model.TableInputRegisters, 10, 0xFFFF)
	_ = m.SetBits(model.TableCoils, 0, true, false, true)
	_ = m.SetBits(model.TableDiscreteInputs, 3, true)
	rec := &recordingStorage{}
	return NewLocalSlave(m, rec), rec
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name string
		req  modbus.ProtocolDataUnit
		want modbus.ProtocolDataUnit
	}{
		{
			name: "read holding registers",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x02}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x04, 0x01, 0x02, 0x03, 0x04}},
		},
		{
			name: "read input registers",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x00, 0x0A, 0x00, 0x01}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x02, 0xFF, 0xFF}},
		},
		{
			name: "read coils",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0x00, 0x00, 0x00, 0x03}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0x01, 0x05}},
		},
		{
			name: "read discrete inputs",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x02, Data: []byte{0x00, 0x00, 0x00, 0x0A}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x02, Data: []byte{0x02, 0x08, 0x00}},
		},
		{
			name: "quantity zero",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x00}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x83, Data: []byte{0x03}},
		},
		{
			name: "quantity too large",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x7E}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x83, Data: []byte{0x03}},
		},
		{
			name: "address out of range",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0xFF, 0xFF, 0x00, 0x02}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x83, Data: []byte{0x02}},
		},
		{
			name: "unsupported function",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x2B, Data: []byte{0x0E}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0xAB, Data: []byte{0x01}},
		},
		{
			name: "bad coil value",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x05, Data: []byte{0x00, 0x01, 0x12, 0x34}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x85, Data: []byte{0x03}},
		},
		{
			name: "byte count mismatch",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0x00, 0x00, 0x00, 0x01, 0x04, 0x00, 0x01}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x90, Data: []byte{0x03}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSlave()
			got := s.Process(tt.req)
			if got.FunctionCode != tt.want.FunctionCode || !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("Process() = %x % X, want %x % X", byte(got.FunctionCode), got.Data, byte(tt.want.FunctionCode), tt.want.Data)
			}
		})
	}
}

func TestProcessWrites(t *testing.T) {
	s, rec := newTestSlave()

	// FC16 echoes address and quantity.
	resp := s.Process(modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0x00, 0x05, 0x00, 0x02, 0x04, 0x00, 0x0A, 0xFF, 0xF6}})
	if resp.FunctionCode != 0x10 || !bytes.Equal(resp.Data, []byte{0x00, 0x05, 0x00, 0x02}) {
		t.Fatalf("FC16 response = %x % X", byte(resp.FunctionCode), resp.Data)
	}
	if got := s.Model().HoldingRegisters[6]; got != 0xFFF6 {
		t.Errorf("register 6 = %#04x, want 0xfff6", got)
	}

	// FC5 echoes the request.
	req := modbus.ProtocolDataUnit{FunctionCode: 0x05, Data: []byte{0x00, 0x01, 0xFF, 0x00}}
	resp = s.Process(req)
	if resp.FunctionCode != 0x05 || !bytes.Equal(resp.Data, req.Data) {
		t.Fatalf("FC5 response = %x % X", byte(resp.FunctionCode), resp.Data)
	}
	if s.Model().Coils[1] != 1 {
		t.Error("coil 1 not set")
	}

	// FC6
	resp = s.Process(modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x09, 0x12, 0x34}})
	if resp.FunctionCode != 0x06 {
		t.Fatalf("FC6 response = %x % X", byte(resp.FunctionCode), resp.Data)
	}
	if got := s.Model().HoldingRegisters[9]; got != 0x1234 {
		t.Errorf("register 9 = %#04x, want 0x1234", got)
	}

	// FC15 with 10 coils: 0b11_0000_0011
	resp = s.Process(modbus.ProtocolDataUnit{FunctionCode: 0x0F, Data: []byte{0x00, 0x10, 0x00, 0x0A, 0x02, 0x03, 0x03}})
	if resp.FunctionCode != 0x0F || !bytes.Equal(resp.Data, []byte{0x00, 0x10, 0x00, 0x0A}) {
		t.Fatalf("FC15 response = %x % X", byte(resp.FunctionCode), resp.Data)
	}
	want := []byte{1, 1, 0, 0, 0, 0, 0, 0, 1, 1}
	if !bytes.Equal(s.Model().Coils[16:26], want) {
		t.Errorf("coils 16..25 = %v, want %v", s.Model().Coils[16:26], want)
	}

	wantWrites := []writeRecord{
		{model.TableHoldingRegisters, 5, 2},
		{model.TableCoils, 1, 1},
		{model.TableHoldingRegisters, 9, 1},
		{model.TableCoils, 16, 10},
	}
	if len(rec.writes) != len(wantWrites) {
		t.Fatalf("OnWrite calls = %v, want %v", rec.writes, wantWrites)
	}
	for i := range wantWrites {
		if rec.writes[i] != wantWrites[i] {
			t.Errorf("OnWrite[%d] = %v, want %v", i, rec.writes[i], wantWrites[i])
		}
	}
}

func TestProcessRejectedWriteDoesNotPersist(t *testing.T) {
	s, rec := newTestSlave()
	s.Process(modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0xFF, 0xFF, 0x00, 0x02, 0x04, 0, 0, 0, 0}})
	if len(rec.writes) != 0 {
		t.Errorf("OnWrite called for rejected write: %v", rec.writes)
	}
}
