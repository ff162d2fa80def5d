// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ffutop/modbus-rtu-tester/modbus"
	"github.com/ffutop/modbus-rtu-tester/modbus/crc"
)

type mockPort struct {
	io.Reader
	io.Writer
	deadline time.Time
	closed   bool
}

func (m *mockPort) SetDeadline(t time.Time) error {
	m.deadline = t
	return nil
}

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("line down") }

func TestSend(t *testing.T) {
	// Request: 01 03 0000 0001, response: 01 03 02 AABB
	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	resp := crc.Append([]byte{0x01, 0x03, 0x02, 0xAA, 0xBB})

	writer := &bytes.Buffer{}
	// Trailing bytes belong to the next frame and must not be consumed.
	reader := bytes.NewReader(append(append([]byte(nil), resp...), 0x01, 0x02))
	port := &mockPort{Reader: reader, Writer: writer}

	before := time.Now()
	got, err := Send(port, req, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(writer.Bytes(), req) {
		t.Errorf("Request mismatch.\nWant: %X\nGot:  %X", req, writer.Bytes())
	}
	if !bytes.Equal(got, resp) {
		t.Errorf("Response mismatch.\nWant: %X\nGot:  %X", resp, got)
	}
	if reader.Len() != 2 {
		t.Errorf("Send consumed trailing bytes, %d left", reader.Len())
	}
	if port.deadline.Before(before.Add(100 * time.Millisecond)) {
		t.Errorf("deadline %v not set from timeout", port.deadline)
	}
}

func TestSendErrors(t *testing.T) {
	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})

	tests := []struct {
		name    string
		port    *mockPort
		req     []byte
		want    error
		partial int
	}{
		{
			name: "silent slave",
			port: &mockPort{Reader: bytes.NewReader(nil), Writer: io.Discard},
			req:  req,
			want: modbus.ErrTimeout,
		},
		{
			name:    "truncated frame",
			port:    &mockPort{Reader: bytes.NewReader([]byte{0x01, 0x03, 0x02, 0xAA}), Writer: io.Discard},
			req:     req,
			want:    modbus.ErrMalformedResponse,
			partial: 4,
		},
		{
			name: "write failure",
			port: &mockPort{Reader: bytes.NewReader(nil), Writer: failingWriter{}},
			req:  req,
			want: modbus.ErrIO,
		},
		{
			name: "foreign function",
			port: &mockPort{Reader: bytes.NewReader(crc.Append([]byte{0x01, 0x04, 0x02, 0x00, 0x00})), Writer: io.Discard},
			req:  req,
			want: modbus.ErrFunctionMismatch,
		},
		{
			name: "short request",
			port: &mockPort{Reader: bytes.NewReader(nil), Writer: io.Discard},
			req:  []byte{0x01, 0x03},
			want: modbus.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Send(tt.port, tt.req, 20*time.Millisecond)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Send() error = %v, want %v", err, tt.want)
			}
			if tt.partial > 0 && len(got) != tt.partial {
				t.Errorf("partial response = % X, want %d bytes", got, tt.partial)
			}
		})
	}
}

func TestSendExceptionFrame(t *testing.T) {
	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	resp := crc.Append([]byte{0x01, 0x83, 0x02})
	port := &mockPort{Reader: bytes.NewReader(resp), Writer: io.Discard}

	got, err := Send(port, req, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(got, resp) {
		t.Errorf("Send() = % X, want % X", got, resp)
	}
}

func TestFrameDelay(t *testing.T) {
	tests := []struct {
		baud int
		want time.Duration
	}{
		{9600, 3645 * time.Microsecond},
		{19200, 1822 * time.Microsecond},
		{38400, 1750 * time.Microsecond},
		{115200, 1750 * time.Microsecond},
		{0, 1750 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := FrameDelay(tt.baud); got != tt.want {
			t.Errorf("FrameDelay(%d) = %v, want %v", tt.baud, got, tt.want)
		}
	}
	// 8 + 7 characters at 9600 baud
	if got, want := TransactionTime(9600, 8, 7), time.Duration(1562*15+3645)*time.Microsecond; got != want {
		t.Errorf("TransactionTime = %v, want %v", got, want)
	}
}
