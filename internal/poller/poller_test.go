// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/internal/master"
	"github.com/ffutop/modbus-rtu-tester/modbus"
)

type fakeReader struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *fakeReader) Read(ctx context.Context, cfg config.SerialConfig, slaveID int, kind master.RegisterKind, address, count uint16, in master.Interpretation) ([]master.Reading, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return make([]master.Reading, count), nil
}

func TestNew(t *testing.T) {
	r := &fakeReader{}
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Interval: time.Second, Count: 1}, false},
		{"too fast", Config{Interval: 50 * time.Millisecond, Count: 1}, true},
		{"too slow", Config{Interval: 11 * time.Second, Count: 1}, true},
		{"no count", Config{Interval: time.Second}, true},
	}
	for _, tt := range tests {
		_, err := New(tt.cfg, r)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: New() err=%v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, modbus.ErrInvalidArgument) {
			t.Errorf("%s: error %v is not ErrInvalidArgument", tt.name, err)
		}
	}
}

func TestPollOnce(t *testing.T) {
	p, err := New(Config{Interval: time.Second, Count: 3, Kind: master.HoldingRegisters}, &fakeReader{})
	if err != nil {
		t.Fatal(err)
	}
	res := p.PollOnce(context.Background())
	if res.Err != nil || len(res.Readings) != 3 || res.At.IsZero() {
		t.Errorf("PollOnce = %+v", res)
	}

	p, _ = New(Config{Interval: time.Second, Count: 1}, &fakeReader{err: modbus.ErrTimeout})
	if res := p.PollOnce(context.Background()); !errors.Is(res.Err, modbus.ErrTimeout) {
		t.Errorf("PollOnce err = %v, want ErrTimeout", res.Err)
	}
}

func TestRunSkipsTicksWhileBusy(t *testing.T) {
	r := &fakeReader{release: make(chan struct{})}
	// below the configurable minimum to keep the test short
	p := &Poller{cfg: Config{Interval: 5 * time.Millisecond, Count: 1}, reader: r}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Result, 16)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	if got := r.calls.Load(); got != 1 {
		t.Errorf("reads while first is in flight = %d, want 1", got)
	}
	if p.Skipped() == 0 {
		t.Error("no ticks were skipped")
	}

	close(r.release)
	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	if got := r.calls.Load(); got < 2 {
		t.Errorf("reads after release = %d, want polling to resume", got)
	}
	if len(out) == 0 {
		t.Error("no results delivered")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &fakeReader{}
	p := &Poller{cfg: Config{Interval: time.Hour, Count: 1}, reader: r}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Result)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	// the immediate poll blocks on the unbuffered channel until read
	select {
	case res := <-out:
		if res.Err != nil {
			t.Errorf("first result err = %v", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("no immediate poll")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
