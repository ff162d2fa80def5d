// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-rtu-tester/modbus"
	rtupacket "github.com/ffutop/modbus-rtu-tester/modbus/rtu"
	"github.com/ffutop/modbus-rtu-tester/transport"
)

// Send writes one request frame to port and reads back the matching response frame,
// waiting at most timeout after the write completed.
// On failure the bytes received so far are returned with the error.
func Send(port transport.Port, aduRequest []byte, timeout time.Duration) (aduResponse []byte, err error) {
	if len(aduRequest) < rtupacket.MinSize {
		return nil, fmt.Errorf("%w: request of %d bytes", modbus.ErrInvalidPayloadSize, len(aduRequest))
	}

	slog.Debug("send to modbus slave", "request", hex.EncodeToString(aduRequest))
	if _, err = port.Write(aduRequest); err != nil {
		if !errors.Is(err, modbus.ErrIO) {
			err = fmt.Errorf("%w: %v", modbus.ErrIO, err)
		}
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if err = port.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %v", modbus.ErrIO, err)
	}

	data, err := rtupacket.ReadResponse(modbus.FunctionCode(aduRequest[1]), port, deadline)
	if err != nil {
		if len(data) > 0 {
			slog.Debug("partial response from modbus slave", "response", hex.EncodeToString(data), "err", err)
		}
		return data, err
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(data))
	return data, nil
}

// FrameDelay returns the t3.5 inter-frame silence for baudRate.
// Above 19200 baud the fixed 1750µs is used.
func FrameDelay(baudRate int) time.Duration {
	return charDelay(baudRate, 0)
}

// charDelay is the time chars characters take on the wire, plus the t3.5 silence.
func charDelay(baudRate, chars int) time.Duration {
	var characterDelay, frameDelay int

	if baudRate <= 0 || baudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / baudRate
		frameDelay = 35000000 / baudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}

// TransactionTime estimates the wire time of a request and its response.
func TransactionTime(baudRate, requestLen, responseLen int) time.Duration {
	return charDelay(baudRate, requestLen+responseLen)
}
