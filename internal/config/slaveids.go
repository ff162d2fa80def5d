// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// ParseSlaveIDs parses a list of slave ids such as "1,2,5-10".
// Every id must be a valid slave address; duplicates are dropped.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	seen := make(map[int]bool)
	add := func(id int) error {
		if !modbus.ValidSlaveID(id) {
			return fmt.Errorf("%w: slave id %d outside [%d,%d]", modbus.ErrInvalidArgument, id, modbus.MinSlaveID, modbus.MaxSlaveID)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, byte(id))
		}
		return nil
	}

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid start of range %q", modbus.ErrInvalidArgument, part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid end of range %q", modbus.ErrInvalidArgument, part)
			}
			if start > end {
				return nil, fmt.Errorf("%w: start of range %d is greater than end %d", modbus.ErrInvalidArgument, start, end)
			}
			for i := start; i <= end; i++ {
				if err := add(i); err != nil {
					return nil, err
				}
			}
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid slave id %q", modbus.ErrInvalidArgument, part)
		}
		if err := add(id); err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no slave ids in %q", modbus.ErrInvalidArgument, input)
	}
	return ids, nil
}
