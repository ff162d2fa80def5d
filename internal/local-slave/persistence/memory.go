// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/modbus-rtu-tester/internal/local-slave/model"

// MemoryStorage keeps the model in process memory only.
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*model.DataModel, error) {
	return model.NewDataModel(), nil
}

func (ms *MemoryStorage) Save(*model.DataModel) error { return nil }

func (ms *MemoryStorage) OnWrite(model.TableType, uint16, uint16) {}

func (ms *MemoryStorage) Close() error { return nil }
