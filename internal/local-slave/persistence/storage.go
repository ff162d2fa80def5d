// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-rtu-tester/internal/config"
	"github.com/ffutop/modbus-rtu-tester/internal/local-slave/model"
)

// Storage defines the interface for persisting the simulated slave data model.
type Storage interface {
	// Load loads the data model from storage, or returns a zeroed model when nothing was stored yet.
	Load() (*model.DataModel, error)

	// Save saves the current data model to storage.
	Save(model *model.DataModel) error

	// OnWrite is called after a master write modified the given range.
	OnWrite(table model.TableType, address, quantity uint16)

	Close() error
}

// NewStorage selects a Storage implementation by cfg.Type.
func NewStorage(cfg config.PersistenceConfig) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		slog.Info("Initializing simulated slave with memory storage (non-persistent)")
		return NewMemoryStorage(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file storage requires a path")
		}
		slog.Info("Initializing simulated slave with file persistence", "path", cfg.Path)
		return NewFileStorage(cfg.Path), nil
	case "mmap":
		if cfg.Path == "" {
			return nil, fmt.Errorf("mmap storage requires a path")
		}
		slog.Info("Initializing simulated slave with MMAP persistence", "path", cfg.Path)
		return NewMmapStorage(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
