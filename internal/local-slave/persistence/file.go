// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-rtu-tester/internal/local-slave/model"
)

// FileStorage keeps the model in a heap buffer and writes changed ranges back with WriteAt.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the whole file, creating or resizing it to the layout size.
func (fs *FileStorage) Load() (*model.DataModel, error) {
	f, err := openSized(fs.path)
	if err != nil {
		return nil, err
	}

	data := make([]byte, totalSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	fs.file = f
	fs.data = data
	return mapBytesToModel(data), nil
}

// Save writes the whole buffer and syncs it to disk.
func (fs *FileStorage) Save(*model.DataModel) error {
	return fs.sync(0, totalSize)
}

// OnWrite writes back only the modified range.
func (fs *FileStorage) OnWrite(table model.TableType, address, quantity uint16) {
	offset, length := tableRange(table, address, quantity)
	if err := fs.sync(offset, length); err != nil {
		slog.Error("Failed to sync file", "table", table, "address", address, "err", err)
	}
}

func (fs *FileStorage) sync(offset, length int) error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	end := offset + length
	if end > len(fs.data) {
		end = len(fs.data)
	}
	if _, err := fs.file.WriteAt(fs.data[offset:end], int64(offset)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.sync(0, totalSize)
	if cerr := fs.file.Close(); err == nil {
		err = cerr
	}
	fs.file = nil
	fs.data = nil
	return err
}

// openSized opens path read-write, creating it and fixing its size to the layout.
func openSized(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize %s: %w", path, err)
		}
	}
	return f, nil
}
