// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package asset provides the engine's asset container and the Source
// abstraction the resource loaders read from. The kpk archive format keeps
// a gob-encoded index up front, so every file's location is known before
// anything is read, and compresses each file individually with lz4 so
// entries can be decompressed straight from their offset. The archive as a
// whole is deliberately uncompressed; per-file frames trade some space for
// concurrent, streaming-friendly reads.
package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Package errors.
var (
	ErrFormat   = errors.New("asset: corrupted or not a kpk archive")
	ErrNotFound = errors.New("asset: no entry with that name")
)

// Source yields asset bytes by name. Directory trees and kpk archives both
// satisfy it, so loaders do not care where an asset lives. Implementations
// must be safe for concurrent use.
type Source interface {

	// ReadAll returns the entire decoded contents of the named asset.
	ReadAll(name string) ([]byte, error)

	// Names lists every asset the source can serve, in no particular order.
	Names() ([]string, error)
}

// Dir serves assets straight from a directory tree. Names are
// slash-separated paths relative to the root.
type Dir string

// ReadAll implements Source.
func (d Dir) ReadAll(name string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("asset: name %q escapes the source root: %w", name, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(string(d), clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("asset: %q: %w", name, ErrNotFound)
	}
	return data, err
}

// Names implements Source.
func (d Dir) Names() ([]string, error) {
	var names []string
	err := filepath.WalkDir(string(d), func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(string(d), path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
