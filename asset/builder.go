// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pierrec/lz4"
)

// Builder assembles a kpk archive. Archives are versioned and cannot be
// appended to after the fact. Entries are compressed into a temporary
// directory as they arrive, then bundled by WriteTo.
type Builder struct {
	mu      sync.Mutex
	header  Header
	tempDir string
	files   []stagedFile
	counter int
}

type stagedFile struct {
	name     string
	tempName string
	size     int64
	packed   int64
}

// NewBuilder creates a Builder. Any index in the header is discarded; it
// is rebuilt from the added entries. Call Close to drop the staging
// directory once the archive has been written.
func NewBuilder(header Header) (*Builder, error) {
	temp, err := os.MkdirTemp("", "kpkBuilder")
	if err != nil {
		return nil, fmt.Errorf("asset: staging dir: %w", err)
	}
	header.Index = nil
	return &Builder{
		header:  header,
		tempDir: temp,
	}, nil
}

// Add compresses the contents of r into the staging area under the given
// entry name. It blocks until lz4 finishes and is safe to call from
// several goroutines at once.
func (b *Builder) Add(name string, r io.Reader) error {
	b.mu.Lock()
	b.counter++
	tempName := strconv.Itoa(b.counter)
	b.mu.Unlock()

	f, err := os.Create(filepath.Join(b.tempDir, tempName))
	if err != nil {
		return err
	}
	defer f.Close()

	w := lz4.NewWriter(f)
	written, err := io.Copy(w, r)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.files = append(b.files, stagedFile{
		name:     name,
		tempName: tempName,
		size:     written,
		packed:   info.Size(),
	})
	b.mu.Unlock()
	return nil
}

// WriteTo bundles every staged entry into a ready-to-use archive and
// writes it to w. The staged entries are consumed.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	header := b.header
	var offset int64
	for _, f := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           f.name,
			Offset:         offset,
			Size:           f.size,
			CompressedSize: f.packed,
		})
		offset += f.packed
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, chunk := range [][]byte{magic[:], int64ToBinary(int64(len(rawHeader))), rawHeader} {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	for _, f := range b.files {
		staged, err := os.Open(filepath.Join(b.tempDir, f.tempName))
		if err != nil {
			return total, fmt.Errorf("asset: staged entry %q: %w", f.name, err)
		}
		n, err := io.Copy(w, staged)
		staged.Close()
		total += n
		if err != nil {
			return total, err
		}
	}

	b.files = b.files[:0]
	return total, nil
}

// Close removes the staging directory.
func (b *Builder) Close() error {
	return os.RemoveAll(b.tempDir)
}
