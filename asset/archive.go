// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
	"golang.org/x/exp/mmap"
)

// Sizes of the fixed-length fields at the front of a kpk file.
const (
	magicLength      = 4
	headerSizeLength = binary.MaxVarintLen64
)

var magic = [magicLength]byte{'K', 'P', 'K', 0}

// IndexEntry locates one file inside the archive. Offset is relative to
// the start of the data section that follows the header.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the gob-encoded archive header holding the file index.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

// Archive reads a kpk file through an io.ReaderAt, so several goroutines
// can pull entries out of it concurrently.
type Archive struct {
	reader    io.ReaderAt
	header    Header
	index     map[string]IndexEntry
	dataStart int64
	closer    io.Closer
}

// Open parses the archive header from r. It verifies the magic before
// trusting anything else in the file.
func Open(r io.ReaderAt) (*Archive, error) {
	var head [magicLength]byte
	if n, err := r.ReadAt(head[:], 0); err != nil || n < magicLength {
		return nil, ErrFormat
	}
	if head != magic {
		return nil, ErrFormat
	}

	sizeBytes := make([]byte, headerSizeLength)
	if n, err := r.ReadAt(sizeBytes, magicLength); err != nil || n < headerSizeLength {
		return nil, ErrFormat
	}
	headerSize, err := binaryToInt64(sizeBytes)
	if err != nil || headerSize <= 0 {
		return nil, ErrFormat
	}

	headerBytes := make([]byte, headerSize)
	if n, err := r.ReadAt(headerBytes, magicLength+headerSizeLength); err != nil || int64(n) < headerSize {
		return nil, ErrFormat
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, fmt.Errorf("asset: header decode: %w", ErrFormat)
	}

	ar := &Archive{
		reader:    r,
		header:    header,
		index:     make(map[string]IndexEntry, len(header.Index)),
		dataStart: magicLength + headerSizeLength + headerSize,
	}
	for _, e := range header.Index {
		ar.index[e.Name] = e
	}
	return ar, nil
}

// OpenFile memory-maps the archive at path and opens it. Close releases
// the mapping.
func OpenFile(path string) (*Archive, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	ar, err := Open(ra)
	if err != nil {
		ra.Close()
		return nil, err
	}
	ar.closer = ra
	return ar, nil
}

// Header returns the parsed archive header.
func (a *Archive) Header() Header {
	return a.header
}

// ReadAll implements Source. The entry is decompressed on the fly from its
// recorded offset.
func (a *Archive) ReadAll(name string) ([]byte, error) {
	entry, ok := a.index[name]
	if !ok {
		return nil, fmt.Errorf("asset: %q: %w", name, ErrNotFound)
	}

	raw := make([]byte, entry.CompressedSize)
	if n, err := a.reader.ReadAt(raw, a.dataStart+entry.Offset); err != nil || int64(n) < entry.CompressedSize {
		return nil, fmt.Errorf("asset: short read for %q: %w", name, ErrFormat)
	}

	out := bytes.NewBuffer(make([]byte, 0, entry.Size))
	if _, err := io.Copy(out, lz4.NewReader(bytes.NewReader(raw))); err != nil {
		return nil, fmt.Errorf("asset: decompress %q: %w", name, err)
	}
	if int64(out.Len()) != entry.Size {
		return nil, fmt.Errorf("asset: size mismatch for %q: %w", name, ErrFormat)
	}
	return out.Bytes(), nil
}

// Names implements Source.
func (a *Archive) Names() ([]string, error) {
	names := make([]string, 0, len(a.index))
	for _, e := range a.header.Index {
		names = append(names, e.Name)
	}
	return names, nil
}

// Close releases the underlying mapping, if the archive owns one.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func int64ToBinary(num int64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	binary.PutVarint(buf, num)
	return buf
}

func binaryToInt64(bts []byte) (int64, error) {
	num, err := binary.ReadVarint(bytes.NewReader(bts))
	if err != nil {
		return 0, err
	}
	return num, nil
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(data); err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	return gob.NewDecoder(bytes.NewReader(bts)).Decode(obj)
}
