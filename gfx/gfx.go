// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the identity and lifecycle primitives shared by every
// renderer-facing resource: the 64-bit content-addressed ResourceID, the
// load-state enumeration, and the small interface set resources implement.
package gfx

import "hash/fnv"

// State describes where a resource is in its load lifecycle.
type State int32

// Resource lifecycle states.
const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResourceID pairs a human-readable name with the 64-bit hash that acts as
// the resource's identity everywhere in the engine. Two IDs with an equal
// hash refer to the same resource.
type ResourceID struct {
	Name string
	Hash uint64
}

// NewResourceID derives an identity from the resource name alone. The hash
// is FNV-1a over the name bytes and is a pure function of its input. The
// scheme is assumed non-colliding; if that assumption is ever violated,
// last-writer semantics apply. This is a known limitation, not a checked
// condition.
func NewResourceID(name string) ResourceID {
	h := fnv.New64a()
	h.Write([]byte(name))
	return ResourceID{Name: name, Hash: h.Sum64()}
}

// ContentID derives an identity for anonymous or generated resources from
// the name and the content bytes, so regenerated content gets a fresh hash.
func ContentID(name string, content []byte) ResourceID {
	h := fnv.New64a()
	h.Write([]byte(name))
	h.Write(content)
	return ResourceID{Name: name, Hash: h.Sum64()}
}

// Releasable is any memory-occupying item that can be freed.
type Releasable interface {

	// Release frees memory and GPU objects owned by the implementation.
	// Release must be safe to call exactly once.
	Release()
}

// Resource is a loaded, GPU-resident asset tracked by the resource manager.
// Once loaded, the resource owns its GPU handles exclusively until Release.
type Resource interface {
	Releasable

	// ID returns the identity the resource was loaded under.
	ID() ResourceID
}
