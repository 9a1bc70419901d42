// File: pool/bufferpool.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BufferPoolManager is the concrete, platform-independent api.BufferPool
// this module ships: a slice-backed buffer recycled through
// baseBufferPool's generic channel pooling, grouped by a caller-supplied
// locality preference rather than true NUMA placement (the cgo NUMA
// allocator this once delegated to was dropped; see DESIGN.md).

package pool

import "github.com/momentics/nioselect/api"

// sliceBuffer is the concrete api.Buffer backing every pool in this
// package: one []byte plus a back-reference to the pool it came from.
type sliceBuffer struct {
	data []byte
	node int
	pool *baseBufferPool[*sliceBuffer]
}

func (b *sliceBuffer) Bytes() []byte { return b.data }

func (b *sliceBuffer) Slice(from, to int) api.Buffer {
	return &sliceBuffer{data: b.data[from:to], node: b.node, pool: b.pool}
}

func (b *sliceBuffer) Release() {
	if b.pool != nil {
		b.pool.recycle(b)
	}
}

func (b *sliceBuffer) Copy() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *sliceBuffer) NUMANode() int { return b.node }

func newSliceBuffer(size, node int) *sliceBuffer {
	return &sliceBuffer{data: make([]byte, size), node: node}
}

// bufferPoolFacade adapts *baseBufferPool[*sliceBuffer] to api.BufferPool
// (the generic type already satisfies the method shapes; this wrapper
// exists only to bind the factory closure that stamps the owning pool
// into every buffer it allocates, so Release can find its way home).
type bufferPoolFacade struct {
	base *baseBufferPool[*sliceBuffer]
}

func (f *bufferPoolFacade) Get(size, numaPref int) api.Buffer {
	return f.base.Get(size, numaPref)
}
func (f *bufferPoolFacade) Put(b api.Buffer)            { f.base.Put(b) }
func (f *bufferPoolFacade) Stats() api.BufferPoolStats { return f.base.Stats() }

// BufferPoolManager hands out one api.BufferPool per locality group,
// lazily created on first use.
type BufferPoolManager struct {
	pools map[int]api.BufferPool
}

// NewBufferPoolManager constructs an empty manager; pools are created on
// first GetPool call for a given locality group.
func NewBufferPoolManager() *BufferPoolManager {
	return &BufferPoolManager{pools: make(map[int]api.BufferPool)}
}

// GetPool returns the api.BufferPool for the given locality preference,
// creating it on first use.
func (m *BufferPoolManager) GetPool(group int) api.BufferPool {
	if p, ok := m.pools[group]; ok {
		return p
	}
	var base *baseBufferPool[*sliceBuffer]
	base = newBaseBufferPool[*sliceBuffer](group, func(size, node int) *sliceBuffer {
		b := newSliceBuffer(size, node)
		b.pool = base
		return b
	})
	p := &bufferPoolFacade{base: base}
	m.pools[group] = p
	return p
}
