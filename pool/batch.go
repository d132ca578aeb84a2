// Package pool: gather batches for datagram writes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Batch collects the segments of one outgoing datagram, the encoded
// address first. This implementation is NOT thread-safe; ownership moves
// with the batch from the builder to the write callback.

package pool

// Batch is a list of byte segments, some of which may be owned by a BytePool.
type Batch struct {
	buffers [][]byte
	owned   []bool
	view    [][]byte
	pool    *BytePool
}

// NewBatch creates a batch whose owned segments return to p on Release.
func NewBatch(p *BytePool, capacity int) *Batch {
	return &Batch{
		buffers: make([][]byte, 0, capacity),
		owned:   make([]bool, 0, capacity),
		pool:    p,
	}
}

// Append adds a borrowed segment.
func (b *Batch) Append(buf []byte) {
	b.buffers = append(b.buffers, buf)
	b.owned = append(b.owned, false)
}

// Acquire takes a buffer from the pool, appends it as an owned segment of
// length 0 and returns its index.
func (b *Batch) Acquire() int {
	buf := b.pool.GetBuffer()[:0]
	b.buffers = append(b.buffers, buf)
	b.owned = append(b.owned, true)
	return len(b.buffers) - 1
}

// Set replaces segment idx, typically after appending into it.
func (b *Batch) Set(idx int, buf []byte) {
	b.buffers[idx] = buf
}

// Get retrieves segment idx.
func (b *Batch) Get(idx int) []byte {
	return b.buffers[idx]
}

// Len returns number of segments in the batch.
func (b *Batch) Len() int {
	return len(b.buffers)
}

// Size returns the total byte length of all segments.
func (b *Batch) Size() int {
	n := 0
	for _, buf := range b.buffers {
		n += len(buf)
	}
	return n
}

// Buffers returns the segments for a gather write. The writer may reslice
// the returned elements; the batch keeps its own references for Release.
func (b *Batch) Buffers() [][]byte {
	b.view = append(b.view[:0], b.buffers...)
	return b.view
}

// Release returns owned segments to the pool and clears the batch.
func (b *Batch) Release() {
	for i, buf := range b.buffers {
		if b.owned[i] && b.pool != nil {
			b.pool.PutBuffer(buf)
		}
		b.buffers[i] = nil
	}
	for i := range b.view {
		b.view[i] = nil
	}
	b.buffers = b.buffers[:0]
	b.owned = b.owned[:0]
	b.view = b.view[:0]
}
