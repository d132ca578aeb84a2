// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync/atomic"

// BytePool hands out byte slices of one fixed capacity, typically the
// configured receive buffer size. Slices of any other capacity are not
// retained on Put.
type BytePool struct {
	size int
	free *Recycler[*[]byte]

	allocs  atomic.Int64
	gets    atomic.Int64
	puts    atomic.Int64
	dropped atomic.Int64
}

// Stats is a snapshot of BytePool counters.
type Stats struct {
	Size    int   `json:"size"`
	Allocs  int64 `json:"allocs"`
	Gets    int64 `json:"gets"`
	Puts    int64 `json:"puts"`
	Dropped int64 `json:"dropped"`
	InUse   int64 `json:"in_use"`
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		panic("pool: buffer size must be positive")
	}
	b := &BytePool{size: size}
	b.free = NewRecycler(func() *[]byte {
		b.allocs.Add(1)
		buf := make([]byte, size)
		return &buf
	}, func(p *[]byte) *[]byte {
		*p = (*p)[:size]
		return p
	})
	return b
}

// Size returns the capacity of pooled buffers.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of length Size.
func (b *BytePool) GetBuffer() []byte {
	b.gets.Add(1)
	return *b.free.Take()
}

// PutBuffer returns buf to the pool. The caller must not use buf afterwards.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		b.dropped.Add(1)
		return
	}
	b.puts.Add(1)
	b.free.Recycle(&buf)
}

// Stats returns the current counters.
func (b *BytePool) Stats() Stats {
	gets, puts := b.gets.Load(), b.puts.Load()
	return Stats{
		Size:    b.size,
		Allocs:  b.allocs.Load(),
		Gets:    gets,
		Puts:    puts,
		Dropped: b.dropped.Load(),
		InUse:   gets - puts,
	}
}
