// Package pools recycles the scratch buffers the terminal UI fills on every redraw.
package pools

import (
	"bytes"
	"sync"
)

// NewBufferPool creates a buffer pool whose buffers start with size bytes of capacity
func NewBufferPool(size int) *sync.Pool {
	return &sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, size))
		},
	}
}

// GetBufferFromPool gets a buffer from the pool and resets it
func GetBufferFromPool(pool *sync.Pool) *bytes.Buffer {
	buf := pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// ReturnBufferToPool returns a buffer to the pool. Oversized buffers are
// dropped so one huge frame does not pin its memory.
func ReturnBufferToPool(pool *sync.Pool, buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBytes {
		return
	}
	pool.Put(buf)
}

const maxPooledBytes = 1 << 20
