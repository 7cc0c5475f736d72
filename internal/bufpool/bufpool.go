// Package bufpool provides reusable receive buffers for the datagram loop.
//
// Every receive needs a buffer as large as the biggest datagram the server
// accepts (512KB by default). Allocating that per datagram would dominate
// the GC profile, so the accept loop borrows a buffer, copies the filled
// prefix into an exactly-sized payload and returns the buffer immediately.
//
// Thread Safety:
// All operations are safe for concurrent use.
package bufpool

import "sync"

// Pool hands out byte slices of a fixed size.
type Pool struct {
	size int
	pool sync.Pool
}

// New creates a pool of buffers of exactly size bytes.
func New(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size returns the length of every buffer handed out by the pool.
func (p *Pool) Size() int {
	return p.size
}

// Get returns a buffer of Size() bytes. The caller must Put it back.
func (p *Pool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put returns a buffer obtained from Get. Buffers of a different capacity
// are dropped and left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	full := buf[:p.size]
	p.pool.Put(&full)
}
