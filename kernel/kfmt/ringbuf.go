package kfmt

import "io"

// RingBufferSize is the capacity of a RingBuffer. It must be a power of 2.
const RingBufferSize = 8192

// RingBuffer keeps the most recent RingBufferSize bytes of console output.
// Once full, each write overwrites the oldest unread bytes and Dropped
// reports how many were lost. It is not safe for concurrent use; the kernel
// guards it with its own lock.
type RingBuffer struct {
	buffer [RingBufferSize]byte

	// start is the index of the oldest unread byte and size the number of
	// unread bytes.
	start, size int

	dropped uint64
}

// Write appends p to the buffer. It never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n > RingBufferSize {
		rb.dropped += uint64(n - RingBufferSize)
		p = p[n-RingBufferSize:]
	}

	if overflow := rb.size + len(p) - RingBufferSize; overflow > 0 {
		rb.dropped += uint64(overflow)
		rb.start = (rb.start + overflow) & (RingBufferSize - 1)
		rb.size -= overflow
	}

	end := (rb.start + rb.size) & (RingBufferSize - 1)
	copied := copy(rb.buffer[end:], p)
	copy(rb.buffer[:], p[copied:])
	rb.size += len(p)

	return n, nil
}

// Read drains up to len(p) unread bytes into p. It returns io.EOF once the
// buffer is empty.
func (rb *RingBuffer) Read(p []byte) (int, error) {
	if rb.size == 0 {
		return 0, io.EOF
	}

	n := len(p)
	if n > rb.size {
		n = rb.size
	}

	copied := copy(p[:n], rb.buffer[rb.start:])
	copy(p[copied:n], rb.buffer[:])

	rb.start = (rb.start + n) & (RingBufferSize - 1)
	rb.size -= n
	return n, nil
}

// Len returns the number of unread bytes.
func (rb *RingBuffer) Len() int {
	return rb.size
}

// Dropped returns the number of bytes that were overwritten before being
// read.
func (rb *RingBuffer) Dropped() uint64 {
	return rb.dropped
}
