// Package buffer provides a bounded trace of recent wire frames.
package buffer

import (
	"sync"
	"time"
)

// Direction tells which side sent a frame.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Frame is one traced websocket message.
type Frame struct {
	At        time.Time `json:"at"`
	Direction Direction `json:"direction"`
	Data      string    `json:"data"`
}

// RingBuffer is a thread-safe circular buffer that keeps the most recent
// frames up to a fixed capacity. When full, the oldest frame is overwritten.
//
// The bridge uses it to serve recent traffic on the debug endpoint.
type RingBuffer struct {
	frames   []Frame
	start    int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		frames:   make([]Frame, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, discarding the oldest one when the buffer is full.
func (rb *RingBuffer) Push(f Frame) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size < rb.capacity {
		rb.frames[(rb.start+rb.size)%rb.capacity] = f
		rb.size++
		return
	}
	rb.frames[rb.start] = f
	rb.start = (rb.start + 1) % rb.capacity
}

// Record is shorthand for pushing raw data observed now.
func (rb *RingBuffer) Record(dir Direction, data []byte) {
	rb.Push(Frame{At: time.Now().UTC(), Direction: dir, Data: string(data)})
}

// Snapshot returns the buffered frames oldest first.
// The returned slice is safe to use without holding the lock.
func (rb *RingBuffer) Snapshot() []Frame {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}
	out := make([]Frame, rb.size)
	for i := 0; i < rb.size; i++ {
		out[i] = rb.frames[(rb.start+i)%rb.capacity]
	}
	return out
}

// Clear removes all frames from the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.frames = make([]Frame, rb.capacity)
	rb.start = 0
	rb.size = 0
}

// Len returns the current number of frames in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.size
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}
