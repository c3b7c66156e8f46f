package log

import (
	"fmt"
	"io"
	"slices"
	"sync"
)

const defaultBufferCapacity = 100

// Buffer is a thread-safe bounded sink implementing [io.Writer]. While an
// interactive view owns the terminal, log output is parked here and flushed
// to stderr once the view exits. When full, the oldest entries are dropped.
type Buffer struct {
	mu      sync.Mutex
	entries [][]byte
	next    int
	wrapped bool
}

// NewBuffer creates a buffer retaining at most capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}

	return &Buffer{entries: make([][]byte, capacity)}
}

// Write stores p as one entry, overwriting the oldest entry when full.
// The data is copied, so callers may reuse p.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = slices.Clone(p)

	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.wrapped = true
	}

	return len(p), nil
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wrapped {
		return len(b.entries)
	}

	return b.next
}

// Cap returns the maximum number of entries the buffer retains.
func (b *Buffer) Cap() int {
	return len(b.entries)
}

// Entries returns a copy of the buffered entries, oldest first.
func (b *Buffer) Entries() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.snapshot()
}

// WriteTo flushes all buffered entries to w, oldest first, and resets the
// buffer. It implements [io.WriterTo].
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	entries := b.snapshot()
	b.reset()
	b.mu.Unlock()

	var total int64

	for _, entry := range entries {
		n, err := w.Write(entry)
		total += int64(n)

		if err != nil {
			return total, fmt.Errorf("flushing log entry: %w", err)
		}
	}

	return total, nil
}

func (b *Buffer) snapshot() [][]byte {
	var out [][]byte

	if b.wrapped {
		out = make([][]byte, 0, len(b.entries))
		for _, entry := range b.entries[b.next:] {
			out = append(out, slices.Clone(entry))
		}
	} else {
		out = make([][]byte, 0, b.next)
	}

	for _, entry := range b.entries[:b.next] {
		out = append(out, slices.Clone(entry))
	}

	return out
}

func (b *Buffer) reset() {
	clear(b.entries)
	b.next = 0
	b.wrapped = false
}
