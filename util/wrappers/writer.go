package wrappers

import (
	"io"
	"sync"
)

// WriterWrapper serialises writes, so the console and app output
// printed from other goroutines don't interleave mid-line
type WriterWrapper struct {
	mu      sync.Mutex
	closed  bool
	wrapped io.Writer
}

func NewWriterWrapper(wraps io.Writer) *WriterWrapper {
	return &WriterWrapper{wrapped: wraps}
}

func (w *WriterWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *WriterWrapper) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	return w.wrapped.Write(p)
}
