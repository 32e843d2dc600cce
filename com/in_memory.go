package com

import (
	"io"
	"strings"
	"sync"
)

// InMemory is an in-memory transport for tests. Send queues what the other side transmits, the bytes
// written to the transport can be inspected with Written.
type InMemory struct {
	mu      sync.Mutex
	changed *sync.Cond

	incoming []byte
	outgoing []byte
	drain    bool
	closed   bool
}

func NewInMemory() *InMemory {
	result := &InMemory{}
	result.changed = sync.NewCond(&result.mu)
	return result
}

// Read blocks until bytes were sent or the transport is closed.
func (rw *InMemory) Read(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	for len(rw.incoming) == 0 && !rw.closed {
		rw.changed.Wait()
	}
	if rw.closed {
		return 0, io.EOF
	}

	n := copy(p, rw.incoming)
	rw.incoming = rw.incoming[n:]
	if rw.drain && len(rw.incoming) == 0 {
		rw.close()
	}
	return n, nil
}

// Send queues the given string as input that the next reads return.
func (rw *InMemory) Send(s string) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.incoming = append(rw.incoming, s...)
	rw.changed.Broadcast()
}

func (rw *InMemory) IsReadEmpty() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return len(rw.incoming) == 0
}

// CloseWhenEmpty closes the transport as soon as all sent bytes were read.
func (rw *InMemory) CloseWhenEmpty(value bool) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.drain = value
}

func (rw *InMemory) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.closed {
		return 0, io.ErrClosedPipe
	}
	rw.outgoing = append(rw.outgoing, p...)
	rw.changed.Broadcast()
	return len(p), nil
}

// Written returns a copy of all bytes written since the last ClearWrite.
func (rw *InMemory) Written() []byte {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	result := make([]byte, len(rw.outgoing))
	copy(result, rw.outgoing)
	return result
}

// WrittenContains reports if the written bytes contain the given string.
func (rw *InMemory) WrittenContains(s string) bool {
	return strings.Contains(string(rw.Written()), s)
}

func (rw *InMemory) ClearWrite() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.outgoing = nil
}

// WaitUntilWritten blocks until anything was written since the last ClearWrite or the transport is closed.
func (rw *InMemory) WaitUntilWritten() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	for len(rw.outgoing) == 0 && !rw.closed {
		rw.changed.Wait()
	}
}

func (rw *InMemory) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.close()
	return nil
}

func (rw *InMemory) close() {
	rw.closed = true
	rw.changed.Broadcast()
}

func (rw *InMemory) Closed() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.closed
}
