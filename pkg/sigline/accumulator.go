// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

// Accumulator owns a session's fixed-capacity receive buffer. Bytes
// delivered by the transport are appended until a frame detector consumes
// them. A full buffer is a desynchronization condition: Append refuses the
// bytes and the caller resets.
type Accumulator struct {
	buf []byte
	n   int
}

// NewAccumulator creates an accumulator with the given capacity.
func NewAccumulator(capacity int) *Accumulator {
	return &Accumulator{buf: make([]byte, capacity)}
}

// Append adds p to the buffer and returns the number of bytes appended.
// If p does not fit in the remaining space, nothing is appended and 0 is
// returned; the buffer is left untouched.
func (a *Accumulator) Append(p []byte) int {
	if a.n+len(p) > len(a.buf) {
		return 0
	}
	copy(a.buf[a.n:], p)
	a.n += len(p)
	return len(p)
}

// Bytes returns the current buffer content without consuming it. The
// returned slice aliases the internal buffer and is invalidated by the
// next Append, Discard or Reset.
func (a *Accumulator) Bytes() []byte {
	return a.buf[:a.n]
}

// Len returns the current fill length.
func (a *Accumulator) Len() int {
	return a.n
}

// Cap returns the buffer capacity.
func (a *Accumulator) Cap() int {
	return len(a.buf)
}

// Discard drops the first n bytes, shifting any remainder to the front.
func (a *Accumulator) Discard(n int) {
	if n <= 0 {
		return
	}
	if n >= a.n {
		a.n = 0
		return
	}
	copy(a.buf, a.buf[n:a.n])
	a.n -= n
}

// Reset clears the buffer to empty.
func (a *Accumulator) Reset() {
	a.n = 0
}
