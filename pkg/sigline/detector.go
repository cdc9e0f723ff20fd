// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

// FrameDetector finds frame boundaries in a session's receive buffer.
//
// Detect is called with the full accumulated buffer and returns how many
// leading bytes it consumed together with any complete frames found in
// them. consumed == 0 means no boundary was found yet and the buffer keeps
// accumulating. Returned frames must not alias buf: the engine discards
// consumed bytes immediately after the call.
//
// A non-nil error reports a recoverable desynchronization (checksum
// mismatch, malformed header, stray byte where a frame start was
// expected). The engine logs it, applies consumed, and keeps going; it is
// never fatal to the session.
type FrameDetector interface {
	Detect(buf []byte) (consumed int, frames [][]byte, err error)
}

// FrameDecoder turns one detected frame into measurements, consulting and
// updating the session's measurement context.
//
// A configuration frame updates ctx and returns (nil, nil). A data frame
// arriving before any configuration frame, or one flagged as a duplicate
// of the previous reading, also returns (nil, nil): both are expected
// noise, not errors. Overload sentinels decode to NaN-valued measurements.
type FrameDecoder interface {
	Decode(frame []byte, ctx *Context) ([]Measurement, error)
}

// LineDetector frames newline-terminated ASCII protocols. Trailing CR/LF
// bytes are stripped from each frame; a line that strips to nothing is a
// valid zero-length frame and is passed through.
type LineDetector struct{}

// NewLineDetector creates a line-oriented frame detector.
func NewLineDetector() *LineDetector {
	return &LineDetector{}
}

// Detect extracts every complete line currently in buf.
func (d *LineDetector) Detect(buf []byte) (int, [][]byte, error) {
	consumed := 0
	var frames [][]byte
	for {
		rest := buf[consumed:]
		nl := -1
		for i, b := range rest {
			if b == '\n' {
				nl = i
				break
			}
		}
		if nl < 0 {
			return consumed, frames, nil
		}
		line := rest[:nl]
		for len(line) > 0 && (line[len(line)-1] == '\r' || line[len(line)-1] == '\n') {
			line = line[:len(line)-1]
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		frames = append(frames, frame)
		consumed += nl + 1
	}
}
