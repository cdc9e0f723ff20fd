// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package gmcmh

import "fmt"

// Detector frames the METRAHit send-mode byte stream.
//
// Bytes arriving before the first info start are leftovers from whatever
// the meter was sending when we attached and are dropped. After that,
// each message runs until its model-specific fixed length, or until a new
// start byte shows up early, in which case the shorter message already
// buffered is flushed and the new byte seeds the next one.
type Detector struct {
	model      Model
	settingsOK bool
}

// NewDetector creates a detector for the given model.
func NewDetector(model Model) *Detector {
	return &Detector{model: model}
}

// Reset drops stream synchronization; the detector waits for the next
// info start.
func (d *Detector) Reset() {
	d.settingsOK = false
}

// infLength returns the full info-message length for the model, or 0 when
// only the early-start flush delimits info messages.
func (d *Detector) infLength() int {
	switch {
	case d.model.is2x():
		return 13
	case d.model >= Model15S && d.model <= Model18S:
		return 10
	}
	return 0
}

// Detect extracts complete messages from buf.
func (d *Detector) Detect(buf []byte) (int, [][]byte, error) {
	consumed := 0
	var frames [][]byte
	for consumed < len(buf) {
		b := buf[consumed:]

		if !d.settingsOK {
			// Wait for a device info message before trusting the stream.
			if b[0]&MsgIDMask != MsgIDInf {
				consumed++
				continue
			}
			d.settingsOK = true
		}

		switch b[0] & MsgIDMask {
		case MsgIDInf:
			n := d.detectInf(b)
			if n == 0 {
				return consumed, frames, nil
			}
			frames = append(frames, clone(b[:n]))
			consumed += n

		case MsgIDDta, MsgIDD10:
			if len(b) < 6 {
				return consumed, frames, nil
			}
			frames = append(frames, clone(b[:6]))
			consumed += 6

		case MsgIDData:
			// Continuation bytes where a message start belongs: the
			// stream is desynchronized. Drop the stray run only and wait
			// for the next info start; a message later in the same chunk
			// still gets framed.
			n := 1
			for n < len(b) && b[n]&MsgIDMask == MsgIDData {
				n++
			}
			d.settingsOK = false
			return consumed + n, frames, fmt.Errorf("gmcmh: unexpected data byte 0x%02x at message start", b[0])
		}
	}
	return consumed, frames, nil
}

// detectInf returns the length of the complete info message at the start
// of b, or 0 if more bytes are needed.
func (d *Detector) detectInf(b []byte) int {
	exp := d.infLength()
	limit := len(b)
	if exp > 0 && limit > exp {
		limit = exp
	}
	for i := 1; i < limit; i++ {
		if b[i]&MsgIDMask != MsgIDData && i >= 5 {
			// New message starts before the expected length: flush the
			// shorter info message already accumulated.
			return i
		}
	}
	if exp > 0 && len(b) >= exp {
		return exp
	}
	return 0
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
