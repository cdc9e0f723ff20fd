// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package testo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Metrolab/sigline/pkg/sigline"
)

// Detector frames Testo replies. The seventh byte carries the channel
// count, which fixes the total packet length; the prefix and trailing
// CRC decide whether the bytes are a reply at all or the tail end of
// something older.
type Detector struct{}

// Detect extracts complete, CRC-verified replies from buf.
func (d *Detector) Detect(buf []byte) (int, [][]byte, error) {
	consumed := 0
	var frames [][]byte
	for {
		b := buf[consumed:]
		if len(b) < 7 {
			// Sixth byte contains the length of the packet.
			return consumed, frames, nil
		}

		if !bytes.HasPrefix(b, packetPrefix) {
			// Tail end of some previous data, drop it.
			return len(buf), frames, fmt.Errorf("testo: invalid packet prefix")
		}
		if b[6] > MaxChannels {
			return len(buf), frames, fmt.Errorf("testo: implausible channel count %d", b[6])
		}

		size := 7 + int(b[6])*7 + 2
		if len(b) < size {
			return consumed, frames, nil
		}

		crc := sigline.Checksum(b[:size-2])
		if crc != binary.LittleEndian.Uint16(b[size-2:size]) {
			consumed += size
			return consumed, frames, fmt.Errorf("testo: invalid packet CRC")
		}

		frame := make([]byte, size)
		copy(frame, b[:size])
		frames = append(frames, frame)
		consumed += size
	}
}
