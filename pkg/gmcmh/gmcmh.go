// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

// Package gmcmh drives Gossen Metrawatt METRAHit 1x/2x multimeters in
// send mode (unidirectional IR streaming).
//
// The wire format is a byte stream where bits 4..5 of every byte tag it
// as an info start, a data start, or a continuation; the payload rides in
// the low nibble. Messages have fixed lengths that depend on the message
// type and the meter model, and a new start byte arriving early flushes
// the shorter message already accumulated rather than signalling an
// error.
package gmcmh

import (
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
)

// Message ID bits 4..5 of each byte.
const (
	MsgIDMask byte = 0x30 // mask to get the message ID bits
	MsgIDInf  byte = 0x00 // start of message with device info
	MsgIDD10  byte = 0x10 // start of data message, non-displayed data
	MsgIDDta  byte = 0x20 // start of data message, displayed data
	MsgIDData byte = 0x30 // data byte in message
	MsgCMask  byte = 0x0f // mask to get the message content (low nibble)
)

// BufSize is the receive buffer capacity for one session.
const BufSize = 266

// bc extracts the content nibble of a message byte.
func bc(b byte) byte {
	return b & MsgCMask
}

// NewProfile returns the driver profile for the given METRAHit model.
// Send-mode meters stream unprompted, so the job table is empty.
func NewProfile(model Model) *sigline.Profile {
	return &sigline.Profile{
		Name:    "gmcmh-" + model.slug(),
		BufSize: BufSize,
		// The BD232 IR adapter runs at 8228 baud with six data bits.
		Serial:       sigline.SerialParams{Baud: 8228, DataBits: 6, Parity: sigline.ParityNone, StopBits: 1},
		PollInterval: 40 * time.Millisecond,
		NewDetector: func() sigline.FrameDetector {
			return NewDetector(model)
		},
		NewDecoder: func() sigline.FrameDecoder {
			return NewDecoder(model)
		},
	}
}
