// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

// Package testo drives Testo x35-series handheld probes (435/635/735
// and friends).
//
// The instrument answers a fixed request packet with a binary reply: a
// five-byte prefix, a channel count, one seven-byte group per channel
// (little-endian IEEE 754 binary32 value plus a unit code), and a
// trailing little-endian CRC-16/MCRF4XX over everything before it. The
// probes are modular, so the channel set is discovered from the replies
// rather than assumed.
package testo

import (
	"io"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
)

const (
	// BufSize is the receive buffer capacity for one session.
	BufSize = 128

	// MaxChannels bounds the per-reply channel count; anything larger is
	// a corrupt length byte.
	MaxChannels = 16

	// RequestInterval paces the request/reply cycle.
	RequestInterval = 500 * time.Millisecond
)

// packetPrefix opens every well-formed reply.
var packetPrefix = []byte{0x21, 0, 0, 0, 1}

// requestPacket asks the instrument for one result set.
var requestPacket = []byte{0x12, 0, 0, 0, 1, 1, 0x55, 0xd1, 0xb7}

func sendRequest(w io.Writer) error {
	_, err := w.Write(requestPacket)
	return err
}

// NewProfile returns the driver profile for the x35 series.
func NewProfile() *sigline.Profile {
	return &sigline.Profile{
		Name:    "testo-x35",
		BufSize: BufSize,
		// The probes attach through an FTDI bridge; its UART side runs
		// 115200 8n1.
		Serial:       sigline.SerialParams{Baud: 115200, DataBits: 8, Parity: sigline.ParityNone, StopBits: 1},
		PollInterval: 100 * time.Millisecond,
		NewDetector:  func() sigline.FrameDetector { return &Detector{} },
		NewDecoder:   func() sigline.FrameDecoder { return &Decoder{} },
		Jobs: []sigline.Job{
			{Name: "request", Interval: RequestInterval, Send: sendRequest},
		},
	}
}
