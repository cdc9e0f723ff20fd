// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

import (
	"fmt"
	"time"
)

// Statistics tracks per-acquisition frame and sample counters.
type Statistics struct {
	StartTime time.Time

	// Counters
	BytesReceived  uint64
	FramesDetected uint64
	SamplesEmitted uint64
	Overloads      uint64
	ResyncErrors   uint64
	DecodeErrors   uint64

	// Rates (calculated)
	FrameRate  float64 // frames/sec
	SampleRate float64 // samples/sec
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// AddBytes records bytes delivered by the transport.
func (s *Statistics) AddBytes(n int) {
	s.BytesReceived += uint64(n)
}

// AddFrame records one detected frame.
func (s *Statistics) AddFrame() {
	s.FramesDetected++
}

// AddSample records one emitted measurement.
func (s *Statistics) AddSample(m Measurement) {
	s.SamplesEmitted++
	if m.IsOverload() {
		s.Overloads++
	}
}

// AddResync records one recoverable desynchronization (checksum mismatch,
// malformed header, stray byte).
func (s *Statistics) AddResync() {
	s.ResyncErrors++
}

// AddDecodeError records one frame the decoder rejected.
func (s *Statistics) AddDecodeError() {
	s.DecodeErrors++
}

// CalculateRates recomputes the frame and sample rates.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesDetected) / elapsed
		s.SampleRate = float64(s.SamplesEmitted) / elapsed
	}
}

// String returns a formatted statistics summary.
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	result += fmt.Sprintf("Frames Detected: %8d\n", s.FramesDetected)
	result += fmt.Sprintf("Samples Emitted: %8d\n", s.SamplesEmitted)
	if s.Overloads > 0 {
		result += fmt.Sprintf("Overload Reads:  %8d\n", s.Overloads)
	}
	if s.ResyncErrors > 0 {
		result += fmt.Sprintf("Resync Errors:   %8d\n", s.ResyncErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Sample Rate:     %8.1f samples/sec\n", s.SampleRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters.
func (s *Statistics) Reset() {
	*s = Statistics{StartTime: time.Now()}
}
