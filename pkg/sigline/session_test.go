// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

import (
	"io"
	"testing"
	"time"
)

// byteDetector frames every byte on its own; byteDecoder turns each frame
// into one unitless measurement carrying the byte value. Together they
// give the session tests a transparent pipeline.
type byteDetector struct{}

func (byteDetector) Detect(buf []byte) (int, [][]byte, error) {
	var frames [][]byte
	for _, b := range buf {
		frames = append(frames, []byte{b})
	}
	return len(buf), frames, nil
}

type byteDecoder struct{}

func (byteDecoder) Decode(frame []byte, ctx *Context) ([]Measurement, error) {
	return []Measurement{{
		Quantity: QuantityVoltage,
		Unit:     UnitVolt,
		Value:    float64(frame[0]),
	}}, nil
}

type nullTransport struct{}

func (nullTransport) Read(p []byte) (int, error)  { return 0, io.EOF }
func (nullTransport) Write(p []byte) (int, error) { return len(p), nil }

func testProfile(bufSize int) *Profile {
	return &Profile{
		Name:         "test",
		BufSize:      bufSize,
		PollInterval: 10 * time.Millisecond,
		NewDetector:  func() FrameDetector { return byteDetector{} },
		NewDecoder:   func() FrameDecoder { return byteDecoder{} },
	}
}

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession(testProfile(16), nullTransport{}, Limits{}, nil, nil)

	if s.State() != StateIdle {
		t.Fatalf("new session state = %v, want idle", s.State())
	}
	if err := s.Start(time.Now()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("state after Start = %v, want running", s.State())
	}
	if err := s.Start(time.Now()); err == nil {
		t.Error("second Start should fail while running")
	}

	s.RequestStop()
	if s.State() != StateStopping {
		t.Errorf("state after RequestStop = %v, want stopping", s.State())
	}
	s.Finish()
	if s.State() != StateIdle {
		t.Errorf("state after Finish = %v, want idle", s.State())
	}
}

func TestSession_SampleLimitStopsExactlyOnce(t *testing.T) {
	stops := 0
	var emitted []Measurement
	s := NewSession(testProfile(16), nullTransport{},
		Limits{Samples: 3},
		func(m Measurement) { emitted = append(emitted, m) },
		func() { stops++ },
	)

	now := time.Now()
	if err := s.Start(now); err != nil {
		t.Fatal(err)
	}

	// Five bytes: the limit is reached mid-callback, samples past it in
	// the same delivery are still emitted, but the stop fires once.
	s.HandleBytes([]byte{1, 2, 3, 4, 5}, now)
	if stops != 1 {
		t.Errorf("stop requested %d times, want 1", stops)
	}
	if len(emitted) != 5 {
		t.Errorf("emitted %d samples, want 5", len(emitted))
	}

	// A late callback after the stop request is a no-op.
	s.HandleBytes([]byte{6}, now)
	s.Tick(now)
	if stops != 1 || len(emitted) != 5 {
		t.Errorf("late callback had an effect: stops=%d emitted=%d", stops, len(emitted))
	}
}

func TestSession_RequestStopIdempotent(t *testing.T) {
	stops := 0
	s := NewSession(testProfile(16), nullTransport{}, Limits{}, nil, func() { stops++ })

	if err := s.Start(time.Now()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		s.RequestStop()
	}
	if stops != 1 {
		t.Errorf("stop callback invoked %d times, want 1", stops)
	}
}

func TestSession_DurationLimit(t *testing.T) {
	stops := 0
	s := NewSession(testProfile(16), nullTransport{},
		Limits{Duration: time.Second}, nil, func() { stops++ })

	start := time.Now()
	if err := s.Start(start); err != nil {
		t.Fatal(err)
	}

	s.Tick(start.Add(999 * time.Millisecond))
	if stops != 0 {
		t.Fatal("stop requested before the time limit")
	}
	s.Tick(start.Add(time.Second))
	if stops != 1 {
		t.Errorf("stop requested %d times at the time limit, want 1", stops)
	}
}

func TestSession_IdleLimit(t *testing.T) {
	stops := 0
	s := NewSession(testProfile(16), nullTransport{}, Limits{}, nil,
		func() { stops++ }, WithIdleLimit(3))

	now := time.Now()
	if err := s.Start(now); err != nil {
		t.Fatal(err)
	}

	s.Tick(now)
	s.Tick(now)
	// Data resets the idle budget.
	s.HandleBytes([]byte{1}, now)
	s.Tick(now)
	s.Tick(now)
	if stops != 0 {
		t.Fatal("stop requested before the idle budget was exhausted")
	}
	s.Tick(now)
	if stops != 1 {
		t.Errorf("stop requested %d times after idle budget, want 1", stops)
	}
}

func TestSession_BufferOverflowRecovers(t *testing.T) {
	// A detector that never consumes forces the buffer to fill up.
	stuck := &Profile{
		Name:         "stuck",
		BufSize:      4,
		PollInterval: time.Millisecond,
		NewDetector: func() FrameDetector {
			return detectorFunc(func(buf []byte) (int, [][]byte, error) {
				return 0, nil, nil
			})
		},
		NewDecoder: func() FrameDecoder { return byteDecoder{} },
	}

	s := NewSession(stuck, nullTransport{}, Limits{}, nil, nil)
	now := time.Now()
	if err := s.Start(now); err != nil {
		t.Fatal(err)
	}

	s.HandleBytes([]byte{1, 2, 3}, now)
	// Does not fit: the buffer resets and the new bytes replace the old.
	s.HandleBytes([]byte{4, 5}, now)
	if s.State() != StateRunning {
		t.Errorf("overflow stopped the session: state=%v", s.State())
	}

	// A chunk larger than the whole buffer is dropped, session continues.
	s.HandleBytes([]byte{1, 2, 3, 4, 5, 6}, now)
	if s.State() != StateRunning {
		t.Errorf("oversized chunk stopped the session: state=%v", s.State())
	}
}

// detectorFunc adapts a function to FrameDetector.
type detectorFunc func(buf []byte) (int, [][]byte, error)

func (f detectorFunc) Detect(buf []byte) (int, [][]byte, error) { return f(buf) }

func TestSession_StatisticsCounters(t *testing.T) {
	stats := NewStatistics()
	s := NewSession(testProfile(16), nullTransport{}, Limits{}, nil, nil,
		WithStatistics(stats))

	now := time.Now()
	if err := s.Start(now); err != nil {
		t.Fatal(err)
	}
	s.HandleBytes([]byte{10, 20}, now)

	if stats.BytesReceived != 2 {
		t.Errorf("BytesReceived = %d, want 2", stats.BytesReceived)
	}
	if stats.FramesDetected != 2 {
		t.Errorf("FramesDetected = %d, want 2", stats.FramesDetected)
	}
	if stats.SamplesEmitted != 2 {
		t.Errorf("SamplesEmitted = %d, want 2", stats.SamplesEmitted)
	}
}

func TestSession_JobsRunOnBothCallbacks(t *testing.T) {
	w := &recordingWriter{}
	profile := testProfile(16)
	profile.Jobs = []Job{{Name: "q", Interval: time.Hour, Send: sendString("q")}}

	s := NewSession(profile, struct {
		io.Reader
		io.Writer
	}{nullTransport{}, w}, Limits{}, nil, nil)

	now := time.Now()
	if err := s.Start(now); err != nil {
		t.Fatal(err)
	}
	s.Tick(now)
	if len(w.sent) != 1 {
		t.Fatalf("job not dispatched from Tick: sent=%v", w.sent)
	}

	// Restarting resets job stamps, so the job fires again.
	s.RequestStop()
	s.Finish()
	if err := s.Start(now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	s.HandleBytes([]byte{1}, now.Add(time.Minute))
	if len(w.sent) != 2 {
		t.Errorf("job not re-dispatched after restart: sent=%v", w.sent)
	}
}
