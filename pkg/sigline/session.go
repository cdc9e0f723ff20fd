// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

import (
	"errors"
	"io"
	"log"
	"time"
)

// Parity is a serial parity setting.
type Parity int

// Serial parity settings.
const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// SerialParams are the port settings the instrument's serial interface
// expects. Meters differ here: the Agilent DMMs talk 9600 8n1 while the
// METRAHit IR adapter runs 8228 baud with six data bits. Zero fields fall
// back to the host defaults (9600, 8 data bits, 1 stop bit).
type SerialParams struct {
	Baud     int
	DataBits int
	Parity   Parity
	StopBits int
}

// Profile is an immutable driver descriptor, selected at device
// identification time and shared read-only across sessions of the same
// model. The factory functions produce the per-session mutable pieces.
type Profile struct {
	// Name identifies the driver/model, e.g. "agdmm-u123x".
	Name string

	// BufSize is the receive buffer capacity for one session.
	BufSize int

	// Serial carries the port settings for serial transports.
	Serial SerialParams

	// PollInterval is how often the host should invoke Tick when no data
	// arrives.
	PollInterval time.Duration

	// NewDetector and NewDecoder create the session's frame detector and
	// payload decoder.
	NewDetector func() FrameDetector
	NewDecoder  func() FrameDecoder

	// Jobs lists the commands to resend periodically, in dispatch order.
	// Empty for instruments that stream unprompted.
	Jobs []Job
}

// Limits bounds one acquisition run. Zero values disable the
// corresponding limit.
type Limits struct {
	Samples  uint64
	Duration time.Duration
}

// State is the acquisition session state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "invalid"
}

// ErrNotRunning is returned by Start when the session is not idle.
var ErrNotRunning = errors.New("session is not idle")

// resettable is implemented by decoders and detectors that carry state
// across frames and need clearing at acquisition start.
type resettable interface {
	Reset()
}

// Session is the live per-device acquisition state: receive buffer,
// measurement context, job timestamps, limits and counters. All methods
// must be called from a single goroutine; the engine does no locking.
type Session struct {
	profile  *Profile
	rw       io.ReadWriter
	acc      *Accumulator
	detector FrameDetector
	decoder  FrameDecoder
	ctx      Context
	jobs     *JobTable
	limits   Limits
	stats    *Statistics

	state         State
	stopRequested bool
	samples       uint64
	started       time.Time

	// idlePolls counts consecutive Tick invocations without any bytes
	// delivered in between; when idleLimit > 0 and the budget is
	// exhausted, the session requests a stop.
	idlePolls int
	idleLimit int

	emit        EmitFunc
	requestStop func()
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithIdleLimit stops the acquisition after n consecutive data-less polls.
// Zero (the default) disables the budget.
func WithIdleLimit(n int) SessionOption {
	return func(s *Session) { s.idleLimit = n }
}

// WithStatistics attaches a statistics tracker updated as the session
// processes frames.
func WithStatistics(stats *Statistics) SessionOption {
	return func(s *Session) { s.stats = stats }
}

// NewSession creates a session for the given profile over the given
// transport. emit receives every decoded measurement; requestStop is
// invoked exactly once when a limit is reached or a retry budget is
// exhausted.
func NewSession(profile *Profile, rw io.ReadWriter, limits Limits, emit EmitFunc, requestStop func(), opts ...SessionOption) *Session {
	s := &Session{
		profile:     profile,
		rw:          rw,
		acc:         NewAccumulator(profile.BufSize),
		detector:    profile.NewDetector(),
		decoder:     profile.NewDecoder(),
		jobs:        NewJobTable(profile.Jobs),
		limits:      limits,
		emit:        emit,
		requestStop: requestStop,
	}
	s.ctx.Reset()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the session's immutable driver descriptor.
func (s *Session) Profile() *Profile {
	return s.profile
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Samples returns the number of measurements emitted so far.
func (s *Session) Samples() uint64 {
	return s.samples
}

// Start transitions IDLE → RUNNING: resets the buffer, context, counters
// and job stamps, and marks the acquisition start time.
func (s *Session) Start(now time.Time) error {
	if s.state != StateIdle {
		return ErrNotRunning
	}
	s.acc.Reset()
	s.ctx.Reset()
	s.jobs.Reset()
	s.samples = 0
	s.stopRequested = false
	s.idlePolls = 0
	s.started = now
	if r, ok := s.detector.(resettable); ok {
		r.Reset()
	}
	if r, ok := s.decoder.(resettable); ok {
		r.Reset()
	}
	s.state = StateRunning
	return nil
}

// HandleBytes is the data-ready receive callback: it appends the bytes
// delivered by the transport, extracts and decodes any complete frames,
// runs the job dispatcher and checks limits. A callback firing after a
// stop was requested is a no-op.
func (s *Session) HandleBytes(p []byte, now time.Time) {
	if s.state != StateRunning {
		return
	}
	if len(p) > 0 {
		s.idlePolls = 0
		if s.stats != nil {
			s.stats.AddBytes(len(p))
		}
		if s.acc.Append(p) == 0 {
			// Buffer full: we lost sync with the frame boundaries.
			// Drop everything and start over; the session continues.
			log.Printf("%s: receive buffer overflow (%d bytes), resetting", s.profile.Name, s.acc.Len())
			s.acc.Reset()
			if s.acc.Append(p) == 0 {
				log.Printf("%s: %d delivered bytes exceed buffer capacity %d, dropped", s.profile.Name, len(p), s.acc.Cap())
			}
		}
		s.drainFrames()
	}
	s.finishRound(now)
}

// Tick is the poll-timeout receive callback: no data arrived, but
// time-triggered jobs and the time limit still need servicing.
func (s *Session) Tick(now time.Time) {
	if s.state != StateRunning {
		return
	}
	if s.idleLimit > 0 {
		s.idlePolls++
		if s.idlePolls >= s.idleLimit {
			log.Printf("%s: no data in %d consecutive polls, stopping", s.profile.Name, s.idlePolls)
			s.stop()
			return
		}
	}
	s.finishRound(now)
}

// drainFrames runs the detector over the accumulated buffer and decodes
// every complete frame it finds.
func (s *Session) drainFrames() {
	for {
		consumed, frames, err := s.detector.Detect(s.acc.Bytes())
		if err != nil {
			log.Printf("%s: %v", s.profile.Name, err)
			if s.stats != nil {
				s.stats.AddResync()
			}
		}
		if consumed > 0 {
			s.acc.Discard(consumed)
		}
		for _, frame := range frames {
			s.decodeFrame(frame)
		}
		if consumed == 0 {
			return
		}
	}
}

func (s *Session) decodeFrame(frame []byte) {
	if s.stats != nil {
		s.stats.AddFrame()
	}
	ms, err := s.decoder.Decode(frame, &s.ctx)
	if err != nil {
		log.Printf("%s: decode: %v", s.profile.Name, err)
		if s.stats != nil {
			s.stats.AddDecodeError()
		}
		return
	}
	for _, m := range ms {
		if m.Time.IsZero() {
			m.Time = time.Now()
		}
		s.samples++
		if s.stats != nil {
			s.stats.AddSample(m)
		}
		if s.emit != nil {
			s.emit(m)
		}
	}
}

// finishRound runs the job dispatcher and the limit checks shared by both
// callback flavors.
func (s *Session) finishRound(now time.Time) {
	s.jobs.Dispatch(now, s.rw)
	s.checkLimits(now)
}

// checkLimits requests a stop exactly once when either limit is reached.
// Calling it again after the stop request is a no-op.
func (s *Session) checkLimits(now time.Time) {
	if s.stopRequested {
		return
	}
	if s.limits.Samples > 0 && s.samples >= s.limits.Samples {
		s.stop()
		return
	}
	if s.limits.Duration > 0 && now.Sub(s.started) >= s.limits.Duration {
		s.stop()
	}
}

func (s *Session) stop() {
	if s.stopRequested {
		return
	}
	s.stopRequested = true
	s.state = StateStopping
	if s.requestStop != nil {
		s.requestStop()
	}
}

// RequestStop lets the host ask for an orderly stop (e.g. on Ctrl+C). It
// is idempotent and shares the exactly-once guarantee with the limit
// checks.
func (s *Session) RequestStop() {
	if s.state != StateRunning {
		return
	}
	s.stop()
}

// Finish completes STOPPING → IDLE once the host has deregistered the
// polling callback.
func (s *Session) Finish() {
	s.state = StateIdle
}
