// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package gmcmh

import (
	"math"
	"testing"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
)

// inf13VDC is a complete 13-byte 2x info/data message: model 24S,
// V DC, range code 1, digits 0 0 4 3 2 1 (LSD first) = 12.34 V.
var inf13VDC = []byte{
	0x0F,                               // info start, model nibble 0x0f (24S)
	0x31,                               // ctmv low nibble: 1 = V DC
	0x30, 0x30,                         // special characters: none
	0x31,                               // range/sign: range 1, positive
	0x30, 0x30, 0x34, 0x33, 0x32, 0x31, // digits, least significant first
	0x30, // ctmv high nibble: 0
	0x35, // send interval
}

// ============================================================
// Model Tests
// ============================================================

func TestDecodeModelSM(t *testing.T) {
	tests := []struct {
		code byte
		want Model
	}{
		{0x04, Model12S},
		{0x0b, Model16S},
		{0x0d, Model18S},
		{0x02, Model22SM},
		{0x0f, Model24S},
		{0x0e, Model29S},
	}

	for _, tt := range tests {
		got, err := DecodeModelSM(tt.code)
		if err != nil {
			t.Errorf("DecodeModelSM(0x%02x): %v", tt.code, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DecodeModelSM(0x%02x) = %v, want %v", tt.code, got, tt.want)
		}
	}

	if _, err := DecodeModelSM(0x00); err == nil {
		t.Error("DecodeModelSM(0x00) should fail")
	}
	if _, err := DecodeModelSM(0x42); err == nil {
		t.Error("out-of-range model code should fail")
	}
}

func TestModelFamilies(t *testing.T) {
	if !Model15S.is16() || Model18S.is16() {
		t.Error("16-family boundary wrong: 15S belongs, 18S does not")
	}
	if !Model22SM.is2x() || Model18S.is2x() {
		t.Error("2x-family boundary wrong")
	}
}

func TestProfileName(t *testing.T) {
	if name := NewProfile(Model22SM).Name; name != "gmcmh-22sm" {
		t.Errorf("profile name = %q, want gmcmh-22sm", name)
	}
}

func TestProfileSerialParameters(t *testing.T) {
	// Send-mode meters stream through the BD232 IR adapter: 8228 baud,
	// six data bits, no parity.
	want := sigline.SerialParams{Baud: 8228, DataBits: 6, Parity: sigline.ParityNone, StopBits: 1}
	if got := NewProfile(Model24S).Serial; got != want {
		t.Errorf("serial params = %+v, want %+v", got, want)
	}
}

// ============================================================
// Detector Tests
// ============================================================

// runDetector feeds stream to the detector in chunks of the given size,
// mirroring the session's accumulate/discard loop.
func runDetector(t *testing.T, d *Detector, stream []byte, chunk int) [][]byte {
	t.Helper()
	var buf []byte
	var got [][]byte
	for off := 0; off < len(stream); off += chunk {
		end := off + chunk
		if end > len(stream) {
			end = len(stream)
		}
		buf = append(buf, stream[off:end]...)
		consumed, frames, _ := d.Detect(buf)
		buf = buf[consumed:]
		got = append(got, frames...)
	}
	return got
}

func TestDetector_CompleteMessageByteAtATime(t *testing.T) {
	d := NewDetector(Model24S)
	frames := runDetector(t, d, inf13VDC, 1)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if len(frames[0]) != 13 {
		t.Errorf("frame length = %d, want 13", len(frames[0]))
	}
}

func TestDetector_LeadingGarbageDropped(t *testing.T) {
	d := NewDetector(Model24S)
	stream := append([]byte{0x35, 0x3f, 0x3a}, inf13VDC...)
	frames := runDetector(t, d, stream, 4)
	if len(frames) != 1 || len(frames[0]) != 13 {
		t.Fatalf("frames = %v, want the single 13-byte message", frames)
	}
	if frames[0][0] != 0x0F {
		t.Errorf("frame does not start at the info byte: 0x%02x", frames[0][0])
	}
}

func TestDetector_EarlyStartFlushesShorterMessage(t *testing.T) {
	d := NewDetector(Model24S)

	// Six bytes of one message, then a fresh info start: the partial
	// message is flushed as-is, the new message completes normally.
	partial := []byte{0x0F, 0x31, 0x30, 0x30, 0x31, 0x30}
	stream := append(append([]byte{}, partial...), inf13VDC...)

	frames := runDetector(t, d, stream, 3)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (flushed partial + complete)", len(frames))
	}
	if len(frames[0]) != 6 {
		t.Errorf("flushed frame length = %d, want 6", len(frames[0]))
	}
	if len(frames[1]) != 13 {
		t.Errorf("second frame length = %d, want 13", len(frames[1]))
	}
}

func TestDetector_StrayDataByteResyncs(t *testing.T) {
	d := NewDetector(Model24S)

	// One complete message, then a stray continuation byte where a start
	// belongs, then another complete message.
	stream := append(append(append([]byte{}, inf13VDC...), 0x3a), inf13VDC...)

	var buf []byte
	var frames [][]byte
	sawErr := false
	for _, b := range stream {
		buf = append(buf, b)
		consumed, fs, err := d.Detect(buf)
		if err != nil {
			sawErr = true
		}
		buf = buf[consumed:]
		frames = append(frames, fs...)
	}
	if !sawErr {
		t.Error("stray data byte did not report a desynchronization")
	}
	if len(frames) != 2 {
		t.Errorf("got %d frames, want 2 (resync drops only the stray byte run)", len(frames))
	}
}

func TestDetector_StrayRunKeepsFollowingMessage(t *testing.T) {
	d := NewDetector(Model24S)

	// Sync on one complete message first.
	if frames := runDetector(t, d, inf13VDC, 13); len(frames) != 1 {
		t.Fatalf("setup: got %d frames, want 1", len(frames))
	}

	// Stray continuation bytes and a valid message in the same chunk:
	// only the stray run is dropped, the message survives.
	buf := append([]byte{0x3a, 0x3b}, inf13VDC...)

	consumed, frames, err := d.Detect(buf)
	if err == nil {
		t.Error("stray run did not report a desynchronization")
	}
	if consumed != 2 {
		t.Fatalf("consumed = %d, want 2 (the stray run only)", consumed)
	}
	if len(frames) != 0 {
		t.Fatalf("frames = %v, want none yet", frames)
	}

	buf = buf[consumed:]
	consumed, frames, err = d.Detect(buf)
	if err != nil {
		t.Fatalf("Detect after resync: %v", err)
	}
	if consumed != 13 || len(frames) != 1 || len(frames[0]) != 13 {
		t.Errorf("message after stray run lost: consumed=%d frames=%v", consumed, frames)
	}
}

func TestDetector_InfoLengthPerFamily(t *testing.T) {
	tests := []struct {
		model Model
		want  int
	}{
		{Model12S, 0},  // delimited by the next start byte only
		{Model15S, 10}, // 10-byte info/data messages
		{Model18S, 10},
		{Model24S, 13},
		{Model29S, 13},
	}
	for _, tt := range tests {
		d := NewDetector(tt.model)
		if got := d.infLength(); got != tt.want {
			t.Errorf("%v info length = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestDetector_DataMessageAfterInfo(t *testing.T) {
	d := NewDetector(Model24S)
	dta := []byte{0x21, 0x30, 0x30, 0x34, 0x33, 0x32}
	stream := append(append([]byte{}, inf13VDC...), dta...)

	frames := runDetector(t, d, stream, 5)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if len(frames[1]) != 6 {
		t.Errorf("data frame length = %d, want 6", len(frames[1]))
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_Info13VoltsDC(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	ms, err := d.Decode(inf13VDC, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("got %d measurements, want 1", len(ms))
	}
	m := ms[0]
	if m.Quantity != sigline.QuantityVoltage || m.Unit != sigline.UnitVolt {
		t.Errorf("quantity/unit = %v/%v, want voltage/V", m.Quantity, m.Unit)
	}
	if m.Flags&sigline.FlagDC == 0 {
		t.Errorf("DC flag not set: %v", m.Flags)
	}
	if m.Flags&sigline.FlagAutoRange == 0 {
		t.Errorf("autorange flag not set: %v", m.Flags)
	}
	if math.Abs(m.Value-12.34) > 1e-9 {
		t.Errorf("value = %v, want 12.34", m.Value)
	}
}

func TestDecoder_OverloadDigit(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	frame := append([]byte{}, inf13VDC...)
	frame[5] = 0x3a // digit nibble 10: overload

	ms, err := d.Decode(frame, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 1 || !ms[0].IsOverload() {
		t.Errorf("overload digit decoded to %v, want NaN", ms)
	}
}

func TestDecoder_DataBeforeInfoSkipped(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	dta := []byte{0x21, 0x30, 0x30, 0x34, 0x33, 0x32}
	ms, err := d.Decode(dta, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ms != nil {
		t.Errorf("data message before any info produced %v, want none", ms)
	}
}

func TestDecoder_DataUsesInfoContext(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	if _, err := d.Decode(inf13VDC, &ctx); err != nil {
		t.Fatal(err)
	}

	// Range 1, digits 0 0 4 3 2 (LSD first) = 23400 * 1e-4 = 2.34 V.
	dta := []byte{0x21, 0x30, 0x30, 0x34, 0x33, 0x32}
	ms, err := d.Decode(dta, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("got %d measurements, want 1", len(ms))
	}
	if math.Abs(ms[0].Value-2.34) > 1e-9 {
		t.Errorf("value = %v, want 2.34", ms[0].Value)
	}
	if ms[0].Quantity != sigline.QuantityVoltage {
		t.Errorf("data message lost the info context: %v", ms[0].Quantity)
	}
}

func TestDecoder_TemperatureFahrenheitRange(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	frame := append([]byte{}, inf13VDC...)
	frame[1] = 0x32  // ctmv low nibble 2
	frame[11] = 0x31 // ctmv high nibble 1: ctmv 0x12 = temperature
	frame[4] = 0x34  // range 4 marks °F

	ms, err := d.Decode(frame, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("got %d measurements, want 1", len(ms))
	}
	if ms[0].Quantity != sigline.QuantityTemperature || ms[0].Unit != sigline.UnitFahrenheit {
		t.Errorf("quantity/unit = %v/%v, want temperature/°F", ms[0].Quantity, ms[0].Unit)
	}
	if math.Abs(ms[0].Value-1234.0) > 1e-9 {
		t.Errorf("value = %v, want 1234.0", ms[0].Value)
	}
}

func TestDecoder_NegativeSign(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	frame := append([]byte{}, inf13VDC...)
	frame[4] = 0x39 // range 1 with sign bit 0x08

	ms, err := d.Decode(frame, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if math.Abs(ms[0].Value-(-12.34)) > 1e-9 {
		t.Errorf("value = %v, want -12.34", ms[0].Value)
	}
}

func TestDecoder_Flushed10ByteFrameOn2xIsContextOnly(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	// A 2x info message cut to 10 bytes by an early-start flush: the
	// 10-byte layout belongs to the 15S..18S family, so no sample may be
	// decoded from it on a 24S.
	ms, err := d.Decode(inf13VDC[:10], &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 0 {
		t.Errorf("flushed fragment emitted %v, want context only", ms)
	}
	if !ctx.Configured() {
		t.Error("flushed fragment did not set the measurement context")
	}
}

func TestDecoder_ShortFrameRejected(t *testing.T) {
	d := NewDecoder(Model24S)
	var ctx sigline.Context
	ctx.Reset()

	if _, err := d.Decode([]byte{0x0F, 0x31, 0x30}, &ctx); err == nil {
		t.Error("3-byte info fragment should be rejected")
	}
	if _, err := d.Decode([]byte{0x21, 0x30}, &ctx); err == nil {
		t.Error("2-byte data fragment should be rejected")
	}
}

// ============================================================
// End-to-End Tests
// ============================================================

func TestPipeline_StreamToMeasurement(t *testing.T) {
	// Full pipeline through a session: garbage, one info/data message
	// delivered one byte at a time, one data message.
	profile := NewProfile(Model24S)

	var got []sigline.Measurement
	session := sigline.NewSession(profile, nullReadWriter{}, sigline.Limits{},
		func(m sigline.Measurement) { got = append(got, m) }, nil)

	now := time.Now()
	if err := session.Start(now); err != nil {
		t.Fatal(err)
	}

	stream := append([]byte{0x3f}, inf13VDC...)
	stream = append(stream, 0x21, 0x30, 0x30, 0x34, 0x33, 0x32)
	for _, b := range stream {
		session.HandleBytes([]byte{b}, now)
	}

	if len(got) != 2 {
		t.Fatalf("emitted %d measurements, want 2", len(got))
	}
	if math.Abs(got[0].Value-12.34) > 1e-9 {
		t.Errorf("first value = %v, want 12.34", got[0].Value)
	}
	if math.Abs(got[1].Value-2.34) > 1e-9 {
		t.Errorf("second value = %v, want 2.34", got[1].Value)
	}
}

type nullReadWriter struct{}

func (nullReadWriter) Read(p []byte) (int, error)  { return 0, nil }
func (nullReadWriter) Write(p []byte) (int, error) { return len(p), nil }
