// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package testo

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
)

// buildReply assembles a well-formed reply from (value, unit) pairs and
// appends the trailing CRC.
func buildReply(groups ...[2]float64) []byte {
	packet := append([]byte{}, packetPrefix...)
	packet = append(packet, 0x00, byte(len(groups)))
	for _, g := range groups {
		var group [7]byte
		binary.LittleEndian.PutUint32(group[0:4], math.Float32bits(float32(g[0])))
		group[4] = byte(g[1])
		packet = append(packet, group[:]...)
	}
	crc := sigline.Checksum(packet)
	packet = append(packet, byte(crc), byte(crc>>8))
	return packet
}

func TestDetector_CompleteReply(t *testing.T) {
	d := &Detector{}
	packet := buildReply([2]float64{21.5, 1})

	consumed, frames, err := d.Detect(packet)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if consumed != len(packet) {
		t.Errorf("consumed = %d, want %d", consumed, len(packet))
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], packet) {
		t.Errorf("frames = %v, want the whole packet", frames)
	}
}

func TestDetector_WaitsForFullPacket(t *testing.T) {
	d := &Detector{}
	packet := buildReply([2]float64{21.5, 1}, [2]float64{45.0, 3})

	for cut := 0; cut < len(packet); cut++ {
		consumed, frames, err := d.Detect(packet[:cut])
		if err != nil {
			t.Fatalf("Detect on %d-byte prefix: %v", cut, err)
		}
		if consumed != 0 || frames != nil {
			t.Fatalf("Detect on %d-byte prefix consumed %d, emitted %d frames", cut, consumed, len(frames))
		}
	}
}

func TestDetector_InvalidPrefixDiscardsBuffer(t *testing.T) {
	d := &Detector{}
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x00, 0x01}

	consumed, frames, err := d.Detect(garbage)
	if err == nil {
		t.Error("invalid prefix should report a desynchronization")
	}
	if consumed != len(garbage) {
		t.Errorf("consumed = %d, want %d (drop the tail end of older data)", consumed, len(garbage))
	}
	if frames != nil {
		t.Errorf("frames = %v, want none", frames)
	}
}

func TestDetector_SingleBitFlipRejected(t *testing.T) {
	packet := buildReply([2]float64{21.5, 1})

	// Flip one bit in every position in turn: no corrupted packet may
	// pass the CRC and produce a frame.
	for pos := 0; pos < len(packet)-2; pos++ {
		corrupted := append([]byte{}, packet...)
		corrupted[pos] ^= 0x01
		if pos < 5 || pos == 6 {
			// Prefix and channel-count corruption trips the earlier
			// checks; only CRC coverage is under test here.
			continue
		}
		d := &Detector{}
		_, frames, err := d.Detect(corrupted)
		if err == nil {
			t.Errorf("bit flip at %d not detected", pos)
		}
		if len(frames) != 0 {
			t.Errorf("bit flip at %d still produced a frame", pos)
		}
	}
}

func TestDetector_ImplausibleChannelCount(t *testing.T) {
	d := &Detector{}
	packet := append([]byte{}, packetPrefix...)
	packet = append(packet, 0x00, 200)

	_, frames, err := d.Detect(packet)
	if err == nil {
		t.Error("200-channel packet should be rejected")
	}
	if frames != nil {
		t.Errorf("frames = %v, want none", frames)
	}
}

func TestDecoder_MultiChannelReply(t *testing.T) {
	d := &Decoder{}
	var ctx sigline.Context
	ctx.Reset()

	frame := buildReply(
		[2]float64{21.5, 1},  // °C
		[2]float64{45.0, 3},  // %RH
		[2]float64{2.5, 5},   // m/s
		[2]float64{1013, 24}, // hPa
	)

	ms, err := d.Decode(frame, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 4 {
		t.Fatalf("got %d measurements, want 4", len(ms))
	}

	want := []struct {
		quantity sigline.Quantity
		unit     sigline.Unit
		channel  string
		value    float64
	}{
		{sigline.QuantityTemperature, sigline.UnitCelsius, "Temperature", 21.5},
		{sigline.QuantityRelativeHumidity, sigline.UnitPercentRH, "Humidity", 45.0},
		{sigline.QuantityWindSpeed, sigline.UnitMeterPerSecond, "Windspeed", 2.5},
		{sigline.QuantityPressure, sigline.UnitHectopascal, "Pressure", 1013},
	}
	for i, w := range want {
		if ms[i].Quantity != w.quantity || ms[i].Unit != w.unit {
			t.Errorf("channel %d quantity/unit = %v/%v, want %v/%v",
				i, ms[i].Quantity, ms[i].Unit, w.quantity, w.unit)
		}
		if ms[i].Channel != w.channel {
			t.Errorf("channel %d name = %q, want %q", i, ms[i].Channel, w.channel)
		}
		if math.Abs(ms[i].Value-w.value) > 1e-4 {
			t.Errorf("channel %d value = %v, want %v", i, ms[i].Value, w.value)
		}
	}
}

func TestDecoder_UnsupportedUnitStopsGroupDecode(t *testing.T) {
	d := &Decoder{}
	var ctx sigline.Context
	ctx.Reset()

	frame := buildReply(
		[2]float64{21.5, 1},
		[2]float64{9.9, 77}, // unknown unit code
		[2]float64{45.0, 3},
	)

	ms, err := d.Decode(frame, &ctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 1 {
		t.Errorf("got %d measurements, want 1 (decode stops at the unknown unit)", len(ms))
	}
}

func TestProfile_RequestJob(t *testing.T) {
	p := NewProfile()
	if len(p.Jobs) != 1 {
		t.Fatalf("profile has %d jobs, want 1", len(p.Jobs))
	}
	if p.Jobs[0].Interval != RequestInterval {
		t.Errorf("request interval = %v, want %v", p.Jobs[0].Interval, RequestInterval)
	}

	var buf bytes.Buffer
	if err := p.Jobs[0].Send(&buf); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), requestPacket) {
		t.Errorf("request bytes = % x, want % x", buf.Bytes(), requestPacket)
	}
}

func TestPipeline_SplitChunkReassembly(t *testing.T) {
	profile := NewProfile()

	var got []sigline.Measurement
	wire := &wireLog{}
	session := sigline.NewSession(profile, wire, sigline.Limits{},
		func(m sigline.Measurement) { got = append(got, m) }, nil)

	now := time.Now()
	if err := session.Start(now); err != nil {
		t.Fatal(err)
	}

	packet := buildReply([2]float64{21.5, 1}, [2]float64{45.0, 3})
	// Deliver in uneven chunks, a fresh timestamp per delivery.
	for off := 0; off < len(packet); off += 3 {
		end := off + 3
		if end > len(packet) {
			end = len(packet)
		}
		now = now.Add(time.Millisecond)
		session.HandleBytes(packet[off:end], now)
	}

	if len(got) != 2 {
		t.Fatalf("emitted %d measurements, want 2", len(got))
	}
	if got[0].Channel != "Temperature" || got[1].Channel != "Humidity" {
		t.Errorf("channels = %q,%q", got[0].Channel, got[1].Channel)
	}

	// The request job fired on the first callback.
	if !bytes.HasPrefix(wire.sent, requestPacket) {
		t.Errorf("request packet not sent: % x", wire.sent)
	}
}

// wireLog records job sends; reads come from HandleBytes, not the
// transport, so Read never returns data.
type wireLog struct {
	sent []byte
}

func (w *wireLog) Read(p []byte) (int, error) { return 0, nil }

func (w *wireLog) Write(p []byte) (int, error) {
	w.sent = append(w.sent, p...)
	return len(p), nil
}
