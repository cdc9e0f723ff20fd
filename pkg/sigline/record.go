// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Measurement records are written as a CBOR stream: one header record
// followed by one record per sample. NaN round-trips through CBOR, so
// overload readings survive record/replay unchanged.

// recordVersion is bumped when the record layout changes.
const recordVersion = 1

// recordEncMode encodes timestamps as RFC 3339 text with nanoseconds.
// The default time encoding truncates to whole seconds, which would lose
// sub-second sample timing on replay.
var recordEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// RecordHeader opens a measurement record stream.
type RecordHeader struct {
	Version int       `cbor:"1,keyasint"`
	Profile string    `cbor:"2,keyasint"`
	Started time.Time `cbor:"3,keyasint"`
}

type measurementRecord struct {
	Quantity int       `cbor:"1,keyasint"`
	Unit     int       `cbor:"2,keyasint"`
	Flags    uint32    `cbor:"3,keyasint"`
	Value    float64   `cbor:"4,keyasint"`
	Channel  string    `cbor:"5,keyasint,omitempty"`
	Time     time.Time `cbor:"6,keyasint"`
}

// RecordWriter streams measurements to w as CBOR records.
type RecordWriter struct {
	enc *cbor.Encoder
}

// NewRecordWriter writes the stream header for the given profile name and
// returns a writer for the samples that follow.
func NewRecordWriter(w io.Writer, profile string) (*RecordWriter, error) {
	enc := recordEncMode.NewEncoder(w)
	hdr := RecordHeader{
		Version: recordVersion,
		Profile: profile,
		Started: time.Now(),
	}
	if err := enc.Encode(&hdr); err != nil {
		return nil, fmt.Errorf("failed to write record header: %w", err)
	}
	return &RecordWriter{enc: enc}, nil
}

// Write appends one measurement to the stream.
func (rw *RecordWriter) Write(m Measurement) error {
	rec := measurementRecord{
		Quantity: int(m.Quantity),
		Unit:     int(m.Unit),
		Flags:    uint32(m.Flags),
		Value:    m.Value,
		Channel:  m.Channel,
		Time:     m.Time,
	}
	return rw.enc.Encode(&rec)
}

// RecordReader reads a measurement record stream.
type RecordReader struct {
	dec    *cbor.Decoder
	header RecordHeader
}

// NewRecordReader reads and validates the stream header.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	dec := cbor.NewDecoder(r)
	var hdr RecordHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("failed to read record header: %w", err)
	}
	if hdr.Version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", hdr.Version)
	}
	return &RecordReader{dec: dec, header: hdr}, nil
}

// Header returns the stream header.
func (rr *RecordReader) Header() RecordHeader {
	return rr.header
}

// Next returns the next recorded measurement, or io.EOF at end of stream.
func (rr *RecordReader) Next() (Measurement, error) {
	var rec measurementRecord
	if err := rr.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Measurement{}, io.EOF
		}
		return Measurement{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return Measurement{
		Quantity: Quantity(rec.Quantity),
		Unit:     Unit(rec.Unit),
		Flags:    Flag(rec.Flags),
		Value:    rec.Value,
		Channel:  rec.Channel,
		Time:     rec.Time,
	}, nil
}
