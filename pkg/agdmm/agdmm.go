// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

// Package agdmm drives Agilent U123x/U125x handheld multimeters.
//
// These meters are passive: the host polls them over serial with SCPI-ish
// queries (STAT?, CONF?, FETC?) and classifies the response lines against
// an ordered regex table. CONF? and STAT? responses set the measurement
// context; FETC? responses carry the raw reading interpreted with it.
package agdmm

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
)

// The meters want a blank line after most commands, but *IDN? only
// tolerates a plain CRLF.
func sendCommand(w io.Writer, cmd string) error {
	term := "\n\r\n"
	if strings.HasPrefix(cmd, "*IDN?") {
		term = "\r\n"
	}
	if _, err := io.WriteString(w, cmd+term); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

func queryJob(name string, interval time.Duration) sigline.Job {
	return sigline.Job{
		Name:     name,
		Interval: interval,
		Send: func(w io.Writer) error {
			return sendCommand(w, name)
		},
	}
}

// jobs returns the poll schedule shared by the U123x and U125x: status and
// fetch at display rate, configuration once a second.
func jobs() []sigline.Job {
	return []sigline.Job{
		queryJob("STAT?", 143 * time.Millisecond),
		queryJob("CONF?", 1000 * time.Millisecond),
		queryJob("FETC?", 143 * time.Millisecond),
	}
}

func newProfile(name string, recvs []receiver) *sigline.Profile {
	return &sigline.Profile{
		Name:         name,
		BufSize:      sigline.DefaultLineBufSize,
		Serial:       sigline.SerialParams{Baud: 9600, DataBits: 8, Parity: sigline.ParityNone, StopBits: 1},
		PollInterval: 100 * time.Millisecond,
		NewDetector: func() sigline.FrameDetector {
			return sigline.NewLineDetector()
		},
		NewDecoder: func() sigline.FrameDecoder {
			return newDecoder(recvs)
		},
		Jobs: jobs(),
	}
}

// ProfileU123x returns the driver profile for the Agilent U1231A/U1232A/U1233A.
func ProfileU123x() *sigline.Profile {
	return newProfile("agdmm-u123x", recvsU123x)
}

// ProfileU125x returns the driver profile for the Agilent U1251A/U1252A/U1253A.
func ProfileU125x() *sigline.Profile {
	return newProfile("agdmm-u125x", recvsU125x)
}
