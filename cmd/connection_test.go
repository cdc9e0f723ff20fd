// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Metrolab Instruments

package cmd

import (
	"testing"

	"github.com/Metrolab/sigline/pkg/gmcmh"
	"github.com/Metrolab/sigline/pkg/sigline"
	"go.bug.st/serial"
)

func TestSerialMode_DriverParameters(t *testing.T) {
	tests := []struct {
		name     string
		params   sigline.SerialParams
		override int
		want     serial.Mode
	}{
		{
			name:   "metrahit 6n1",
			params: gmcmh.NewProfile(gmcmh.Model24S).Serial,
			want:   serial.Mode{BaudRate: 8228, DataBits: 6, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name:   "zero params fall back to 9600 8n1",
			params: sigline.SerialParams{},
			want:   serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name:     "baud flag overrides baud only",
			params:   sigline.SerialParams{Baud: 8228, DataBits: 6, StopBits: 1},
			override: 38400,
			want:     serial.Mode{BaudRate: 38400, DataBits: 6, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name:   "even parity and two stop bits",
			params: sigline.SerialParams{Baud: 4800, DataBits: 7, Parity: sigline.ParityEven, StopBits: 2},
			want:   serial.Mode{BaudRate: 4800, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serialMode(tt.params, tt.override)
			if *got != tt.want {
				t.Errorf("serialMode = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestDescribeMode(t *testing.T) {
	mode := serialMode(gmcmh.NewProfile(gmcmh.Model22SM).Serial, 0)
	if got := describeMode(mode); got != "8228/6n1" {
		t.Errorf("describeMode = %q, want 8228/6n1", got)
	}
}
