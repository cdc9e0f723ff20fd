// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments
//
// Sigline - Serial Instrument Acquisition Tool
//
// A CLI tool for acquiring, recording and replaying measurements from
// serial multimeters and handheld probes.

package main

import (
	"os"

	"github.com/Metrolab/sigline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
