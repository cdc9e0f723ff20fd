// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Metrolab Instruments

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "sigline",
	Short: "Sigline instrument acquisition tool",
	Long: `Sigline - A CLI tool for acquiring measurements from serial instruments.

Provides commands for live monitoring, recording and replaying measurement
streams from multimeters and handheld probes (Agilent U123x/U125x,
Gossen Metrawatt METRAHit, Testo x35).

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud N]
  WebSocket: --url ws://host/path [--username user]

Serial port parameters (baud, data bits, parity) come from the selected
driver; --baud overrides the baud rate only.

For WebSocket authentication, the password is read from the SIGLINE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate override (serial only, 0 = driver default)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
