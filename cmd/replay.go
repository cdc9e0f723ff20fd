// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Metrolab Instruments

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
	"github.com/spf13/cobra"
)

var rawCapture bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Replay a recorded measurement stream",
	Long: `Read back a CBOR record file written by 'sigline monitor --record' and
print each measurement.

With --raw, FILE is instead a raw byte capture of the instrument's output
and is pushed through the --driver decode pipeline offline, which is handy
for reproducing framing or decode problems from a captured stream.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&rawCapture, "raw", false, "Treat FILE as a raw byte capture")
	replayCmd.Flags().StringVarP(&driverName, "driver", "d", "", "Driver for --raw decoding")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	if rawCapture {
		return replayRaw(f)
	}
	return replayRecords(f)
}

func replayRecords(f *os.File) error {
	reader, err := sigline.NewRecordReader(f)
	if err != nil {
		return err
	}

	hdr := reader.Header()
	fmt.Printf("Record: driver %s, started %s\n\n", hdr.Profile, hdr.Started.Format(time.RFC3339))

	count := 0
	for {
		m, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %s\n", m.Time.Format("15:04:05.000"), m)
		count++
	}
	fmt.Printf("\n%d measurements\n", count)
	return nil
}

// captureFeed adapts a raw capture to the session's transport interface:
// reads are done by the replay loop itself, and job sends go nowhere.
type captureFeed struct{}

func (captureFeed) Read(p []byte) (int, error)  { return 0, io.EOF }
func (captureFeed) Write(p []byte) (int, error) { return len(p), nil }

func replayRaw(f *os.File) error {
	if driverName == "" {
		return fmt.Errorf("--raw requires --driver")
	}
	profile, err := lookupDriver(driverName)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	stats := sigline.NewStatistics()
	emit := func(m sigline.Measurement) {
		fmt.Println(m)
	}

	done := make(chan struct{})
	session := sigline.NewSession(profile, captureFeed{}, sigline.Limits{},
		emit, func() { close(done) },
		sigline.WithStatistics(stats))

	// A synthetic clock stepping one poll interval per chunk keeps the
	// job dispatcher and time limit behavior deterministic.
	now := time.Now()
	if err := session.Start(now); err != nil {
		return err
	}
	for off := 0; off < len(data); off += 64 {
		end := off + 64
		if end > len(data) {
			end = len(data)
		}
		now = now.Add(profile.PollInterval)
		session.HandleBytes(data[off:end], now)
	}
	session.RequestStop()
	session.Finish()

	fmt.Println()
	fmt.Print(stats.String())
	return nil
}
