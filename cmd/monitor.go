// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Metrolab Instruments

package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var (
	driverName   string
	limitSamples uint64
	limitTime    time.Duration
	recordPath   string
	idleLimit    int
	showStats    bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Acquire and display measurements",
	Long: `Poll the instrument and print each decoded measurement as it arrives.

The acquisition stops when the sample or time limit is reached, on Ctrl+C,
or (with --idle-limit) after too many consecutive polls without data.

With --record, every measurement is also appended to a CBOR record file
that 'sigline replay' can read back.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVarP(&driverName, "driver", "d", "", "Instrument driver (see 'sigline drivers')")
	monitorCmd.Flags().Uint64VarP(&limitSamples, "samples", "n", 0, "Stop after this many samples (0 = no limit)")
	monitorCmd.Flags().DurationVarP(&limitTime, "time", "t", 0, "Stop after this long (0 = no limit)")
	monitorCmd.Flags().StringVarP(&recordPath, "record", "r", "", "Record measurements to a CBOR file")
	monitorCmd.Flags().IntVar(&idleLimit, "idle-limit", 0, "Stop after this many consecutive data-less polls (0 = no limit)")
	monitorCmd.Flags().BoolVar(&showStats, "stats", false, "Print acquisition statistics on exit")
	_ = monitorCmd.MarkFlagRequired("driver")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	profile, err := lookupDriver(driverName)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(profile.Serial)
	if err != nil {
		return err
	}

	var recorder *sigline.RecordWriter
	var recordFile *os.File
	if recordPath != "" {
		recordFile, err = os.Create(recordPath)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create record file: %w", err)
		}
		recorder, err = sigline.NewRecordWriter(recordFile, profile.Name)
		if err != nil {
			recordFile.Close()
			conn.Close()
			return err
		}
	}

	fmt.Printf("Sigline - Monitor\n")
	fmt.Printf("Driver: %s\n", profile.Name)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := sigline.NewStatistics()
	emit := func(m sigline.Measurement) {
		fmt.Printf("[%s] %s\n", m.Time.Format("15:04:05.000"), m)
		if recorder != nil {
			if werr := recorder.Write(m); werr != nil {
				log.Printf("record: %v", werr)
			}
		}
	}

	done := make(chan struct{})
	session := sigline.NewSession(profile, conn,
		sigline.Limits{Samples: limitSamples, Duration: limitTime},
		emit,
		func() { close(done) },
		sigline.WithIdleLimit(idleLimit),
		sigline.WithStatistics(stats),
	)

	err = runSession(session, conn, done)

	if showStats {
		fmt.Println()
		fmt.Print(stats.String())
	}

	err = multierr.Append(err, conn.Close())
	if recordFile != nil {
		err = multierr.Append(err, recordFile.Close())
	}
	return err
}

// runSession drives the accumulate/detect/decode pipeline from a poll
// loop until a limit fires or the user interrupts. The session is
// single-goroutine; the reader goroutine only ferries byte chunks into
// the loop.
func runSession(session *sigline.Session, conn Connection, done chan struct{}) error {
	if err := session.Start(time.Now()); err != nil {
		return err
	}

	chunks := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	poll := time.NewTicker(session.Profile().PollInterval)
	defer poll.Stop()

	for {
		select {
		case data := <-chunks:
			session.HandleBytes(data, time.Now())
		case <-poll.C:
			session.Tick(time.Now())
		case <-interrupt:
			fmt.Println("\nInterrupted, stopping...")
			session.RequestStop()
		case err := <-readErr:
			session.RequestStop()
			session.Finish()
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		case <-done:
			session.Finish()
			return nil
		}
	}
}
