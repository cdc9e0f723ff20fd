// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	driver        string
	connInfo      string
	stats         sigline.Statistics
	prevStats     sigline.Statistics
	readings      map[string]sigline.Measurement
	channels      []string // insertion order of readings
	eventLog      []eventLogEntry
	maxLogEntries int
	logView       viewport.Model
	width         int
	height        int
	quitting      bool
	stopped       bool
}

// Messages
type measurementMsg sigline.Measurement
type statsMsg sigline.Statistics
type sessionDoneMsg struct{ err error }

func initialModel(driver, connInfo string) model {
	return model{
		driver:        driver,
		connInfo:      connInfo,
		readings:      make(map[string]sigline.Measurement),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		logView:       viewport.New(80, 10),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLog()

	case measurementMsg:
		mm := sigline.Measurement(msg)
		if _, seen := m.readings[mm.Channel]; !seen {
			m.channels = append(m.channels, mm.Channel)
		}
		m.readings[mm.Channel] = mm
		if mm.IsOverload() {
			m.addLogEntry(fmt.Sprintf("%s: overload reading", mm.Channel), false)
		}

	case statsMsg:
		m.prevStats = m.stats
		m.stats = sigline.Statistics(msg)
		if d := m.stats.ResyncErrors - m.prevStats.ResyncErrors; d > 0 {
			m.addLogEntry(fmt.Sprintf("RESYNC: %d desynchronization(s)", d), true)
		}
		if d := m.stats.DecodeErrors - m.prevStats.DecodeErrors; d > 0 {
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %d frame(s) rejected", d), true)
		}

	case sessionDoneMsg:
		m.stopped = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Session ended: %v", msg.err), true)
		} else {
			m.addLogEntry("Session ended", false)
		}
	}

	return m, nil
}

func (m *model) resizeLog() {
	logHeight := m.height - 14 // Reserve space for header, readings and stats
	if logHeight < 5 {
		logHeight = 5
	}
	m.logView.Width = m.width - 4
	m.logView.Height = logHeight
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SIGLINE - LIVE READINGS"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Driver: %s | %s | Press 'q' to quit",
		m.driver, m.connInfo)))
	s.WriteString("\n\n")

	if m.stopped {
		s.WriteString(warningStyle.Render("Acquisition stopped"))
		s.WriteString("\n\n")
	}

	// Latest reading per channel
	readingsContent := strings.Builder{}
	if len(m.channels) == 0 {
		readingsContent.WriteString(headerStyle.Render("(waiting for data)"))
	} else {
		for i, ch := range m.channels {
			mm := m.readings[ch]
			value := "O.L"
			if !mm.IsOverload() {
				value = fmt.Sprintf("%g %s", mm.Value, mm.Unit)
			}
			readingsContent.WriteString(fmt.Sprintf("%s %s",
				labelStyle.Render(ch+":"),
				func() string {
					if mm.IsOverload() {
						return errorStyle.Render(value)
					}
					return valueStyle.Render(value)
				}(),
			))
			if mm.Flags != 0 {
				readingsContent.WriteString(headerStyle.Render(fmt.Sprintf(" [%s]", mm.Flags)))
			}
			if i < len(m.channels)-1 {
				readingsContent.WriteString("\n")
			}
		}
	}
	s.WriteString(boxStyle.Render(readingsContent.String()))
	s.WriteString("\n\n")

	// Statistics
	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s\n%s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.FramesDetected)),
		labelStyle.Render("Samples:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.SamplesEmitted)),
		labelStyle.Render("Errors:"), func() string {
			errs := m.stats.ResyncErrors + m.stats.DecodeErrors
			if errs > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", errs))
			}
			return valueStyle.Render("0")
		}(),
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.FrameRate)),
		labelStyle.Render("Sample Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.SampleRate)),
	)
	s.WriteString(boxStyle.Render(statsContent))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog {
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}
	logView := m.logView
	logView.SetContent(logContent.String())
	logView.GotoBottom()
	s.WriteString(boxStyle.Render(logView.View()))

	return s.String()
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Live readings in a terminal UI",
	Long: `Acquire measurements and display them in a full-screen terminal UI:
latest reading per channel, frame/sample statistics, and an event log of
desynchronizations and decode errors.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().StringVarP(&driverName, "driver", "d", "", "Instrument driver (see 'sigline drivers')")
	tuiCmd.Flags().Uint64VarP(&limitSamples, "samples", "n", 0, "Stop after this many samples (0 = no limit)")
	tuiCmd.Flags().DurationVarP(&limitTime, "time", "t", 0, "Stop after this long (0 = no limit)")
	_ = tuiCmd.MarkFlagRequired("driver")
}

func runTUI(cmd *cobra.Command, args []string) error {
	profile, err := lookupDriver(driverName)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(profile.Serial)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The engine logs resync and decode errors through the standard
	// logger, which would scribble over the UI; the log entries are
	// derived from statistics deltas instead.
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	p := tea.NewProgram(initialModel(profile.Name, connInfo))

	stats := sigline.NewStatistics()
	done := make(chan struct{})
	session := sigline.NewSession(profile, conn,
		sigline.Limits{Samples: limitSamples, Duration: limitTime},
		func(m sigline.Measurement) { p.Send(measurementMsg(m)) },
		func() { close(done) },
		sigline.WithStatistics(stats),
	)

	// Session pump goroutine; the TUI owns the terminal. The session is
	// single-goroutine, so the UI never touches it directly: quitting the
	// UI closes stop and the pump shuts the session down itself.
	stop := make(chan struct{})
	go func() {
		err := pumpSession(session, conn, stats, done, stop, p)
		p.Send(sessionDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		close(stop)
		return fmt.Errorf("TUI error: %v", err)
	}
	close(stop)

	return nil
}

// pumpSession is runSession with statistics snapshots pushed to the UI.
func pumpSession(session *sigline.Session, conn Connection, stats *sigline.Statistics, done, stop chan struct{}, p *tea.Program) error {
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

	poll := time.NewTicker(session.Profile().PollInterval)
	defer poll.Stop()
	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	for {
		select {
		case data := <-chunks:
			session.HandleBytes(data, time.Now())
		case <-poll.C:
			session.Tick(time.Now())
		case <-refresh.C:
			stats.CalculateRates()
			p.Send(statsMsg(*stats))
		case <-stop:
			session.RequestStop()
			session.Finish()
			return nil
		case err := <-readErr:
			session.RequestStop()
			session.Finish()
			if err == ErrConnectionClosed {
				return nil
			}
			return err
		case <-done:
			session.Finish()
			p.Send(statsMsg(*stats))
			return nil
		}
	}
}
