// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

import (
	"io"
	"log"
	"time"
)

// Job is one periodically resent instrument command. Polled instruments
// (as opposed to free-running ones) need the host to keep asking; each
// job names the command and how often to send it.
type Job struct {
	Name     string
	Interval time.Duration
	Send     func(w io.Writer) error
}

// JobTable tracks when each job last fired. Iteration order is table
// order: first-registered jobs are checked first.
type JobTable struct {
	jobs      []Job
	lastFired []time.Time
}

// NewJobTable creates a job table. A nil or empty jobs slice yields a
// table whose Dispatch is a no-op.
func NewJobTable(jobs []Job) *JobTable {
	return &JobTable{
		jobs:      jobs,
		lastFired: make([]time.Time, len(jobs)),
	}
}

// Dispatch runs one pass over the table, sending every job whose interval
// has elapsed since it last fired and stamping it with now. A job that has
// never fired is overdue by definition, so the first dispatch sends
// everything. Send failures are logged but neither remove the job nor
// abort dispatch of the remaining entries.
func (t *JobTable) Dispatch(now time.Time, w io.Writer) {
	for i := range t.jobs {
		if now.Sub(t.lastFired[i]) < t.jobs[i].Interval {
			continue
		}
		if err := t.jobs[i].Send(w); err != nil {
			log.Printf("job %s: send failed: %v", t.jobs[i].Name, err)
		}
		t.lastFired[i] = now
	}
}

// Reset clears all last-fired stamps so every job is overdue again.
func (t *JobTable) Reset() {
	for i := range t.lastFired {
		t.lastFired[i] = time.Time{}
	}
}

// Len returns the number of jobs in the table.
func (t *JobTable) Len() int {
	return len(t.jobs)
}
