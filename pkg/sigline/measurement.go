// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

import (
	"fmt"
	"math"
	"time"
)

// Measurement is one decoded analog sample.
type Measurement struct {
	Quantity Quantity
	Unit     Unit
	Flags    Flag
	Value    float64
	Channel  string
	Time     time.Time
}

// IsOverload reports whether the measurement carries the overload/invalid
// sentinel (NaN value) rather than a numeric reading.
func (m Measurement) IsOverload() bool {
	return math.IsNaN(m.Value)
}

// String formats the measurement for display.
func (m Measurement) String() string {
	value := "O.L"
	if !m.IsOverload() {
		value = fmt.Sprintf("%g %s", m.Value, m.Unit)
	}
	if m.Flags != 0 {
		return fmt.Sprintf("%s: %s [%s]", m.Quantity, value, m.Flags)
	}
	return fmt.Sprintf("%s: %s", m.Quantity, value)
}

// EmitFunc delivers one decoded measurement to the session bus.
type EmitFunc func(Measurement)

// Context is the measurement context a session carries between frames.
// Configuration frames set the interpretive state here; data frames read
// it to turn raw readings into physical values. A data frame arriving
// before any configuration frame finds Quantity == QuantityNone and is
// skipped without error.
type Context struct {
	Quantity Quantity
	Unit     Unit
	Flags    Flag

	// Divider is applied as value/Divider when > 0 (e.g. 1000 for a
	// mV-as-V range).
	Divider float64

	// Scale and Scale1000 accumulate decimal scaling for binary protocols:
	// value * Scale * 1000^Scale1000.
	Scale     float64
	Scale1000 int
}

// Reset clears the context to the acquisition-start state.
func (c *Context) Reset() {
	c.Quantity = QuantityNone
	c.Unit = UnitNone
	c.Flags = 0
	c.Divider = 0
	c.Scale = 1.0
	c.Scale1000 = 0
}

// Configured reports whether a configuration frame has been seen.
func (c *Context) Configured() bool {
	return c.Quantity != QuantityNone
}

// SetQuantity installs a new active quantity, clearing value scaling from
// the previous mode.
func (c *Context) SetQuantity(q Quantity, u Unit, flags Flag) {
	c.Quantity = q
	c.Unit = u
	c.Flags = flags
	c.Divider = 0
}

// SetFlag sets or clears a single flag bit.
func (c *Context) SetFlag(f Flag, on bool) {
	if on {
		c.Flags |= f
	} else {
		c.Flags &^= f
	}
}
