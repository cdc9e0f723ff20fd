// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

// Package sigline implements the generic receive engine shared by all
// Sigline instrument drivers.
//
// A driver is a Profile: an immutable descriptor naming a frame detector,
// a payload decoder, and an optional table of periodically resent commands.
// The engine owns the per-acquisition Session state (receive buffer,
// measurement context, counters, limits) and drives the
// accumulate → detect → decode → emit pipeline from the host's poll loop.
package sigline

import "strings"

// Quantity identifies the physical quantity a measurement represents.
type Quantity int

// Measured quantities.
const (
	QuantityNone Quantity = iota
	QuantityVoltage
	QuantityCurrent
	QuantityResistance
	QuantityContinuity
	QuantityCapacitance
	QuantityFrequency
	QuantityDutyCycle
	QuantityTemperature
	QuantityRelativeHumidity
	QuantityWindSpeed
	QuantityPressure
	QuantityPower
	QuantityGain
	QuantityTime
)

var quantityNames = map[Quantity]string{
	QuantityNone:             "none",
	QuantityVoltage:          "voltage",
	QuantityCurrent:          "current",
	QuantityResistance:       "resistance",
	QuantityContinuity:       "continuity",
	QuantityCapacitance:      "capacitance",
	QuantityFrequency:        "frequency",
	QuantityDutyCycle:        "duty cycle",
	QuantityTemperature:      "temperature",
	QuantityRelativeHumidity: "relative humidity",
	QuantityWindSpeed:        "wind speed",
	QuantityPressure:         "pressure",
	QuantityPower:            "power",
	QuantityGain:             "gain",
	QuantityTime:             "time",
}

func (q Quantity) String() string {
	if s, ok := quantityNames[q]; ok {
		return s
	}
	return "unknown"
}

// Unit identifies the unit a measurement value is expressed in.
type Unit int

// Measurement units.
const (
	UnitNone Unit = iota
	UnitVolt
	UnitAmpere
	UnitOhm
	UnitFarad
	UnitHertz
	UnitPercent
	UnitCelsius
	UnitFahrenheit
	UnitSecond
	UnitWatt
	UnitDecibelVolt
	UnitBoolean
	UnitPercentRH
	UnitMeterPerSecond
	UnitHectopascal
	UnitUnitless
)

var unitSymbols = map[Unit]string{
	UnitNone:           "",
	UnitVolt:           "V",
	UnitAmpere:         "A",
	UnitOhm:            "Ω",
	UnitFarad:          "F",
	UnitHertz:          "Hz",
	UnitPercent:        "%",
	UnitCelsius:        "°C",
	UnitFahrenheit:     "°F",
	UnitSecond:         "s",
	UnitWatt:           "W",
	UnitDecibelVolt:    "dBV",
	UnitBoolean:        "",
	UnitPercentRH:      "%RH",
	UnitMeterPerSecond: "m/s",
	UnitHectopascal:    "hPa",
	UnitUnitless:       "",
}

func (u Unit) String() string {
	if s, ok := unitSymbols[u]; ok {
		return s
	}
	return "?"
}

// Flag is a bitmask qualifying a measurement (coupling, range mode, etc).
type Flag uint32

// Measurement flags.
const (
	FlagDC Flag = 1 << iota
	FlagAC
	FlagRMS
	FlagDiode
	FlagAutoRange
	FlagHold
	FlagMin
	FlagMax
	FlagRelative
	FlagDuration
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagDC, "DC"},
	{FlagAC, "AC"},
	{FlagRMS, "RMS"},
	{FlagDiode, "DIODE"},
	{FlagAutoRange, "AUTO"},
	{FlagHold, "HOLD"},
	{FlagMin, "MIN"},
	{FlagMax, "MAX"},
	{FlagRelative, "REL"},
	{FlagDuration, "DUR"},
}

func (f Flag) String() string {
	parts := []string{}
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, " ")
}

// DefaultLineBufSize is the receive buffer size for line-oriented ASCII
// protocols.
const DefaultLineBufSize = 256
