// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package agdmm

import (
	"log"
	"math"
	"regexp"
	"strconv"

	"github.com/Metrolab/sigline/pkg/sigline"
)

// overloadSentinel is what an invalid measurement looks like on the wire.
// The display shows "O.L"; the FETC? response carries this exact string.
const overloadSentinel = "+9.90000000E+37"

// receiver pairs a response-line pattern with its handler. Tables are
// matched in order and the first match wins: some response lines are
// prefix-ambiguous, so the order is part of the protocol contract.
type receiver struct {
	re     *regexp.Regexp
	handle func(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error)
}

// Decoder classifies response lines for one meter family. The regex table
// is shared and immutable; the mode bits carried between lines (temp/aux,
// continuity) live here.
type Decoder struct {
	recvs []receiver

	modeTempAux    bool
	modeContinuity bool
}

func newDecoder(recvs []receiver) *Decoder {
	return &Decoder{recvs: recvs}
}

// Reset clears the mode bits at acquisition start.
func (d *Decoder) Reset() {
	d.modeTempAux = false
	d.modeContinuity = false
}

// Decode classifies one stripped response line. Lines that match no table
// entry are expected noise (status chatter, partial echoes) and are
// logged and dropped.
func (d *Decoder) Decode(frame []byte, ctx *sigline.Context) ([]sigline.Measurement, error) {
	line := string(frame)
	for i := range d.recvs {
		if m := d.recvs[i].re.FindStringSubmatch(line); m != nil {
			return d.recvs[i].handle(d, ctx, m)
		}
	}
	log.Printf("agdmm: unknown line %q", line)
	return nil, nil
}

// recvStatU123x decodes the 21-character U123x STAT? response.
func recvStatU123x(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error) {
	s := m[1]

	// Max, Min or Avg mode -- no way to tell which, so we'll set both
	// flags to denote it's not a normal measurement.
	ctx.SetFlag(sigline.FlagMax|sigline.FlagMin, s[0] == '1')
	ctx.SetFlag(sigline.FlagRelative, s[1] == '1')

	// Triggered or auto hold modes.
	ctx.SetFlag(sigline.FlagHold, s[2] == '1' || s[3] == '1')

	d.modeTempAux = s[7] == '1'
	d.modeContinuity = s[16] == '1'

	return nil, nil
}

// recvStatU125x decodes the U125x STAT? response.
func recvStatU125x(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error) {
	s := m[1]

	// Peak hold mode.
	ctx.SetFlag(sigline.FlagMax, s[4] == '1')

	// Triggered hold mode.
	ctx.SetFlag(sigline.FlagHold, s[7] == '1')

	return nil, nil
}

// recvFetc turns a FETC? response into a sample.
func recvFetc(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error) {
	if !ctx.Configured() {
		// Haven't seen configuration yet, so can't know what the fetched
		// float means. Not an error, we'll get metadata soon enough.
		return nil, nil
	}

	var value float64
	if m[0] == overloadSentinel {
		value = math.NaN()
	} else {
		var err error
		value, err = strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, err
		}
		if ctx.Divider > 0 {
			value /= ctx.Divider
		}
	}

	return []sigline.Measurement{{
		Quantity: ctx.Quantity,
		Unit:     ctx.Unit,
		Flags:    ctx.Flags,
		Value:    value,
		Channel:  "P1",
	}}, nil
}

// recvConfU123x decodes the quoted U123x CONF? response.
func recvConfU123x(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error) {
	switch m[1] {
	case "V":
		ctx.SetQuantity(sigline.QuantityVoltage, sigline.UnitVolt, 0)
	case "MV":
		if d.modeTempAux {
			// No way to detect whether Fahrenheit or Celsius is used, so
			// we'll just default to Celsius.
			ctx.SetQuantity(sigline.QuantityTemperature, sigline.UnitCelsius, 0)
		} else {
			ctx.SetQuantity(sigline.QuantityVoltage, sigline.UnitVolt, 0)
			ctx.Divider = 1000
		}
	case "A":
		ctx.SetQuantity(sigline.QuantityCurrent, sigline.UnitAmpere, 0)
	case "UA":
		ctx.SetQuantity(sigline.QuantityCurrent, sigline.UnitAmpere, 0)
		ctx.Divider = 1000000
	case "FREQ":
		ctx.SetQuantity(sigline.QuantityFrequency, sigline.UnitHertz, 0)
	case "RES":
		if d.modeContinuity {
			ctx.SetQuantity(sigline.QuantityContinuity, sigline.UnitBoolean, 0)
		} else {
			ctx.SetQuantity(sigline.QuantityResistance, sigline.UnitOhm, 0)
		}
	case "CAP":
		ctx.SetQuantity(sigline.QuantityCapacitance, sigline.UnitFarad, 0)
	default:
		log.Printf("agdmm: unknown first argument %q", m[1])
	}

	if len(m) == 4 {
		// Third value, if present, is always AC or DC.
		switch m[3] {
		case "AC":
			ctx.Flags |= sigline.FlagAC
		case "DC":
			ctx.Flags |= sigline.FlagDC
		default:
			log.Printf("agdmm: unknown third argument %q", m[3])
		}
	} else {
		ctx.Flags &^= sigline.FlagAC | sigline.FlagDC
	}

	return nil, nil
}

// recvConfU125x decodes the unquoted U125x CONF? response.
func recvConfU125x(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error) {
	arg := m[1]
	switch {
	case len(arg) >= 4 && arg[:4] == "VOLT":
		ctx.SetQuantity(sigline.QuantityVoltage, sigline.UnitVolt, 0)
		if len(arg) > 4 && arg[4] == ':' {
			switch arg[5:] {
			case "AC":
				ctx.Flags |= sigline.FlagAC
			case "DC":
				ctx.Flags |= sigline.FlagDC
			default:
				// "ACDC" appears as well, no idea what it means.
				ctx.Flags &^= sigline.FlagAC | sigline.FlagDC
			}
		} else {
			ctx.Flags &^= sigline.FlagAC | sigline.FlagDC
		}
	case arg == "CURR":
		ctx.SetQuantity(sigline.QuantityCurrent, sigline.UnitAmpere, 0)
	case arg == "RES":
		if d.modeContinuity {
			ctx.SetQuantity(sigline.QuantityContinuity, sigline.UnitBoolean, 0)
		} else {
			ctx.SetQuantity(sigline.QuantityResistance, sigline.UnitOhm, 0)
		}
	default:
		log.Printf("agdmm: unknown first argument %q", arg)
	}

	return nil, nil
}

// recvConfDiode handles the single-argument CONF? form both families share.
func recvConfDiode(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error) {
	if m[1] == "DIOD" {
		ctx.SetQuantity(sigline.QuantityVoltage, sigline.UnitVolt, sigline.FlagDiode)
	} else {
		log.Printf("agdmm: unknown single argument %q", m[1])
	}
	return nil, nil
}

// recvSwitch fires whenever the rotary switch moves to a new position. The
// CONF? output is more detailed, but the line must be caught here or it
// would show up in some other handler's input.
func recvSwitch(d *Decoder, ctx *sigline.Context, m []string) ([]sigline.Measurement, error) {
	log.Printf("agdmm: rotary switch %s", m[1])
	return nil, nil
}

var recvsU123x = []receiver{
	{regexp.MustCompile(`^"(\d\d.{18}\d)"$`), recvStatU123x},
	{regexp.MustCompile(`^\*([0-9])$`), recvSwitch},
	{regexp.MustCompile(`^([-+][0-9]\.[0-9]{8}E[-+][0-9]{2})$`), recvFetc},
	{regexp.MustCompile(`^"(V|MV|A|UA|FREQ),(\d),(AC|DC)"$`), recvConfU123x},
	{regexp.MustCompile(`^"(RES|CAP),(\d)"$`), recvConfU123x},
	{regexp.MustCompile(`^"(DIOD)"$`), recvConfDiode},
}

var recvsU125x = []receiver{
	{regexp.MustCompile(`^"(\d\d.{18}\d)"$`), recvStatU125x},
	{regexp.MustCompile(`^\*([0-9])$`), recvSwitch},
	{regexp.MustCompile(`^([-+][0-9]\.[0-9]{8}E[-+][0-9]{2})$`), recvFetc},
	{regexp.MustCompile(`^(VOLT|CURR|RES|CAP) ([-+][0-9.E+-]+),([-+][0-9.E+-]+)$`), recvConfU125x},
	{regexp.MustCompile(`^(VOLT:[ACD]+) ([-+][0-9.E+-]+),([-+][0-9.E+-]+)$`), recvConfU125x},
	{regexp.MustCompile(`^"(DIOD)"$`), recvConfDiode},
}
