// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package testo

import (
	"encoding/binary"
	"log"
	"math"

	"github.com/Metrolab/sigline/pkg/sigline"
)

// Decoder unpacks the seven-byte measurement groups of a verified
// reply. Replies are self-describing, so the shared context is unused.
type Decoder struct{}

// Decode turns one reply into a sample per channel.
func (d *Decoder) Decode(frame []byte, ctx *sigline.Context) ([]sigline.Measurement, error) {
	var samples []sigline.Measurement
	for i := 0; i < int(frame[6]); i++ {
		buf := frame[7+i*7:]
		value := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[:4])))

		var m sigline.Measurement
		m.Value = value
		switch buf[4] {
		case 1:
			m.Quantity = sigline.QuantityTemperature
			m.Unit = sigline.UnitCelsius
			m.Channel = "Temperature"
		case 3:
			m.Quantity = sigline.QuantityRelativeHumidity
			m.Unit = sigline.UnitPercentRH
			m.Channel = "Humidity"
		case 5:
			m.Quantity = sigline.QuantityWindSpeed
			m.Unit = sigline.UnitMeterPerSecond
			m.Channel = "Windspeed"
		case 24:
			m.Quantity = sigline.QuantityPressure
			m.Unit = sigline.UnitHectopascal
			m.Channel = "Pressure"
		default:
			log.Printf("testo: unsupported measurement unit %d", buf[4])
			return samples, nil
		}
		samples = append(samples, m)
	}
	return samples, nil
}
