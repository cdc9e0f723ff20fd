// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package gmcmh

import (
	"fmt"
	"strings"
)

// Model identifies one METRAHit meter. Ordering matters: the decode
// tables branch on family boundaries (12S..16I use the "16" tables,
// 18S the "18" tables, 22S/M and up the "2x" tables).
type Model int

// Known models.
const (
	ModelNone Model = iota
	Model12S
	Model13S14A
	Model14S
	Model15S
	Model16S
	Model16I
	Model18S
	Model22SM
	Model23S
	Model24S
	Model25SM
	Model26S
	Model28S
	Model29S
)

var modelNames = map[Model]string{
	ModelNone:   "-uninitialized model-",
	Model12S:    "METRAHit 12S",
	Model13S14A: "METRAHit 13S/14A",
	Model14S:    "METRAHit 14S",
	Model15S:    "METRAHit 15S",
	Model16S:    "METRAHit 16S",
	Model16I:    "METRAHit 16I",
	Model18S:    "METRAHit 18S",
	Model22SM:   "METRAHit 22S/M",
	Model23S:    "METRAHit 23S",
	Model24S:    "METRAHit 24S",
	Model25SM:   "METRAHit 25S/M",
	Model26S:    "METRAHit 26S",
	Model28S:    "METRAHit 28S",
	Model29S:    "METRAHit 29S",
}

func (m Model) String() string {
	if s, ok := modelNames[m]; ok {
		return s
	}
	return "unknown model"
}

func (m Model) slug() string {
	s := strings.TrimPrefix(m.String(), "METRAHit ")
	return strings.ToLower(strings.ReplaceAll(s, "/", ""))
}

// is16 reports membership in the 12S..16I family.
func (m Model) is16() bool {
	return m >= Model12S && m <= Model16I
}

// is2x reports membership in the 22S/M..29S family.
func (m Model) is2x() bool {
	return m >= Model22SM
}

// DecodeModelSM decodes the model nibble used in send mode.
func DecodeModelSM(code byte) (Model, error) {
	if code > 0x0f {
		return ModelNone, fmt.Errorf("model code %d out of range 0..15", code)
	}
	switch code {
	case 0x04:
		return Model12S, nil
	case 0x08:
		return Model13S14A, nil
	case 0x09:
		return Model14S, nil
	case 0x0a:
		return Model15S, nil
	case 0x0b:
		return Model16S, nil
	case 0x06: // undocumented by GMC
		return Model16I, nil
	case 0x0d:
		return Model18S, nil
	case 0x02:
		return Model22SM, nil
	case 0x03:
		return Model23S, nil
	case 0x0f:
		return Model24S, nil
	case 0x05:
		return Model25SM, nil
	case 0x01:
		return Model26S, nil
	case 0x0c:
		return Model28S, nil
	case 0x0e:
		return Model29S, nil
	}
	return ModelNone, fmt.Errorf("unknown model code %d", code)
}

// DecodeModelBidi decodes the model byte used in bidirectional mode.
func DecodeModelBidi(code byte) (Model, error) {
	switch code {
	case 2:
		return Model22SM, nil
	case 3:
		return Model23S, nil
	case 4:
		return Model24S, nil
	case 5:
		return Model25SM, nil
	case 1:
		return Model26S, nil
	case 12:
		return Model28S, nil
	case 14:
		return Model29S, nil
	}
	return ModelNone, fmt.Errorf("unknown model code %d", code)
}
