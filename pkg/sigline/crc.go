// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Metrolab Instruments

package sigline

// CRC-16/MCRF4XX parameters (reflected 0x1021).
const (
	crcPolynomial = 0x8408
	crcInitial    = 0xFFFF
)

// Crc16Mcrf4xx computes the CRC-16/MCRF4XX checksum over data, continuing
// from crc. Pass crcInitial (0xFFFF) to start a fresh checksum; the check
// value for "123456789" is 0x6F91.
func Crc16Mcrf4xx(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPolynomial
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Checksum computes the CRC-16/MCRF4XX of data from the initial value.
func Checksum(data []byte) uint16 {
	return Crc16Mcrf4xx(crcInitial, data)
}
