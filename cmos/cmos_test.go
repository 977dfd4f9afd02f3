package cmos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTCTimeOfDayBCDEncoding(t *testing.T) {
	fixed := time.Date(2026, time.March, 5, 13, 45, 9, 0, time.UTC)
	r := New(func() time.Time { return fixed }, nil)

	r.WriteIndex(regSeconds)
	assert.Equal(t, uint8(0x09), r.ReadData())

	r.WriteIndex(regMinutes)
	assert.Equal(t, uint8(0x45), r.ReadData())

	r.WriteIndex(regHours)
	assert.Equal(t, uint8(0x13), r.ReadData())

	r.WriteIndex(regYear)
	assert.Equal(t, uint8(0x26), r.ReadData())
}

func TestRTCPeriodicInterruptPulsesAndClearsOnReadC(t *testing.T) {
	fixed := time.Unix(0, 0)
	pulses := 0
	r := New(func() time.Time { return fixed }, func(level bool) {
		if level {
			pulses++
		}
	})

	r.WriteIndex(regA)
	r.WriteData(0x20 | 6) // period code 6 -> 1<<5 = 32 ticks
	r.WriteIndex(regB)
	r.WriteData(0x40) // PIE

	r.Tick(32)
	assert.Equal(t, 1, pulses)

	r.WriteIndex(regC)
	c := r.ReadData()
	assert.NotEqual(t, uint8(0), c&0x80)

	r.WriteIndex(regC)
	assert.Equal(t, uint8(0), r.ReadData())
}

func TestRTCNoPeriodicIRQWithoutPIE(t *testing.T) {
	fixed := time.Unix(0, 0)
	pulses := 0
	r := New(func() time.Time { return fixed }, func(bool) { pulses++ })

	r.WriteIndex(regB)
	r.WriteData(0x00) // PIE clear
	r.Tick(100000)
	assert.Equal(t, 0, pulses)
}
