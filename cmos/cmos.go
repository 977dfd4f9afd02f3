/*
corex86 - MC146818-style CMOS/RTC

Copyright 2026, corex86 contributors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package cmos implements the 128-byte MC146818-style CMOS/RTC register
// file: index/data port pair, BCD time-of-day refreshed from host wall
// clock on read, and a periodic-interrupt deadline driven off a 32768Hz
// virtual clock.
package cmos

import "time"

const (
	regSeconds    = 0x00
	regMinutes    = 0x02
	regHours      = 0x04
	regWeekday    = 0x06
	regDayOfMonth = 0x07
	regMonth      = 0x08
	regYear       = 0x09
	regCentury    = 0x32

	regA = 0x0A
	regB = 0x0B
	regC = 0x0C
	regD = 0x0D
)

const ratekHz = 32768

// RTC is one MC146818-style CMOS device.
type RTC struct {
	reg   [128]byte
	index uint8

	deadline uint32 // next periodic-interrupt tick, in 32768Hz ticks
	ticks    uint32 // current 32768Hz tick count

	Now    func() time.Time // host wall clock, injected for testability
	SetIRQ func(level bool) // IRQ line (typically 8), pulsed low-high-low
}

// New creates an RTC with register D's "valid RAM and time" bit set and a
// 1024Hz (period code 6) periodic rate, matching typical BIOS defaults.
func New(now func() time.Time, setIRQ func(level bool)) *RTC {
	r := &RTC{Now: now, SetIRQ: setIRQ}
	r.reg[regA] = 0x26
	r.reg[regB] = 0x02
	r.reg[regD] = 0x80
	r.updateDeadline()
	return r
}

func bcd(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}

// WriteIndex handles a write to port 0x70. Bit 7 is the NMI mask bit and is
// ignored by the core.
func (r *RTC) WriteIndex(val uint8) {
	r.index = val & 0x7f
}

// ReadData handles a read from port 0x71: the selected register, refreshing
// the time-of-day fields from the host clock first.
func (r *RTC) ReadData() uint8 {
	r.refreshTimeOfDay()
	v := r.reg[r.index&0x7f]
	if r.index&0x7f == regC {
		r.reg[regC] = 0 // reading register C clears pending interrupt flags
	}
	return v
}

// WriteData handles a write to port 0x71: the selected register. Writing
// register A or B may change the periodic-interrupt rate or enable bit.
func (r *RTC) WriteData(val uint8) {
	idx := r.index & 0x7f
	r.reg[idx] = val
	if idx == regA || idx == regB {
		r.updateDeadline()
	}
}

func (r *RTC) refreshTimeOfDay() {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	t := now().UTC()

	r.reg[regSeconds] = bcd(t.Second())
	r.reg[regMinutes] = bcd(t.Minute())
	r.reg[regHours] = bcd(t.Hour())
	r.reg[regWeekday] = bcd(int(t.Weekday()) + 1)
	r.reg[regDayOfMonth] = bcd(t.Day())
	r.reg[regMonth] = bcd(int(t.Month()))
	r.reg[regYear] = bcd(t.Year() % 100)
	r.reg[regCentury] = bcd(t.Year() / 100)
}

func (r *RTC) period() uint32 {
	code := r.reg[regA] & 0x0f
	if code == 0 {
		return 0
	}
	return 1 << (code - 1)
}

func (r *RTC) updateDeadline() {
	p := r.period()
	if p == 0 {
		p = ratekHz
	}
	r.deadline = r.ticks + p
}

// Tick advances the RTC's virtual 32768Hz clock by n ticks and fires the
// periodic interrupt, possibly more than once, exactly when the deadline is
// reached — PIE in register B gates whether the IRQ line is actually pulsed.
func (r *RTC) Tick(n uint32) {
	r.ticks += n
	p := r.period()
	if p == 0 {
		return
	}
	for int32(r.ticks-r.deadline) >= 0 {
		r.reg[regC] |= 0xc0 // PF (bit 6) and IRQF (bit 7)
		r.deadline += p
		if r.reg[regB]&0x40 != 0 && r.SetIRQ != nil { // PIE
			r.SetIRQ(true)
			r.SetIRQ(false)
		}
	}
}
