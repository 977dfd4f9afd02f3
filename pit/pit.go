/*
corex86 - 8254 programmable interval timer

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

// Package pit implements a 3-channel 8254 interval timer. Counter values are
// never decremented on a clock tick; they are computed on read from the
// elapsed time since the count was loaded, exactly like the reference
// implementation's pit_get_count/pit_get_out1 — the only state mutated
// outside of I/O writes is channel 0's catch-up IRQ pulsing.
package pit

const pitFreq = 1193182 // Hz, the 8254's input clock

const (
	rwLSB = 1 + iota
	rwMSB
	rwWord0
	rwWord1
)

type channel struct {
	count         uint32
	latchedCount  uint16
	countLatched  uint8
	statusLatched bool
	status        uint8
	readState     uint8
	writeState    uint8
	writeLatch    uint8
	rwMode        uint8
	mode          uint8
	bcd           bool
	gate          bool

	countLoadTime uint32
	lastIRQCount  uint32
	hasIRQ        bool
}

// Timer is a 3-channel 8254 PIT. Now returns the current time in
// microseconds on a monotonically increasing clock; it is injected so tests
// can drive it deterministically.
type Timer struct {
	ch      [3]channel
	Now     func() uint32
	SetIRQ  func(level bool) // channel 0's output, wired to the PIC
}

// New creates a Timer in its post-reset state: all channels mode 3, gate
// high except on channel 2 (the PC speaker gate, normally software driven).
func New(now func() uint32, setIRQ func(level bool)) *Timer {
	t := &Timer{Now: now, SetIRQ: setIRQ}
	t.Reset()
	t.ch[0].hasIRQ = true
	return t
}

// Reset reloads every channel to mode 3, count 0 (== 0x10000).
func (t *Timer) Reset() {
	for i := range t.ch {
		t.ch[i] = channel{mode: 3, gate: i != 2}
		t.loadCount(&t.ch[i], 0)
	}
}

func (t *Timer) loadCount(c *channel, val uint32) {
	if val == 0 {
		val = 0x10000
	}
	c.countLoadTime = t.Now()
	c.lastIRQCount = 0
	c.count = val
}

func (t *Timer) getCount(c *channel) uint16 {
	d := ((t.Now() - c.countLoadTime)) * pitFreq / 1000000
	var counter uint32
	switch c.mode {
	case 0, 1, 4, 5:
		counter = (c.count - d) & 0xffff
	case 3:
		counter = c.count - ((2 * d) % c.count)
	default:
		counter = c.count - (d % c.count)
	}
	return uint16(counter)
}

func (t *Timer) getOut(c *channel, now uint32) bool {
	d := (now - c.countLoadTime) * pitFreq / 1000000
	switch c.mode {
	case 1:
		return d < c.count
	case 2:
		return d%c.count == 0 && d != 0
	case 3:
		return d%c.count < (c.count+1)>>1
	case 4, 5:
		return d == c.count
	default: // 0
		return d >= c.count
	}
}

func (t *Timer) latch(c *channel) {
	if c.countLatched == 0 {
		c.latchedCount = t.getCount(c)
		c.countLatched = c.rwMode
	}
}

// WriteCommand handles a write to port 0x43 (the mode/command register).
func (t *Timer) WriteCommand(val uint8) {
	ch := val >> 6
	if ch == 3 {
		t.readBack(val)
		return
	}
	c := &t.ch[ch]
	access := (val >> 4) & 3
	if access == 0 {
		t.latch(c)
		return
	}
	c.rwMode = access
	c.readState = access
	c.writeState = access
	c.mode = (val >> 1) & 7
	c.bcd = val&1 != 0
}

func (t *Timer) readBack(val uint8) {
	for ch := 0; ch < 3; ch++ {
		if val&(2<<uint(ch)) == 0 {
			continue
		}
		c := &t.ch[ch]
		if val&0x20 == 0 {
			t.latch(c)
		}
		if val&0x10 == 0 && !c.statusLatched {
			out := uint8(0)
			if t.getOut(c, t.Now()) {
				out = 1
			}
			c.status = out<<7 | c.rwMode<<4 | c.mode<<1 | b2u8(c.bcd)
			c.statusLatched = true
		}
	}
}

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// WriteCounter handles a write to one of ports 0x40-0x42.
func (t *Timer) WriteCounter(channel int, val uint8) {
	c := &t.ch[channel]
	switch c.writeState {
	case rwMSB:
		t.loadCount(c, uint32(val)<<8)
	case rwWord0:
		c.writeLatch = val
		c.writeState = rwWord1
	case rwWord1:
		t.loadCount(c, uint32(c.writeLatch)|uint32(val)<<8)
		c.writeState = rwWord0
	default: // rwLSB
		t.loadCount(c, uint32(val))
	}
}

// ReadCounter handles a read from one of ports 0x40-0x42.
func (t *Timer) ReadCounter(channel int) uint8 {
	c := &t.ch[channel]
	if c.statusLatched {
		c.statusLatched = false
		return c.status
	}
	if c.countLatched != 0 {
		switch c.countLatched {
		case rwMSB:
			c.countLatched = 0
			return uint8(c.latchedCount >> 8)
		case rwWord0:
			c.countLatched = rwMSB
			return uint8(c.latchedCount)
		default:
			c.countLatched = 0
			return uint8(c.latchedCount)
		}
	}
	switch c.readState {
	case rwMSB:
		return uint8(t.getCount(c) >> 8)
	case rwWord0:
		c.readState = rwWord1
		return uint8(t.getCount(c))
	case rwWord1:
		c.readState = rwWord0
		return uint8(t.getCount(c) >> 8)
	default:
		return uint8(t.getCount(c))
	}
}

// UpdateIRQ re-evaluates channel 0's output against elapsed time and pulses
// its IRQ line for every period that has elapsed since the last check,
// capped at 10 pulses per call to avoid a runaway catch-up loop — exactly
// the reference implementation's i8254_update_irq.
func (t *Timer) UpdateIRQ() {
	c := &t.ch[0]
	if c.mode != 2 && c.mode != 3 {
		return
	}
	uticks := t.Now()
	d := (uticks - c.countLoadTime) * pitFreq / 1000000

	if c.lastIRQCount+c.count-d < 0x80000000 {
		return
	}
	for i := 0; i < 10 && c.lastIRQCount+c.count-d >= 0x80000000; i++ {
		if t.SetIRQ != nil {
			t.SetIRQ(true)
			t.SetIRQ(false)
		}
		c.lastIRQCount += c.count
		if uticks-c.countLoadTime > 1<<31 {
			t.loadCount(c, c.count)
		}
	}
}

// SetGate sets channel 2's gate input (the PC speaker gate).
func (t *Timer) SetGate(channel int, level bool) {
	c := &t.ch[channel]
	switch c.mode {
	case 1, 2, 3, 5:
		if !c.gate && level {
			c.countLoadTime = t.Now()
		}
	}
	c.gate = level
}
