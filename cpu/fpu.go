/*
corex86 - x87 floating point unit

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

package cpu

import "math"

// fpuState is an intentionally incomplete x87 emulation: an eight-entry
// register stack kept as float64 (the reference interpreter's own fallback
// representation when it is not built with native float80 support), a
// control/status word pair, and the TOP pointer. No exceptions, no tag
// word beyond "empty or not" — the reference interpreter carries the same
// disclaimer.
type fpuState struct {
	cw, sw uint16
	top    uint
	st     [8]float64
	empty  [8]bool
}

func (f *fpuState) reset() {
	*f = fpuState{cw: 0x037f, sw: 0}
	for i := range f.empty {
		f.empty[i] = true
	}
}

func (f *fpuState) statusWord() uint16 {
	return (f.sw & 0xc7ff) | uint16(f.top<<11)
}

func (f *fpuState) setStatusWord(sw uint16) {
	f.sw = sw
	f.top = uint(sw>>11) & 7
}

func (f *fpuState) idx(i int) uint {
	return (f.top + uint(i)) & 7
}

func (f *fpuState) get(i int) float64 {
	return f.st[f.idx(i)]
}

func (f *fpuState) set(i int, v float64) {
	idx := f.idx(i)
	f.st[idx] = v
	f.empty[idx] = false
}

func (f *fpuState) push(v float64) {
	f.top = (f.top - 1) & 7
	f.set(0, v)
}

func (f *fpuState) pop() {
	f.empty[f.idx(0)] = true
	f.top = (f.top + 1) & 7
}

// fpuAvailable reports whether the coprocessor is usable: present in Config
// and CR0.EM clear. CR0.TS is handled by the caller, which raises #NM
// (device-not-available) instead of executing the instruction when set.
func (c *CPU) fpuAvailable() bool {
	return c.cfg.FPU && c.cr0&CR0EM == 0
}

// execFPU runs the ESC (0xD8-0xDF) opcode group: a small, representative
// subset of x87 — load/store and the four basic arithmetic ops on ST(0) —
// sufficient to exercise the CR0.TS/EM gating and stack push/pop semantics
// the rest of the engine depends on.
func (c *CPU) execFPU(ds *decodeState, op uint8) *Fault {
	if c.cr0&CR0TS != 0 {
		return faultVec(ExNM)
	}
	if !c.fpuAvailable() {
		return faultVec(ExUD)
	}

	m, flt := c.decodeModRM(ds, SegDS)
	if flt != nil {
		return flt
	}

	if m.isReg {
		switch op {
		case 0xd9: // FLD ST(i) when reg field is 0
			if m.reg == 0 {
				c.fpu.push(c.fpu.get(m.rmReg))
			}
			return nil
		case 0xdd: // FSTP ST(i) when reg field is 3
			if m.reg == 3 {
				c.fpu.set(m.rmReg, c.fpu.get(0))
				c.fpu.pop()
			}
			return nil
		}
		return nil
	}

	switch op {
	case 0xd9: // FLD m32real / FSTP m32real, selected by the /reg field
		switch m.reg {
		case 0:
			var buf [4]byte
			if flt := c.readLinear(m.linAddr, buf[:]); flt != nil {
				return flt
			}
			c.fpu.push(float64(math.Float32frombits(leUint32(buf[:]))))
		case 3:
			var buf [4]byte
			putLE32(buf[:], math.Float32bits(float32(c.fpu.get(0))))
			if flt := c.writeLinear(m.linAddr, buf[:]); flt != nil {
				return flt
			}
			c.fpu.pop()
		}
		return nil
	case 0xdd: // FLD m64real / FSTP m64real
		switch m.reg {
		case 0:
			var buf [8]byte
			if flt := c.readLinear(m.linAddr, buf[:]); flt != nil {
				return flt
			}
			c.fpu.push(math.Float64frombits(leUint64(buf[:])))
		case 3:
			var buf [8]byte
			putLE64(buf[:], math.Float64bits(c.fpu.get(0)))
			if flt := c.writeLinear(m.linAddr, buf[:]); flt != nil {
				return flt
			}
			c.fpu.pop()
		}
		return nil
	case 0xdc: // arithmetic m64real op ST(0)
		var buf [8]byte
		if flt := c.readLinear(m.linAddr, buf[:]); flt != nil {
			return flt
		}
		v := math.Float64frombits(leUint64(buf[:]))
		c.fpuArith(m.reg, v)
		return nil
	}
	return nil
}

func (c *CPU) fpuArith(op int, v float64) {
	st0 := c.fpu.get(0)
	switch op {
	case 0:
		c.fpu.set(0, st0+v)
	case 1:
		c.fpu.set(0, st0*v)
	case 4:
		c.fpu.set(0, st0-v)
	case 6:
		c.fpu.set(0, st0/v)
	}
}
