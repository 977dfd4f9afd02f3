/*
corex86 - Prefix/ModR-M/SIB decode and the one-instruction dispatch

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

// decodeState carries the per-instruction decode context: active segment
// override, operand size, and REP prefix. ModR/M addressing is always
// decoded in its 32-bit form; a 0x67 prefix does not select 16-bit forms.
type decodeState struct {
	segOverride int
	hasSeg      bool
	opSize32    bool
	repPrefix   uint8 // 0, 0xF2 (REPNE) or 0xF3 (REP/REPE)
	lock        bool
}

// modrm is a decoded ModR/M(+SIB+disp) operand reference.
type modrm struct {
	reg     int  // the /reg field
	isReg   bool // r/m operand is a register, not memory
	rmReg   int
	linAddr uint32
}

func (c *CPU) segBase(ds *decodeState, def int) uint32 {
	seg := def
	if ds.hasSeg {
		seg = ds.segOverride
	}
	return c.seg[seg].base
}

// decodeModRM reads a ModR/M byte plus any SIB/displacement, computing a
// 32-bit flat linear address when the r/m field names memory.
func (c *CPU) decodeModRM(ds *decodeState, defSeg int) (modrm, *Fault) {
	b, flt := c.fetchByte()
	if flt != nil {
		return modrm{}, flt
	}
	md := (b >> 6) & 3
	reg := int((b >> 3) & 7)
	rm := int(b & 7)

	if md == 3 {
		return modrm{reg: reg, isReg: true, rmReg: rm}, nil
	}

	var base, index, scale uint32
	var haveBase, haveIndex bool
	disp := uint32(0)

	if rm == 4 {
		sib, flt := c.fetchByte()
		if flt != nil {
			return modrm{}, flt
		}
		ss := (sib >> 6) & 3
		idx := int((sib >> 3) & 7)
		bs := int(sib & 7)
		scale = 1 << ss
		if idx != 4 {
			index = c.regs[idx]
			haveIndex = true
		}
		if bs == 5 && md == 0 {
			d, flt := c.fetchWord32()
			if flt != nil {
				return modrm{}, flt
			}
			disp = d
		} else {
			base = c.regs[bs]
			haveBase = true
		}
	} else if rm == 5 && md == 0 {
		d, flt := c.fetchWord32()
		if flt != nil {
			return modrm{}, flt
		}
		disp = d
	} else {
		base = c.regs[rm]
		haveBase = true
	}

	switch md {
	case 1:
		d, flt := c.fetchByte()
		if flt != nil {
			return modrm{}, flt
		}
		disp += uint32(int32(int8(d)))
	case 2:
		d, flt := c.fetchWord32()
		if flt != nil {
			return modrm{}, flt
		}
		disp += d
	}

	addr := disp
	if haveBase {
		addr += base
	}
	if haveIndex {
		addr += index * scale
	}

	linear := c.segBase(ds, defSeg) + addr
	return modrm{reg: reg, isReg: false, linAddr: linear}, nil
}

func (c *CPU) readRM32(ds *decodeState, m modrm) (uint32, *Fault) {
	if m.isReg {
		return c.regs[m.rmReg], nil
	}
	var buf [4]byte
	if flt := c.readLinear(m.linAddr, buf[:]); flt != nil {
		return 0, flt
	}
	return leUint32(buf[:]), nil
}

func (c *CPU) writeRM32(m modrm, v uint32) *Fault {
	if m.isReg {
		c.regs[m.rmReg] = v
		return nil
	}
	var buf [4]byte
	putLE32(buf[:], v)
	return c.writeLinear(m.linAddr, buf[:])
}

func (c *CPU) readRM8(m modrm) (uint8, *Fault) {
	if m.isReg {
		return c.readReg8(m.rmReg), nil
	}
	var buf [1]byte
	if flt := c.readLinear(m.linAddr, buf[:]); flt != nil {
		return 0, flt
	}
	return buf[0], nil
}

func (c *CPU) writeRM8(m modrm, v uint8) *Fault {
	if m.isReg {
		c.writeReg8(m.rmReg, v)
		return nil
	}
	return c.writeLinear(m.linAddr, []byte{v})
}

// readReg8/writeReg8 implement the legacy byte-register encoding: 0-3 are
// the low bytes of EAX/ECX/EDX/EBX, 4-7 are the high bytes of the same.
func (c *CPU) readReg8(idx int) uint8 {
	if idx < 4 {
		return uint8(c.regs[idx])
	}
	return uint8(c.regs[idx-4] >> 8)
}

func (c *CPU) writeReg8(idx int, v uint8) {
	if idx < 4 {
		c.regs[idx] = (c.regs[idx] &^ 0xff) | uint32(v)
	} else {
		c.regs[idx-4] = (c.regs[idx-4] &^ 0xff00) | uint32(v)<<8
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func leUint64(b []byte) uint64 {
	return uint64(leUint32(b[:4])) | uint64(leUint32(b[4:8]))<<32
}

func putLE64(b []byte, v uint64) {
	putLE32(b[:4], uint32(v))
	putLE32(b[4:8], uint32(v>>32))
}

// execOne fetches and runs exactly one instruction, handling legacy
// prefixes before dispatching on the opcode byte.
func (c *CPU) execOne() *Fault {
	var ds decodeState
	ds.opSize32 = c.seg[SegCS].dBit

	for {
		b, flt := c.fetchByte()
		if flt != nil {
			return flt
		}
		switch b {
		case 0x2e, 0x36, 0x3e, 0x26, 0x64, 0x65:
			ds.hasSeg = true
			ds.segOverride = segOverrideFor(b)
			continue
		case 0x66:
			ds.opSize32 = !ds.opSize32
			continue
		case 0x67:
			continue // address-size override: flat 32-bit decode only
		case 0xf0:
			ds.lock = true
			continue
		case 0xf2, 0xf3:
			ds.repPrefix = b
			continue
		default:
			return c.dispatch(&ds, b)
		}
	}
}

func segOverrideFor(prefix uint8) int {
	switch prefix {
	case 0x2e:
		return SegCS
	case 0x36:
		return SegSS
	case 0x3e:
		return SegDS
	case 0x26:
		return SegES
	case 0x64:
		return SegFS
	default:
		return SegGS
	}
}
