/*
corex86 - Segment descriptor decoding and loading

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

// descriptor is the decoded form of one 8-byte GDT/LDT entry. The reference
// interpreter treats code/data and system descriptors uniformly as two
// words; this keeps that shape but exposes a tagged accessor so callers do
// not have to re-derive "is this a system descriptor" from raw bits.
type descriptor struct {
	base    uint32
	limit   uint32
	typ     uint8 // raw 4-bit type field
	system  bool  // S bit: false = system descriptor (gate/LDT/TSS)
	dpl     uint8
	present bool
	dBit    bool // D/B bit: 32-bit code or big stack
	gran    bool // G bit: limit is in 4KiB pages
}

// isCodeData reports whether this descriptor is a user code or data
// segment (S bit set).
func (d descriptor) isCodeData() bool { return d.system }

// isCode reports whether a code/data descriptor's type nibble marks it as
// code (bit 3 of the type field).
func (d descriptor) isCode() bool { return d.system && d.typ&0x8 != 0 }

// conforming reports a code descriptor's conforming bit (bit 2 of the type).
func (d descriptor) conforming() bool { return d.typ&0x4 != 0 }

// decodeDescriptor unpacks the two raw 32-bit words of a GDT/LDT entry.
func decodeDescriptor(w0, w1 uint32) descriptor {
	d := descriptor{}
	d.base = (w0 >> 16) | ((w1 & 0xff) << 16) | (w1 & 0xff000000)
	limit := (w0 & 0xffff) | ((w1 & 0xf0000) >> 0)
	limit &= 0xfffff
	d.gran = w1&0x800000 != 0
	if d.gran {
		d.limit = (limit << 12) | 0xfff
	} else {
		d.limit = limit
	}
	d.typ = uint8((w1 >> 8) & 0xf)
	d.system = w1&0x1000 != 0
	d.dpl = uint8((w1 >> 13) & 3)
	d.present = w1&0x8000 != 0
	d.dBit = w1&0x400000 != 0
	return d
}

// readDescriptor fetches and decodes the descriptor at table base tblBase
// for the given selector (index*8 offset, ignoring the RPL/TI bits already
// resolved by the caller).
func (c *CPU) readDescriptor(tblBase uint32, index uint32) descriptor {
	addr := tblBase + index*8
	w0 := c.mem.Load32(addr)
	w1 := c.mem.Load32(addr + 4)
	return decodeDescriptor(w0, w1)
}

// selectorTable returns the GDT or LDT base/limit a selector's TI bit
// refers to.
func (c *CPU) selectorTable(sel uint16) (base uint32, limit uint16) {
	if sel&0x4 != 0 {
		return c.ldt.base, uint16(c.ldt.limit)
	}
	return c.gdt.base, c.gdt.limit
}

// segcheck validates a selector load against CPL/PE, matching the reference
// interpreter's segcheck exactly: the null-selector and protection-enable
// checks are real, but the limit check is intentionally omitted (the
// original wraps it in #if 0) — see DESIGN.md.
func (c *CPU) segcheck(seg int, sel uint16) *Fault {
	if c.cr0&CR0PE == 0 {
		return nil // real mode: no descriptor checks at all
	}
	if seg != SegCS && sel&0xfffc == 0 {
		return c.gpFault(0)
	}
	return nil
}

// loadSegmentReal loads a real-mode/V8086 segment register: selector*16 is
// the base, limit is fixed at 0xffff, DPL is irrelevant.
func (c *CPU) loadSegmentReal(seg int, sel uint16) {
	c.seg[seg] = segment{
		selector: sel,
		base:     uint32(sel) << 4,
		limit:    0xffff,
		present:  true,
	}
}

// loadSegment loads a protected-mode segment register from its descriptor,
// after the caller has already run whatever selector-specific privilege
// checks apply (CS via a control transfer, SS via TSS/call-gate setup,
// DS/ES/FS/GS via plain MOV-to-segreg checks).
func (c *CPU) loadSegment(seg int, sel uint16, d descriptor) {
	c.seg[seg] = segment{
		selector: sel,
		base:     d.base,
		limit:    d.limit,
		dBit:     d.dBit,
		dpl:      d.dpl,
		present:  d.present,
	}
}
