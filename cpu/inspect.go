/*
corex86 - Register/segment/page-table snapshot for the monitor console

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

// SegState is the exported, read-only view of one segment register, the
// shape the monitor console prints for "seg" and uses to translate a
// logical address into a linear one for "mem".
type SegState struct {
	Selector uint16
	Base     uint32
	Limit    uint32
	DBit     bool
	DPL      uint8
	Present  bool
}

// State is a full, point-in-time snapshot of visible CPU state. Dump logs a
// subset of this at Error level on an internal fault; State exposes the
// whole thing for interactive inspection.
type State struct {
	Regs  [8]uint32
	Seg   [8]SegState
	GDT   struct {
		Base  uint32
		Limit uint16
	}
	IDT struct {
		Base  uint32
		Limit uint16
	}
	EIP         uint32
	EFlags      uint32
	CR0, CR2, CR3 uint32
	CPL         uint8
	Halted      bool
	VM          bool
}

// Snapshot captures the CPU's architectural state for display, without
// perturbing it — no flag materialization side effect survives the call
// since eflags() only reads the lazy cc state.
func (c *CPU) Snapshot() State {
	var s State
	s.Regs = c.regs
	for i, seg := range c.seg {
		s.Seg[i] = SegState{Selector: seg.selector, Base: seg.base, Limit: seg.limit, DBit: seg.dBit, DPL: seg.dpl, Present: seg.present}
	}
	s.GDT.Base, s.GDT.Limit = c.gdt.base, c.gdt.limit
	s.IDT.Base, s.IDT.Limit = c.idt.base, c.idt.limit
	s.EIP = c.eip
	s.EFlags = c.eflags()
	s.CR0, s.CR2, s.CR3 = c.cr0, c.cr2, c.cr3
	s.CPL = c.cpl()
	s.Halted = c.halted
	s.VM = c.vm
	return s
}

// LinearAddress resolves a segment:offset logical address to a linear
// address through the named segment's cached base, the same computation
// segBase/decodeModRM use for an instruction operand.
func (c *CPU) LinearAddress(seg int, offset uint32) uint32 {
	return c.seg[seg].base + offset
}

// CR3Value, PagingOn and WriteProtect let the monitor console walk the page
// tables with the MMU's own Translate, exactly as the fetch/load/store path
// does, rather than re-implementing the PDE/PTE walk.
func (c *CPU) CR3Value() uint32     { return c.cr3 }
func (c *CPU) PagingOn() bool       { return c.pagingEnabled() }
func (c *CPU) WriteProtect() bool   { return c.cr0&CR0WP != 0 }
