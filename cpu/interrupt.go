/*
corex86 - Exception, interrupt and task-switch delivery

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

import "log/slog"

// gateDescriptor is the decoded form of an IDT entry: interrupt/trap/task
// gate, transliterating the reference interpreter's call_isr gate parsing.
type gateDescriptor struct {
	offset  uint32
	sel     uint16
	typ     uint8 // 5=task, 6=16-bit interrupt, 7=16-bit trap, 14=32-bit interrupt, 15=32-bit trap
	dpl     uint8
	present bool
}

func decodeGate(w0, w1 uint32) gateDescriptor {
	g := gateDescriptor{}
	g.offset = (w0 >> 16) | (w1 & 0xffff0000)
	g.sel = uint16(w0 & 0xffff)
	g.typ = uint8((w1 >> 8) & 0x1f)
	g.dpl = uint8((w1 >> 13) & 3)
	g.present = w1&0x8000 != 0
	return g
}

func (c *CPU) readGate(vector uint8) gateDescriptor {
	return c.readGateAt(c.idt.base, uint32(vector))
}

// readGateAt decodes the gate descriptor at tblBase+index*8 — the same
// 8-byte layout applies whether tblBase is the IDT (readGate) or a GDT/LDT
// slot reached by a call-gate or task-gate selector (farTransfer).
func (c *CPU) readGateAt(tblBase uint32, index uint32) gateDescriptor {
	addr := tblBase + index*8
	w0 := c.mem.Load32(addr)
	w1 := c.mem.Load32(addr + 4)
	return decodeGate(w0, w1)
}

// Interrupt is the call_isr equivalent: it delivers vector, either as a
// hardware/software interrupt (isFault false) or as a CPU-detected exception
// (isFault true, optionally pushing errorCode). It returns false only for
// the handful of corner cases the reference interpreter treats as a hard
// cpu_abort (see SPEC_FULL.md section 11) — the caller dumps state and halts
// rather than emulate undefined behavior.
func (c *CPU) Interrupt(vector uint8, isFault bool, hasError bool, errorCode uint16) bool {
	// An exception returns to the faulting instruction; an interrupt returns
	// past the instruction that was executing.
	retEIP := c.eip
	if !isFault {
		retEIP = c.nextEIP
	}
	if c.cr0&CR0PE == 0 {
		return c.realModeInterrupt(vector, retEIP)
	}

	gate := c.readGate(vector)
	if !gate.present {
		if vector == ExDF {
			slog.Error("cpu: double fault delivering vector with no IDT entry", slog.Int("vector", int(vector)))
			return false
		}
		return c.Interrupt(ExGP, true, true, uint16(vector)*8+2)
	}

	if gate.typ == 5 {
		return c.taskGateSwitch(gate)
	}
	if gate.typ != 6 && gate.typ != 7 && gate.typ != 14 && gate.typ != 15 {
		slog.Error("cpu: IDT entry names neither a task gate nor an interrupt/trap gate", slog.Int("vector", int(vector)))
		return false
	}

	if c.vm && (gate.typ == 6 || gate.typ == 7) {
		// A 16-bit gate taken from V8086 mode is the other hard-abort case.
		slog.Error("cpu: interrupt from V8086 mode through a 16-bit gate", slog.Int("vector", int(vector)))
		return false
	}

	is32 := gate.typ == 14 || gate.typ == 15
	isTrap := gate.typ == 7 || gate.typ == 15

	destBase, destLimit := c.selectorTable(gate.sel)
	_ = destLimit
	destDesc := c.readDescriptor(destBase, uint32(gate.sel>>3))
	if !destDesc.present {
		return c.Interrupt(ExNP, true, true, uint16(gate.sel)&0xfffc)
	}
	if c.vm && destDesc.dpl != 0 {
		// call_isr aborts when a V8086 interrupt is taken through a gate
		// whose CS DPL is not 0 — see SPEC_FULL.md section 11.
		slog.Error("cpu: interrupt from V8086 mode into a code segment with DPL != 0", slog.Int("vector", int(vector)))
		return false
	}

	newCPL := destDesc.dpl
	oldCPL := c.cpl()
	fromV86 := c.vm

	savedFlags := c.eflags()
	savedCS := c.seg[SegCS].selector
	savedEIP := retEIP
	savedSS := c.seg[SegSS].selector
	savedESP := c.regs[RegESP]

	privilegeChange := newCPL < oldCPL || fromV86

	if privilegeChange {
		tssSS, tssESP := c.tssStackFor(newCPL)
		newSSDesc := c.readDescriptor(c.gdt.base, uint32(tssSS>>3))

		if fromV86 {
			// Real i386 pushes GS,FS,DS,ES (zeroing the selectors) ahead of
			// the usual SS:ESP/EFLAGS/CS:EIP frame, then clears VM.
			c.loadSegment(SegSS, tssSS, newSSDesc)
			c.regs[RegESP] = tssESP
			for _, s := range []int{SegGS, SegFS, SegDS, SegES} {
				c.mustPush32(uint32(c.seg[s].selector))
				c.seg[s] = segment{}
			}
			c.vm = false
			c.flags &^= FlagVM
		} else {
			c.loadSegment(SegSS, tssSS, newSSDesc)
			c.regs[RegESP] = tssESP
		}

		c.mustPush32(uint32(savedSS))
		c.mustPush32(savedESP)
	}

	c.mustPush32(savedFlags)
	c.mustPush32(uint32(savedCS))
	c.mustPush32(savedEIP)
	if hasError {
		c.mustPush32(uint32(errorCode))
	}

	c.loadSegment(SegCS, gate.sel, destDesc)
	c.seg[SegCS].selector = (gate.sel &^ 3) | uint16(newCPL)
	c.nextEIP = gate.offset
	c.flags &^= FlagTF | FlagVM | FlagRF
	if !isTrap {
		c.flags &^= FlagIF
	}
	c.flags &^= FlagNT
	c.cc = loadFlags(c.flags)
	c.halted = false
	_ = is32
	return true
}

// mustPush32 pushes a value onto the (already switched, if applicable)
// stack. A fault here — a genuinely unmapped or non-writable kernel stack —
// is the double-fault/triple-fault boundary the reference interpreter
// handles by recursing into vector 8. That recursion is not modelled here:
// the fault is logged at Error level, the value is not pushed, and delivery
// carries on.
func (c *CPU) mustPush32(v uint32) {
	if flt := c.push32(v); flt != nil {
		slog.Error("cpu: fault pushing interrupt frame", slog.Uint64("value", uint64(v)))
	}
}

// tssStackFor returns the SS selector and ESP the current TR's TSS holds
// for privilege level cpl, per the static (32-bit) TSS layout.
func (c *CPU) tssStackFor(cpl uint8) (uint16, uint32) {
	base := c.tr.base
	off := uint32(4) + uint32(cpl)*8
	esp := c.mem.Load32(base + off)
	ss := uint16(c.mem.Load32(base + off + 4))
	return ss, esp
}

// taskGateSwitch is a minimal task-switch (spec.md §8 scenario 6): it saves
// EIP, EFLAGS and the eight general registers into the outgoing TSS, then
// loads CR3, EIP, EFLAGS and the eight general registers from the incoming
// TSS and marks it busy. Segment registers and LDTR are not reloaded and no
// back-link is written. The incoming descriptor may be an available or busy
// 32-bit TSS (type 9 or 0xb); any other type is SPEC_FULL.md section 11's
// non-32-bit-TSS abort case.
func (c *CPU) taskGateSwitch(gate gateDescriptor) bool {
	base, _ := c.selectorTable(gate.sel)
	desc := c.readDescriptor(base, uint32(gate.sel>>3))
	if desc.typ != 0x9 && desc.typ != 0xb {
		slog.Error("cpu: task gate names a non-32-bit TSS")
		return false
	}
	c.saveTSS(c.tr.base)
	if c.tr.selector&0xfffc != 0 {
		oldBase, _ := c.selectorTable(c.tr.selector)
		c.setDescriptorBusy(oldBase, uint32(c.tr.selector>>3), false)
	}

	newBase := desc.base
	c.cr3 = c.mem.Load32(newBase + tssCR3)
	c.nextEIP = c.mem.Load32(newBase + tssEIP)
	c.setEflags(c.mem.Load32(newBase + tssEFLAGS))
	c.regs[RegEAX] = c.mem.Load32(newBase + tssEAX)
	c.regs[RegECX] = c.mem.Load32(newBase + tssECX)
	c.regs[RegEDX] = c.mem.Load32(newBase + tssEDX)
	c.regs[RegEBX] = c.mem.Load32(newBase + tssEBX)
	c.regs[RegESP] = c.mem.Load32(newBase + tssESP)
	c.regs[RegEBP] = c.mem.Load32(newBase + tssEBP)
	c.regs[RegESI] = c.mem.Load32(newBase + tssESI)
	c.regs[RegEDI] = c.mem.Load32(newBase + tssEDI)
	c.mmu.Flush()
	c.setDescriptorBusy(base, uint32(gate.sel>>3), true)
	c.cr0 |= CR0TS
	c.tr = segment{selector: gate.sel, base: desc.base, limit: desc.limit, present: true}
	return true
}

// setDescriptorBusy flips the busy sub-bit of a TSS descriptor's type nibble
// (type 9 <-> 0xb for a 32-bit TSS) directly in the descriptor table, the
// same bit task_switch toggles on both the outgoing and incoming TSS.
func (c *CPU) setDescriptorBusy(tblBase uint32, index uint32, busy bool) {
	addr := tblBase + index*8 + 4
	w1 := c.mem.Load32(addr)
	if busy {
		w1 |= 1 << 9
	} else {
		w1 &^= 1 << 9
	}
	c.mem.Store32(addr, w1)
}

// 32-bit TSS field offsets (the static-TSS format the reference interpreter
// assumes — see DESIGN.md for the 16-bit-TSS non-goal).
const (
	tssCR3     = 0x1c
	tssEIP     = 0x20
	tssEFLAGS  = 0x24
	tssEAX     = 0x28
	tssECX     = 0x2c
	tssEDX     = 0x30
	tssEBX     = 0x34
	tssESP     = 0x38
	tssEBP     = 0x3c
	tssESI     = 0x40
	tssEDI     = 0x44
)

func (c *CPU) saveTSS(base uint32) {
	if base == 0 {
		return
	}
	c.mem.Store32(base+tssEIP, c.eip)
	c.mem.Store32(base+tssEFLAGS, c.eflags())
	c.mem.Store32(base+tssEAX, c.regs[RegEAX])
	c.mem.Store32(base+tssECX, c.regs[RegECX])
	c.mem.Store32(base+tssEDX, c.regs[RegEDX])
	c.mem.Store32(base+tssEBX, c.regs[RegEBX])
	c.mem.Store32(base+tssESP, c.regs[RegESP])
	c.mem.Store32(base+tssEBP, c.regs[RegEBP])
	c.mem.Store32(base+tssESI, c.regs[RegESI])
	c.mem.Store32(base+tssEDI, c.regs[RegEDI])
}

// realModeInterrupt dispatches through the IVT at physical address
// vector*4; Interrupt takes this path whenever CR0.PE is clear. retEIP is
// the return offset pushed after FLAGS and CS.
func (c *CPU) realModeInterrupt(vector uint8, retEIP uint32) bool {
	entry := c.mem.Load32(uint32(vector) * 4)
	newIP := uint16(entry)
	newCS := uint16(entry >> 16)

	c.mustPush32(c.eflags() & 0xffff)
	c.mustPush32(uint32(c.seg[SegCS].selector))
	c.mustPush32(retEIP)

	c.flags &^= FlagIF | FlagTF
	c.cc = loadFlags(c.flags)
	c.loadSegmentReal(SegCS, newCS)
	c.nextEIP = uint32(newIP)
	c.halted = false
	return true
}

// iret pops the appropriate frame and restores CS:EIP/EFLAGS, handling the
// same-privilege and privilege-raising return cases.
func (c *CPU) iret() *Fault {
	if c.cr0&CR0PE == 0 || c.vm {
		return c.iretReal()
	}

	eip, flt := c.pop32()
	if flt != nil {
		return flt
	}
	csSel, flt := c.pop32()
	if flt != nil {
		return flt
	}
	newFlags, flt := c.pop32()
	if flt != nil {
		return flt
	}

	if newFlags&FlagVM != 0 && c.cpl() == 0 {
		return c.iretToV8086(eip, csSel, newFlags)
	}

	destBase, _ := c.selectorTable(uint16(csSel))
	destDesc := c.readDescriptor(destBase, uint32(uint16(csSel)>>3))
	newCPL := uint8(csSel & 3)

	if newCPL > c.cpl() {
		esp, flt := c.pop32()
		if flt != nil {
			return flt
		}
		ssSel, flt := c.pop32()
		if flt != nil {
			return flt
		}
		ssBase, _ := c.selectorTable(uint16(ssSel))
		ssDesc := c.readDescriptor(ssBase, uint32(uint16(ssSel)>>3))
		c.loadSegment(SegCS, uint16(csSel), destDesc)
		c.nextEIP = eip
		c.setEflags(newFlags)
		c.loadSegment(SegSS, uint16(ssSel), ssDesc)
		c.regs[RegESP] = esp
		return nil
	}

	c.loadSegment(SegCS, uint16(csSel), destDesc)
	c.nextEIP = eip
	c.setEflags(newFlags)
	return nil
}

// iretToV8086 implements the from-protected-mode IRET reentry into V8086
// mode: VM set in the popped EFLAGS while the IRET itself runs at CPL 0.
// The six extra words (ESP, SS, ES, DS, FS, GS) sit on the stack in the
// mirror image of the push order Interrupt's privilegeChange/fromV86 path
// used to get here.
func (c *CPU) iretToV8086(eip uint32, csSel uint32, newFlags uint32) *Fault {
	esp, flt := c.pop32()
	if flt != nil {
		return flt
	}
	ssSel, flt := c.pop32()
	if flt != nil {
		return flt
	}
	esSel, flt := c.pop32()
	if flt != nil {
		return flt
	}
	dsSel, flt := c.pop32()
	if flt != nil {
		return flt
	}
	fsSel, flt := c.pop32()
	if flt != nil {
		return flt
	}
	gsSel, flt := c.pop32()
	if flt != nil {
		return flt
	}

	c.setEflags(newFlags)
	c.loadSegmentReal(SegCS, uint16(csSel))
	c.nextEIP = eip
	c.loadSegmentReal(SegSS, uint16(ssSel))
	c.regs[RegESP] = esp
	c.loadSegmentReal(SegES, uint16(esSel))
	c.loadSegmentReal(SegDS, uint16(dsSel))
	c.loadSegmentReal(SegFS, uint16(fsSel))
	c.loadSegmentReal(SegGS, uint16(gsSel))
	return nil
}

func (c *CPU) iretReal() *Fault {
	eip, flt := c.pop32()
	if flt != nil {
		return flt
	}
	cs, flt := c.pop32()
	if flt != nil {
		return flt
	}
	fl, flt := c.pop32()
	if flt != nil {
		return flt
	}
	c.loadSegmentReal(SegCS, uint16(cs))
	c.nextEIP = eip
	c.setEflags((c.eflags() &^ 0xffff) | (fl & 0xffff))
	return nil
}
