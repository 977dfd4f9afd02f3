/*
corex86 - Far control transfers: CALL/JMP ptr16:32, call gates, task gates

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

// farTransfer implements CALL/JMP ptr16:32 (0x9A/0xEA) and the far forms of
// Group 5 (FF /3, FF /5): a direct transfer to a code descriptor, or an
// indirect transfer through a call gate or a task gate/TSS selector, per the
// protected-mode control-transfer table. Privilege validation is limited to
// the DPL/CPL comparisons that decide whether a stack switch happens;
// conforming-segment nuances and parameter-count copying are not modeled —
// see DESIGN.md.
func (c *CPU) farTransfer(sel uint16, offset uint32, isCall bool) *Fault {
	if c.cr0&CR0PE == 0 || c.vm {
		if isCall {
			if flt := c.push32(uint32(c.seg[SegCS].selector)); flt != nil {
				return flt
			}
			if flt := c.push32(c.nextEIP); flt != nil {
				return flt
			}
		}
		c.loadSegmentReal(SegCS, sel)
		c.nextEIP = offset
		return nil
	}

	if sel&0xfffc == 0 {
		return c.gpFault(0)
	}
	base, _ := c.selectorTable(sel)
	desc := c.readDescriptor(base, uint32(sel>>3))
	if !desc.present {
		return &Fault{Vector: ExNP, HasError: true, ErrorCode: sel & 0xfffc}
	}

	switch {
	case desc.isCodeData():
		if !desc.isCode() {
			return c.gpFault(sel & 0xfffc)
		}
		if isCall {
			if flt := c.push32(uint32(c.seg[SegCS].selector)); flt != nil {
				return flt
			}
			if flt := c.push32(c.nextEIP); flt != nil {
				return flt
			}
		}
		c.loadSegment(SegCS, sel, desc)
		c.seg[SegCS].selector = (sel &^ 3) | uint16(desc.dpl)
		c.nextEIP = offset
		return nil

	case desc.typ == 4 || desc.typ == 12: // 16-/32-bit call gate
		return c.callGateTransfer(base, sel, isCall)

	case desc.typ == 5: // task gate
		gate := c.readGateAt(base, uint32(sel>>3))
		if !c.taskGateSwitch(gate) {
			c.Dump()
			return faultVec(ExGP)
		}
		return nil

	case desc.typ == 9 || desc.typ == 0xb: // TSS selector reached directly
		if !c.taskGateSwitch(gateDescriptor{sel: sel}) {
			c.Dump()
			return faultVec(ExGP)
		}
		return nil
	}
	return c.gpFault(sel & 0xfffc)
}

// callGateTransfer dispatches a far CALL/JMP through a call-gate descriptor
// already known to live at gateBase+((sel>>3)*8). A CALL that lowers CPL
// switches to the target CPL's TSS stack and pushes the caller's SS:ESP
// ahead of the usual CS:EIP return frame, mirroring Interrupt's
// privilegeChange handling.
func (c *CPU) callGateTransfer(gateBase uint32, sel uint16, isCall bool) *Fault {
	gate := c.readGateAt(gateBase, uint32(sel>>3))
	if !gate.present {
		return &Fault{Vector: ExNP, HasError: true, ErrorCode: sel & 0xfffc}
	}

	destBase, _ := c.selectorTable(gate.sel)
	destDesc := c.readDescriptor(destBase, uint32(gate.sel>>3))
	if !destDesc.present {
		return &Fault{Vector: ExNP, HasError: true, ErrorCode: uint16(gate.sel) & 0xfffc}
	}

	oldCPL := c.cpl()
	newCPL := destDesc.dpl

	if isCall && newCPL < oldCPL {
		savedSS := c.seg[SegSS].selector
		savedESP := c.regs[RegESP]
		savedCS := c.seg[SegCS].selector
		savedEIP := c.nextEIP

		tssSS, tssESP := c.tssStackFor(newCPL)
		newSSDesc := c.readDescriptor(c.gdt.base, uint32(tssSS>>3))
		c.loadSegment(SegSS, tssSS, newSSDesc)
		c.regs[RegESP] = tssESP

		c.mustPush32(uint32(savedSS))
		c.mustPush32(savedESP)
		c.loadSegment(SegCS, gate.sel, destDesc)
		c.seg[SegCS].selector = (gate.sel &^ 3) | uint16(newCPL)
		c.nextEIP = gate.offset
		c.mustPush32(uint32(savedCS))
		c.mustPush32(savedEIP)
		return nil
	}

	if isCall {
		if flt := c.push32(uint32(c.seg[SegCS].selector)); flt != nil {
			return flt
		}
		if flt := c.push32(c.nextEIP); flt != nil {
			return flt
		}
	}
	c.loadSegment(SegCS, gate.sel, destDesc)
	c.seg[SegCS].selector = (gate.sel &^ 3) | uint16(oldCPL)
	c.nextEIP = gate.offset
	return nil
}
