/*
corex86 - Two-byte (0F-escape) opcode dispatch

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

// dispatch0F handles the 0F-prefixed opcode map: near Jcc/SETcc, the system
// instruction groups (0F 00 descriptor-table loads/stores, 0F 01 GDTR/IDTR/
// CR0 access plus INVLPG, 0F BA bit-test group, 0F C7 CMPXCHG8B), MOV
// to/from control/debug registers, RDMSR/WRMSR, and SYSENTER/SYSEXIT — the
// privileged surface a protected-mode kernel needs for segmentation, paging,
// and fast syscalls.
func (c *CPU) dispatch0F(ds *decodeState) *Fault {
	op, flt := c.fetchByte()
	if flt != nil {
		return flt
	}

	switch {
	case op >= 0x80 && op <= 0x8f:
		rel, flt := c.fetchWord32()
		if flt != nil {
			return flt
		}
		if c.testCond(op - 0x80) {
			c.nextEIP += rel
		}
		return nil
	case op >= 0x90 && op <= 0x9f: // SETcc r/m8
		m, flt := c.decodeModRM(ds, SegDS)
		if flt != nil {
			return flt
		}
		v := uint8(0)
		if c.testCond(op - 0x90) {
			v = 1
		}
		return c.writeRM8(m, v)
	}

	switch op {
	case 0x00:
		return c.dispatchGroup6(ds)
	case 0x01:
		return c.dispatchGroup7(ds)
	case 0x06: // CLTS
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		c.cr0 &^= CR0TS
		return nil
	case 0x09: // WBINVD
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		return nil
	case 0x20: // MOV r32, CRn
		b, flt := c.fetchByte()
		if flt != nil {
			return flt
		}
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		crn := (b >> 3) & 7
		rm := int(b & 7)
		c.regs[rm] = c.readCR(crn)
		return nil
	case 0x21: // MOV r32, DRn
		b, flt := c.fetchByte()
		if flt != nil {
			return flt
		}
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		drn := (b >> 3) & 7
		rm := int(b & 7)
		c.regs[rm] = c.dr[drn]
		return nil
	case 0x22: // MOV CRn, r32
		b, flt := c.fetchByte()
		if flt != nil {
			return flt
		}
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		crn := (b >> 3) & 7
		rm := int(b & 7)
		c.writeCR(crn, c.regs[rm])
		return nil
	case 0x23: // MOV DRn, r32
		b, flt := c.fetchByte()
		if flt != nil {
			return flt
		}
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		drn := (b >> 3) & 7
		rm := int(b & 7)
		c.dr[drn] = c.regs[rm]
		return nil
	case 0x30: // WRMSR
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		idx := c.regs[RegECX]
		if !isKnownMSR(idx) {
			return c.gpFault(0)
		}
		c.msr[idx] = uint64(c.regs[RegEDX])<<32 | uint64(c.regs[RegEAX])
		return nil
	case 0x32: // RDMSR
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		idx := c.regs[RegECX]
		if !isKnownMSR(idx) {
			return c.gpFault(0)
		}
		v := c.msr[idx]
		c.regs[RegEAX] = uint32(v)
		c.regs[RegEDX] = uint32(v >> 32)
		return nil
	case 0x34: // SYSENTER
		return c.sysenter()
	case 0x35: // SYSEXIT
		return c.sysexit()
	case 0xba:
		return c.dispatchGroup8(ds)
	case 0xc7:
		return c.dispatchGroup9(ds)
	}
	return faultVec(ExUD)
}

func (c *CPU) readCR(n uint8) uint32 {
	switch n {
	case 0:
		return c.cr0
	case 2:
		return c.cr2
	case 3:
		return c.cr3
	default:
		return 0
	}
}

func (c *CPU) writeCR(n uint8, v uint32) {
	switch n {
	case 0:
		c.cr0 = v
	case 2:
		c.cr2 = v
	case 3:
		c.cr3 = v
		c.mmu.Flush()
	}
}

// selectorOperand16 reads the 16-bit selector operand of an instruction like
// LLDT/LTR/VERR/VERW: from a GPR's low 16 bits in register form, from memory
// otherwise.
func (c *CPU) selectorOperand16(m modrm) (uint16, *Fault) {
	if m.isReg {
		return uint16(c.regs[m.rmReg]), nil
	}
	var buf [2]byte
	if flt := c.readLinear(m.linAddr, buf[:]); flt != nil {
		return 0, flt
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// writeSelectorOperand16 stores a 16-bit selector-shaped result: the low 16
// bits of a GPR in register form (zero-extended, so the upper 16 bits of
// the GPR are cleared), or a halfword in memory form.
func (c *CPU) writeSelectorOperand16(m modrm, v uint16) *Fault {
	if m.isReg {
		c.regs[m.rmReg] = uint32(v)
		return nil
	}
	var buf [2]byte
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	return c.writeLinear(m.linAddr, buf[:])
}

// dispatchGroup6 implements the 0F 00 group: SLDT/STR/LLDT/LTR/VERR/VERW.
func (c *CPU) dispatchGroup6(ds *decodeState) *Fault {
	m, flt := c.decodeModRM(ds, SegDS)
	if flt != nil {
		return flt
	}
	switch m.reg {
	case 0: // SLDT
		return c.writeSelectorOperand16(m, c.ldt.selector)
	case 1: // STR
		return c.writeSelectorOperand16(m, c.tr.selector)
	case 2: // LLDT
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		sel, flt := c.selectorOperand16(m)
		if flt != nil {
			return flt
		}
		d := c.readDescriptor(c.gdt.base, uint32(sel>>3))
		c.ldt = segment{selector: sel, base: d.base, limit: d.limit, present: d.present}
		return nil
	case 3: // LTR
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		sel, flt := c.selectorOperand16(m)
		if flt != nil {
			return flt
		}
		d := c.readDescriptor(c.gdt.base, uint32(sel>>3))
		c.tr = segment{selector: sel, base: d.base, limit: d.limit, present: d.present}
		return nil
	case 4, 5: // VERR, VERW
		sel, flt := c.selectorOperand16(m)
		if flt != nil {
			return flt
		}
		c.setZF(c.verifyAccess(sel, m.reg == 5))
		return nil
	}
	return faultVec(ExUD)
}

// verifyAccess implements VERR (wantWrite false)/VERW (wantWrite true): ZF
// is set when sel names a present, correctly typed segment the current
// privilege level may access at that access kind.
func (c *CPU) verifyAccess(sel uint16, wantWrite bool) bool {
	if sel&0xfffc == 0 {
		return false
	}
	base, _ := c.selectorTable(sel)
	d := c.readDescriptor(base, uint32(sel>>3))
	if !d.present || !d.isCodeData() {
		return false
	}
	if d.isCode() {
		if wantWrite {
			return false
		}
		if !d.conforming() {
			rpl := uint8(sel & 3)
			if c.cpl() > d.dpl || rpl > d.dpl {
				return false
			}
		}
		return d.typ&0x2 != 0 // readable code
	}
	if wantWrite && d.typ&0x2 == 0 {
		return false
	}
	rpl := uint8(sel & 3)
	return c.cpl() <= d.dpl && rpl <= d.dpl
}

// dispatchGroup7 implements the 0F 01 group: SGDT/SIDT/LGDT/LIDT (memory),
// SMSW/LMSW (register or memory), and INVLPG (memory only).
func (c *CPU) dispatchGroup7(ds *decodeState) *Fault {
	m, flt := c.decodeModRM(ds, SegDS)
	if flt != nil {
		return flt
	}

	switch m.reg {
	case 4: // SMSW
		return c.writeSelectorOperand16(m, uint16(c.cr0))
	case 6: // LMSW
		v, flt := c.selectorOperand16(m)
		if flt != nil {
			return flt
		}
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		// LMSW can set PE but never clear it.
		c.cr0 = (c.cr0 &^ 0xf) | uint32(v)&0xf | c.cr0&CR0PE
		return nil
	}

	if m.isReg {
		return faultVec(ExUD)
	}

	switch m.reg {
	case 0: // SGDT
		c.mem.Store16(m.linAddr, c.gdt.limit)
		c.mem.Store32(m.linAddr+2, c.gdt.base)
		return nil
	case 1: // SIDT
		c.mem.Store16(m.linAddr, c.idt.limit)
		c.mem.Store32(m.linAddr+2, c.idt.base)
		return nil
	case 2: // LGDT
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		c.gdt.limit = c.mem.Load16(m.linAddr)
		c.gdt.base = c.mem.Load32(m.linAddr + 2)
		return nil
	case 3: // LIDT
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		c.idt.limit = c.mem.Load16(m.linAddr)
		c.idt.base = c.mem.Load32(m.linAddr + 2)
		return nil
	case 7: // INVLPG
		if c.cpl() != 0 {
			return c.gpFault(0)
		}
		c.mmu.InvalidatePage(m.linAddr)
		return nil
	}
	return faultVec(ExUD)
}

// dispatchGroup8 implements 0F BA: BT/BTS/BTR/BTC r/m32, imm8.
func (c *CPU) dispatchGroup8(ds *decodeState) *Fault {
	m, flt := c.decodeModRM(ds, SegDS)
	if flt != nil {
		return flt
	}
	if m.reg < 4 {
		return faultVec(ExUD)
	}
	imm, flt := c.fetchByte()
	if flt != nil {
		return flt
	}
	bit := imm & 0x1f

	dst, flt := c.readRM32(ds, m)
	if flt != nil {
		return flt
	}
	c.setCF(dst>>bit&1 != 0)
	switch m.reg {
	case 5: // BTS
		return c.writeRM32(m, dst|1<<bit)
	case 6: // BTR
		return c.writeRM32(m, dst&^(1<<bit))
	case 7: // BTC
		return c.writeRM32(m, dst^1<<bit)
	default: // BT, reg==4
		return nil
	}
}

// dispatchGroup9 implements 0F C7 /1: CMPXCHG8B m64.
func (c *CPU) dispatchGroup9(ds *decodeState) *Fault {
	m, flt := c.decodeModRM(ds, SegDS)
	if flt != nil {
		return flt
	}
	if m.isReg || m.reg != 1 {
		return faultVec(ExUD)
	}

	var buf [8]byte
	if flt := c.readLinear(m.linAddr, buf[:]); flt != nil {
		return flt
	}
	cur := leUint64(buf[:])
	want := uint64(c.regs[RegEDX])<<32 | uint64(c.regs[RegEAX])
	if cur == want {
		repl := uint64(c.regs[RegECX])<<32 | uint64(c.regs[RegEBX])
		putLE64(buf[:], repl)
		if flt := c.writeLinear(m.linAddr, buf[:]); flt != nil {
			return flt
		}
		c.setZF(true)
		return nil
	}
	c.regs[RegEDX] = uint32(cur >> 32)
	c.regs[RegEAX] = uint32(cur)
	c.setZF(false)
	return nil
}

// MSR indices this core recognizes: only the three SYSENTER/SYSEXIT MSRs.
// RDMSR/WRMSR on any other index is a #GP, the real hardware behavior for
// an unimplemented MSR.
const (
	msrSysenterCS  = 0x174
	msrSysenterESP = 0x175
	msrSysenterEIP = 0x176
)

func isKnownMSR(idx uint32) bool {
	return idx == msrSysenterCS || idx == msrSysenterESP || idx == msrSysenterEIP
}

// sysenter implements the fast-syscall entry: load CS/EIP/SS/ESP from the
// SYSENTER MSRs with an implicit flat, DPL-0 descriptor shape. EFLAGS is
// left untouched, matching the documented instruction behavior.
func (c *CPU) sysenter() *Fault {
	if c.cr0&CR0PE == 0 {
		return faultVec(ExGP)
	}
	csSel := uint16(c.msr[msrSysenterCS])
	if csSel&0xfffc == 0 {
		return c.gpFault(0)
	}
	c.seg[SegCS] = segment{selector: csSel &^ 3, base: 0, limit: 0xffffffff, dBit: true, dpl: 0, present: true}
	c.seg[SegSS] = segment{selector: (csSel + 8) &^ 3, base: 0, limit: 0xffffffff, dBit: true, dpl: 0, present: true}
	c.regs[RegESP] = uint32(c.msr[msrSysenterESP])
	c.nextEIP = uint32(c.msr[msrSysenterEIP])
	return nil
}

// sysexit implements the fast-syscall return: only valid at CPL 0, it loads
// CS/SS from SYSENTER_CS+16/+24 with RPL 3 and EIP/ESP from EDX/ECX.
func (c *CPU) sysexit() *Fault {
	if c.cpl() != 0 {
		return c.gpFault(0)
	}
	csSel := uint16(c.msr[msrSysenterCS])
	if csSel&0xfffc == 0 {
		return c.gpFault(0)
	}
	c.seg[SegCS] = segment{selector: (csSel + 16) | 3, base: 0, limit: 0xffffffff, dBit: true, dpl: 3, present: true}
	c.seg[SegSS] = segment{selector: (csSel + 24) | 3, base: 0, limit: 0xffffffff, dBit: true, dpl: 3, present: true}
	c.nextEIP = c.regs[RegEDX]
	c.regs[RegESP] = c.regs[RegECX]
	return nil
}
