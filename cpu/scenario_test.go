package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rh1tech/corex86/memory"
)

// putDescriptor writes one raw 8-byte GDT/LDT entry at tblBase+index*8, the
// inverse of decodeDescriptor in segment.go. limit is the raw
// (pre-granularity) 20-bit field; with gran set, decodeDescriptor expands it
// to (limit<<12)|0xfff on read-back, the same as real hardware.
func putDescriptor(mem *memory.RAM, tblBase uint32, index uint32, base, limit uint32, typ, dpl uint8, system, present, dBit, gran bool) {
	addr := tblBase + index*8
	w0 := (limit & 0xffff) | (base&0xffff)<<16
	w1 := ((base >> 16) & 0xff) | uint32(typ&0xf)<<8 | uint32(dpl&3)<<13 | ((limit>>16)&0xf)<<16 | ((base>>24)&0xff)<<24
	if system {
		w1 |= 1 << 12
	}
	if present {
		w1 |= 1 << 15
	}
	if dBit {
		w1 |= 1 << 22
	}
	if gran {
		w1 |= 1 << 23
	}
	mem.Store32(addr, w0)
	mem.Store32(addr+4, w1)
}

// putGate writes one raw 8-byte gate entry (IDT interrupt/trap/task gate, or
// a GDT task-gate/call-gate descriptor — same 8-byte shape), the inverse of
// decodeGate in interrupt.go.
func putGate(mem *memory.RAM, tblBase uint32, index uint32, sel uint16, offset uint32, typ, dpl uint8, present bool) {
	addr := tblBase + index*8
	w0 := uint32(sel) | (offset&0xffff)<<16
	w1 := (offset & 0xffff0000) | uint32(typ&0x1f)<<8 | uint32(dpl&3)<<13
	if present {
		w1 |= 1 << 15
	}
	mem.Store32(addr, w0)
	mem.Store32(addr+4, w1)
}

// TestProtectedModeInterruptStackSwitch exercises spec.md's protected-mode
// INT scenario: a CPL-3 task takes a software interrupt through a DPL-3
// 32-bit interrupt gate into a CPL-0 handler, with SS:ESP switched to the
// TSS's SS0:ESP0 and the user SS/ESP/EFLAGS/CS/EIP frame pushed onto the new
// kernel stack.
func TestProtectedModeInterruptStackSwitch(t *testing.T) {
	c, mem := newTestCPU(t)

	const (
		gdtBase  = 0x00001000
		idtBase  = 0x00002000
		tssBase  = 0x00003000
		kernCode = 0x00005000
		userCode = 0x00004000
		kernSS0  = 0x00009000
		userESP0 = 0x00008000
	)

	// GDT: 1=kernel code, 2=kernel data/stack, 3=user code, 4=user data/stack.
	putDescriptor(mem, gdtBase, 1, 0, 0xfffff, 0xa, 0, true, true, true, true)
	putDescriptor(mem, gdtBase, 2, 0, 0xfffff, 0x2, 0, true, true, true, true)
	putDescriptor(mem, gdtBase, 3, 0, 0xfffff, 0xa, 3, true, true, true, true)
	putDescriptor(mem, gdtBase, 4, 0, 0xfffff, 0x2, 3, true, true, true, true)

	// IDT[0x80]: 32-bit interrupt gate into kernel code, callable from CPL 3.
	putGate(mem, idtBase, 0x80, 0x08, kernCode, 14, 3, true)

	// TSS: ESP0 at offset 4, SS0 at offset 8 (static 32-bit TSS layout).
	mem.Store32(tssBase+4, kernSS0)
	mem.Store32(tssBase+8, 0x10)

	c.gdt = dtr{base: gdtBase, limit: 0xffff}
	c.idt = dtr{base: idtBase, limit: 0xffff}
	c.tr = segment{selector: 0x28, base: tssBase, limit: 103, present: true}
	c.cr0 |= CR0PE
	c.setEflags(FlagIF)

	c.seg[SegCS] = segment{selector: 0x1b, base: 0, limit: 0xffffffff, dpl: 3, present: true, dBit: true}
	c.seg[SegSS] = segment{selector: 0x23, base: 0, limit: 0xffffffff, dpl: 3, present: true, dBit: true}
	c.regs[RegESP] = userESP0
	c.eip = userCode
	c.nextEIP = userCode

	mem.StoreBytes(userCode, []byte{0xcd, 0x80}) // int 0x80

	require.True(t, c.Step())

	assert.Equal(t, uint16(0x08), c.seg[SegCS].selector)
	assert.Equal(t, uint8(0), c.cpl())
	assert.Equal(t, uint32(kernCode), c.nextEIP)
	assert.Equal(t, uint16(0x10), c.seg[SegSS].selector)
	assert.Equal(t, uint32(kernSS0)-20, c.regs[RegESP])
	assert.False(t, c.eflags()&FlagIF != 0, "IF must be cleared delivering through a non-trap gate")

	sp := c.regs[RegESP]
	assert.Equal(t, uint32(userCode)+2, mem.Load32(sp+0), "pushed return EIP")
	assert.Equal(t, uint32(0x1b), mem.Load32(sp+4), "pushed return CS")
	assert.Equal(t, uint32(userESP0), mem.Load32(sp+12), "pushed user ESP")
	assert.Equal(t, uint32(0x23), mem.Load32(sp+16), "pushed user SS")
}

// TestTaskGateJumpSwitchesTask exercises spec.md's task-switch scenario: a
// far JMP through a GDT task gate saves the running task's state into its
// TSS and loads CR3/EIP/registers from the target TSS, flushing the TLB on
// the CR3 change (mmu.Flush, called unconditionally by taskGateSwitch).
func TestTaskGateJumpSwitchesTask(t *testing.T) {
	c, mem := newTestCPU(t)

	const (
		gdtBase = 0x00001000
		oldTSS  = 0x00002000
		newTSS  = 0x00003000
		newEIP  = 0x00006000
		newCR3  = 0x00010000
		oldCode = 0x00004000
	)

	// GDT: 1=task gate naming TSS selector 0x10, 2=the target (available) TSS
	// descriptor, 3=the outgoing task's own (busy) TSS descriptor.
	putGate(mem, gdtBase, 1, 0x10, 0, 5, 0, true)
	putDescriptor(mem, gdtBase, 2, newTSS, 103, 0x9, 0, false, true, false, false)
	putDescriptor(mem, gdtBase, 3, oldTSS, 103, 0xb, 0, false, true, false, false)

	mem.Store32(newTSS+tssCR3, newCR3)
	mem.Store32(newTSS+tssEIP, newEIP)
	mem.Store32(newTSS+tssEAX, 0xdeadbeef)

	c.gdt = dtr{base: gdtBase, limit: 0xffff}
	c.tr = segment{selector: 0x18, base: oldTSS, limit: 103, present: true}
	c.cr0 |= CR0PE
	c.seg[SegCS] = segment{selector: 0x08, base: 0, limit: 0xffffffff, dpl: 0, present: true, dBit: true}
	c.regs[RegEAX] = 0x11111111
	c.regs[RegESP] = 0x7000
	c.eip = oldCode
	c.nextEIP = oldCode

	// jmp far 0x08:0 (offset is irrelevant once the target resolves to a
	// task gate — taskGateSwitch takes EIP from the new TSS instead).
	mem.StoreBytes(oldCode, []byte{0xea, 0x00, 0x00, 0x00, 0x00, 0x08, 0x00})

	require.True(t, c.Step())

	assert.Equal(t, uint32(newEIP), c.nextEIP)
	assert.Equal(t, uint32(newCR3), c.cr3)
	assert.Equal(t, uint32(0xdeadbeef), c.regs[RegEAX])
	assert.Equal(t, uint32(newTSS), c.tr.base, "TR now names the incoming TSS")
	assert.NotZero(t, c.cr0&CR0TS, "CR0.TS must be set on a completed task switch")

	oldDesc := c.readDescriptor(gdtBase, 3)
	assert.Equal(t, uint8(0x9), oldDesc.typ, "busy bit cleared on the outgoing TSS descriptor")
	newDesc := c.readDescriptor(gdtBase, 2)
	assert.Equal(t, uint8(0xb), newDesc.typ, "busy bit set on the incoming TSS descriptor")

	// The outgoing task's EIP/EAX were saved into its own TSS before the
	// switch, so a later switch back would resume exactly where this left.
	assert.Equal(t, uint32(oldCode), mem.Load32(oldTSS+tssEIP))
	assert.Equal(t, uint32(0x11111111), mem.Load32(oldTSS+tssEAX))
}
