package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rh1tech/corex86/device"
	"github.com/rh1tech/corex86/memory"
	"github.com/rh1tech/corex86/mmu"
)

func newTestCPU(t *testing.T) (*CPU, *memory.RAM) {
	t.Helper()
	mem := memory.New(1<<20, device.NullCallbacks{})
	m := mmu.New(mem)
	c := New(mem, m, device.NullCallbacks{}, Config{})
	return c, mem
}

func loadCode(mem *memory.RAM, addr uint32, code []byte) {
	mem.StoreBytes(addr, code)
}

func TestResetStateMatchesPowerUpVector(t *testing.T) {
	c, _ := newTestCPU(t)
	assert.Equal(t, uint16(0xf000), c.seg[SegCS].selector)
	assert.Equal(t, uint32(0xffff0000), c.seg[SegCS].base)
	assert.Equal(t, uint32(0xfff0), c.eip)
	assert.False(t, c.halted)
}

func TestMovAddAndFlags(t *testing.T) {
	c, mem := newTestCPU(t)
	c.seg[SegCS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.eip = 0
	c.nextEIP = 0

	// mov eax, 0x7fffffff ; add eax, 1 -> overflow, sign set.
	code := []byte{0xb8, 0xff, 0xff, 0xff, 0x7f, 0x05, 0x01, 0x00, 0x00, 0x00}
	loadCode(mem, 0, code)

	require.True(t, c.Step())
	assert.Equal(t, uint32(0x7fffffff), c.regs[RegEAX])

	require.True(t, c.Step())
	assert.Equal(t, uint32(0x80000000), c.regs[RegEAX])
	assert.True(t, c.eflags()&FlagOF != 0)
	assert.True(t, c.eflags()&FlagSF != 0)
}

func TestPushPopRoundTrip(t *testing.T) {
	c, mem := newTestCPU(t)
	c.seg[SegCS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.seg[SegSS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.eip = 0
	c.nextEIP = 0
	c.regs[RegESP] = 0x10000
	c.regs[RegEAX] = 0xdeadbeef

	// push eax ; pop ecx
	code := []byte{0x50, 0x59}
	loadCode(mem, 0, code)

	require.True(t, c.Step())
	require.True(t, c.Step())
	assert.Equal(t, uint32(0xdeadbeef), c.regs[RegECX])
	assert.Equal(t, uint32(0x10000), c.regs[RegESP])
}

func TestJccShortTaken(t *testing.T) {
	c, mem := newTestCPU(t)
	c.seg[SegCS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.eip = 0
	c.nextEIP = 0

	// cmp eax, eax (always equal) ; je +5
	code := []byte{0x39, 0xc0, 0x74, 0x05}
	loadCode(mem, 0, code)

	require.True(t, c.Step())
	require.True(t, c.Step())
	assert.Equal(t, uint32(4+5), c.nextEIP)
}

func TestInt3RaisesBreakpointThroughRealModeIVT(t *testing.T) {
	c, mem := newTestCPU(t)
	c.seg[SegCS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.seg[SegSS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.eip = 0x100
	c.nextEIP = 0x100
	c.regs[RegESP] = 0x2000

	// IVT entry for vector 3 points at 0x200.
	mem.Store32(uint32(ExBP)*4, 0x00000200)
	mem.Store8(0x100, 0xcc) // INT3

	require.True(t, c.Step())
	assert.Equal(t, uint32(0x200), c.nextEIP)
}

func TestHaltStopsStepping(t *testing.T) {
	c, mem := newTestCPU(t)
	c.seg[SegCS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.eip = 0
	c.nextEIP = 0
	mem.Store8(0, 0xf4) // HLT

	require.True(t, c.Step())
	assert.True(t, c.halted)
	require.True(t, c.Step()) // Step on a halted CPU is a no-op, not a fault.
}

// TestSelfModifyingCodeInvalidatesInstructionCache writes a new opcode byte
// directly ahead of EIP and checks the fetch path picks up the modified byte.
// The one-slot fetch cache holds only the page's linear-to-physical
// translation and every opcode byte is read from memory, so the write is seen
// whether or not the write observer (invalidateIfetch in cpu.go) has dropped
// the cached translation.
func TestSelfModifyingCodeInvalidatesInstructionCache(t *testing.T) {
	c, mem := newTestCPU(t)
	c.seg[SegCS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.seg[SegDS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.eip = 0
	c.nextEIP = 0

	// mov byte [7], 0xf4 (HLT)           -- offsets 0..6
	// <placeholder opcode, overwritten>  -- offset 7
	code := []byte{0xc6, 0x05, 0x07, 0x00, 0x00, 0x00, 0xf4, 0x90}
	loadCode(mem, 0, code)

	require.True(t, c.Step()) // runs the MOV, rewriting offset 7 from NOP to HLT
	assert.Equal(t, uint8(0xf4), mem.Load8(7))
	assert.False(t, c.halted)

	require.True(t, c.Step()) // must fetch the freshly written HLT, not the old NOP
	assert.True(t, c.halted)
	assert.Equal(t, uint32(8), c.nextEIP)
}

func TestUndefinedOpcodeFaultsUD(t *testing.T) {
	c, mem := newTestCPU(t)
	c.seg[SegCS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.seg[SegSS] = segment{selector: 0, base: 0, limit: 0xffffffff, present: true}
	c.eip = 0
	c.nextEIP = 0
	c.regs[RegESP] = 0x2000
	mem.Store32(uint32(ExUD)*4, 0x00000300)
	mem.Store8(0, 0x0f)
	mem.Store8(1, 0xff) // not a recognized 0F opcode

	require.True(t, c.Step())
	assert.Equal(t, uint32(0x300), c.nextEIP)
}
