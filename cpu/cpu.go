/*
corex86 - CPU state, construction and the fetch/decode/execute step

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

// Package cpu implements the i386/i486-class execution engine: register
// file, lazy EFLAGS, ModR/M decode and instruction execution, and exception/
// interrupt/task-switch delivery. It never panics on an architectural fault
// — every fallible operation returns a *Fault, the way the teacher's cpu.go
// signals channel faults with a plain boolean return.
package cpu

import (
	"log/slog"

	"github.com/rh1tech/corex86/device"
	"github.com/rh1tech/corex86/memory"
	"github.com/rh1tech/corex86/mmu"
)

// Fault is the single currency for architectural exceptions: the core
// unwinds on it and dispatches through the IDT via CPU.Interrupt.
type Fault struct {
	Vector    uint8
	HasError  bool
	ErrorCode uint16
	CR2       uint32
}

func (f *Fault) Error() string {
	return "cpu fault"
}

func faultVec(vec uint8) *Fault { return &Fault{Vector: vec} }

func (c *CPU) gpFault(errorCode uint16) *Fault {
	return &Fault{Vector: ExGP, HasError: true, ErrorCode: errorCode}
}

// ioplFault returns a #GP when the current privilege level is below the
// flags' I/O privilege level, the gate CLI/STI/IN/OUT share. Real
// mode has no IOPL to enforce.
func (c *CPU) ioplFault() *Fault {
	if c.cr0&CR0PE == 0 {
		return nil
	}
	iopl := uint8((c.eflags() & FlagIOPL) >> 12)
	if c.cpl() > iopl {
		return c.gpFault(0)
	}
	return nil
}

// Config gates optional execution units and behaviors.
type Config struct {
	FPU bool // whether an x87 coprocessor is present
}

// DebugMask holds the debug category bitmask accumulated from the "debug"
// config-file option (config/debugconfig), consulted by New as the default
// for every CPU constructed afterward — the same config-before-construction
// ordering the teacher relies on for its own -d flag.
var DebugMask int

// CPU is one owned, independently instantiable processor core: no
// process-wide globals, so more than one Machine can exist in a test or a
// multi-instance host.
type CPU struct {
	mem *memory.RAM
	mmu *mmu.MMU
	io  device.Callbacks

	regs [8]uint32
	seg  [8]segment
	gdt  dtr
	idt  dtr
	ldt  segment
	tr   segment

	eip     uint32
	nextEIP uint32
	flags   uint32
	cc      ccState

	cr0, cr2, cr3 uint32
	dr            [8]uint32
	msr           map[uint32]uint64

	halted    bool
	vm        bool // V8086 mode (mirrors flags&FlagVM but cached for speed)
	stiShadow bool // suppresses interrupt recognition for the instruction after STI

	fpu fpuState

	ifetch struct {
		valid bool
		page  uint32
		phys  uint32
	}

	cfg       Config
	debugMask int
}

// New creates a CPU wired to the given physical memory, MMU, and I/O
// callback table, then resets it.
func New(mem *memory.RAM, mmuUnit *mmu.MMU, io device.Callbacks, cfg Config) *CPU {
	if io == nil {
		io = device.NullCallbacks{}
	}
	c := &CPU{mem: mem, mmu: mmuUnit, io: io, cfg: cfg, debugMask: DebugMask, msr: make(map[uint32]uint64)}
	mem.SetWriteObserver(c.invalidateIfetch)
	c.Reset()
	return c
}

// Reset places the CPU in its power-up state: real mode, CS base
// 0xFFFF0000 selector 0xF000, EIP 0xFFF0 (the standard reset vector).
func (c *CPU) Reset() {
	c.regs = [8]uint32{}
	c.flags = 0x2
	c.cc = ccState{mask: 0xffffffff}
	c.cr0 = 0
	c.cr2 = 0
	c.cr3 = 0
	c.halted = false
	c.vm = false
	c.stiShadow = false
	c.dr = [8]uint32{}
	c.gdt = dtr{}
	c.idt = dtr{limit: 0x3ff}
	c.ldt = segment{}
	c.tr = segment{}

	c.seg[SegCS] = segment{selector: 0xf000, base: 0xffff0000, limit: 0xffff, present: true}
	for _, s := range []int{SegDS, SegES, SegSS, SegFS, SegGS} {
		c.seg[s] = segment{selector: 0, base: 0, limit: 0xffff, present: true}
	}
	c.eip = 0xfff0
	c.nextEIP = c.eip
	c.ifetch.valid = false
	c.fpu.reset()
}

// Debug returns whether every bit in mask is set in the configured debug
// category selection.
func (c *CPU) Debug(mask int) bool { return c.debugMask&mask == mask }

// SetDebug configures this CPU's debug category bitmask.
func (c *CPU) SetDebug(mask int) { c.debugMask = mask }

// cpl returns the current privilege level: 3 inside V8086 mode, else the
// RPL bits of the CS selector while protected mode is enabled, else 0.
func (c *CPU) cpl() uint8 {
	if c.vm {
		return 3
	}
	if c.cr0&CR0PE == 0 {
		return 0
	}
	return uint8(c.seg[SegCS].selector & 3)
}

func (c *CPU) pagingEnabled() bool { return c.cr0&CR0PG != 0 }

func (c *CPU) invalidateIfetch(phys uint32) {
	if c.ifetch.valid && c.ifetch.phys&^0xfff == phys {
		c.ifetch.valid = false
	}
}

// translateAndFault resolves a linear address for the given access kind,
// converting an MMU page fault into a CPU Fault with CR2 set.
func (c *CPU) translateAndFault(laddr, size uint32, write bool) (mmu.PhysRange, *Fault) {
	acc := mmu.Access{Write: write, User: c.cpl() == 3}
	opts := mmu.TranslateOpts{PagingEnabled: c.pagingEnabled(), WriteProtect: c.cr0&CR0WP != 0, CR3: c.cr3}
	r, flt := c.mmu.Translate(opts, laddr, size, acc)
	if flt != nil {
		c.cr2 = flt.Addr
		return r, &Fault{Vector: ExPF, HasError: true, ErrorCode: uint16(flt.ErrorCode), CR2: flt.Addr}
	}
	return r, nil
}

// readLinear8/16/32 read size bytes at a linear address, stitching together
// a two-range MMU result when the reference straddles a page boundary.
func (c *CPU) readLinear(laddr uint32, buf []byte) *Fault {
	r, flt := c.translateAndFault(laddr, uint32(len(buf)), false)
	if flt != nil {
		return flt
	}
	if r.N == 1 {
		c.mem.LoadBytes(r.Addr[0], buf)
		return nil
	}
	c.mem.LoadBytes(r.Addr[0], buf[:r.Len[0]])
	c.mem.LoadBytes(r.Addr[1], buf[r.Len[0]:])
	return nil
}

func (c *CPU) writeLinear(laddr uint32, buf []byte) *Fault {
	r, flt := c.translateAndFault(laddr, uint32(len(buf)), true)
	if flt != nil {
		return flt
	}
	if r.N == 1 {
		c.mem.StoreBytes(r.Addr[0], buf)
		return nil
	}
	c.mem.StoreBytes(r.Addr[0], buf[:r.Len[0]])
	c.mem.StoreBytes(r.Addr[1], buf[r.Len[0]:])
	return nil
}

// fetchByte reads one instruction byte at CS:nextEIP, through the one-slot
// instruction fetch cache.
func (c *CPU) fetchByte() (uint8, *Fault) {
	laddr := c.seg[SegCS].base + c.nextEIP
	page := laddr &^ 0xfff
	if !c.ifetch.valid || c.ifetch.page != page {
		r, flt := c.translateAndFault(page, 1, false)
		if flt != nil {
			return 0, flt
		}
		c.ifetch.valid = true
		c.ifetch.page = page
		c.ifetch.phys = r.Addr[0] &^ 0xfff
	}
	b := c.mem.Load8(c.ifetch.phys | (laddr & 0xfff))
	c.nextEIP++
	return b, nil
}

func (c *CPU) fetchWord16() (uint16, *Fault) {
	lo, flt := c.fetchByte()
	if flt != nil {
		return 0, flt
	}
	hi, flt := c.fetchByte()
	if flt != nil {
		return 0, flt
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (c *CPU) fetchWord32() (uint32, *Fault) {
	lo, flt := c.fetchWord16()
	if flt != nil {
		return 0, flt
	}
	hi, flt := c.fetchWord16()
	if flt != nil {
		return 0, flt
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// Step fetches, decodes and executes exactly one instruction, delivering any
// architectural fault through the IDT before returning. It returns false
// only when the CPU hit an unrecoverable internal error (already logged and
// dumped) rather than an architectural fault.
func (c *CPU) Step() bool {
	if c.halted {
		return true
	}

	c.stiShadow = false // the STI shadow covers only the step that ran STI
	c.eip = c.nextEIP
	flt := c.execOne()
	if flt != nil {
		c.nextEIP = c.eip // rewind past any partially-fetched bytes
		if !c.Interrupt(flt.Vector, true, flt.HasError, flt.ErrorCode) {
			c.Dump()
			return false
		}
	}
	return true
}

// Dump logs the full visible register state at Error level, used on an
// unrecoverable internal invariant failure.
func (c *CPU) Dump() {
	slog.Error("cpu: unrecoverable fault",
		slog.Uint64("eip", uint64(c.eip)),
		slog.Uint64("eflags", uint64(c.flags)),
		slog.Uint64("cs", uint64(c.seg[SegCS].selector)),
		slog.Uint64("cr0", uint64(c.cr0)),
		slog.Uint64("cr2", uint64(c.cr2)),
		slog.Uint64("cr3", uint64(c.cr3)),
	)
}

// RaiseIRQ delivers a maskable interrupt if IF is set and no STI shadow is
// active, and returns false otherwise. It is called from the PIC's raise
// callback after the PIC has already acknowledged vector, so a vector that
// is refused here is not kept pending. STI's one-instruction delivery delay
// is modeled with the shadow: STI sets it, a refusal here clears it, and
// Step clears it before running the next instruction.
func (c *CPU) RaiseIRQ(vector uint8) bool {
	if c.stiShadow {
		c.stiShadow = false
		return false
	}
	if c.flags&FlagIF == 0 {
		return false
	}
	c.halted = false
	return c.Interrupt(vector, false, false, 0)
}
