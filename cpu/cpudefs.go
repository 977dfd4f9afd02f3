/*
corex86 - Register file, segment cache and shared constants

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

// General register indices, REGi(x) in the reference interpreter.
const (
	RegEAX = iota
	RegECX
	RegEDX
	RegEBX
	RegESP
	RegEBP
	RegESI
	RegEDI
)

// Segment register indices, SEGi(x) in the reference interpreter.
const (
	SegES = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
	SegLDT
	SegTR
)

// EFLAGS bit positions.
const (
	FlagCF = 0x00000001
	FlagPF = 0x00000004
	FlagAF = 0x00000010
	FlagZF = 0x00000040
	FlagSF = 0x00000080
	FlagTF = 0x00000100
	FlagIF = 0x00000200
	FlagDF = 0x00000400
	FlagOF = 0x00000800
	FlagIOPL = 0x00003000
	FlagNT = 0x00004000
	FlagRF = 0x00010000
	FlagVM = 0x00020000

	flagsMask = FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF
)

// Exception vectors.
const (
	ExDE = 0x00 // Divide error
	ExDB = 0x01 // Debug
	ExNMI = 0x02
	ExBP = 0x03 // Breakpoint
	ExOF = 0x04 // Overflow
	ExBR = 0x05 // BOUND range exceeded
	ExUD = 0x06 // Invalid opcode
	ExNM = 0x07 // Device not available (x87)
	ExDF = 0x08 // Double fault
	ExTS = 0x0A // Invalid TSS
	ExNP = 0x0B // Segment not present
	ExSS = 0x0C // Stack-segment fault
	ExGP = 0x0D // General protection
	ExPF = 0x0E // Page fault
	ExMF = 0x10 // x87 FPU error
)

// Control register bits used by the MMU/segment logic.
const (
	CR0PE = 1 << 0
	CR0TS = 1 << 3
	CR0EM = 1 << 2
	CR0WP = 1 << 16
	CR0PG = 1 << 31
)

// Debug category bitmask, selected by the "debug" config option (one of
// CMD, INST, DATA, DETAIL, IO, IRQ per line).
const (
	DebugCmd = 1 << iota
	DebugInst
	DebugData
	DebugDetail
	DebugIO
	DebugIRQ
)

// DebugOption maps -d flag names to bits, in the teacher's registration
// style (config/debugconfig consults this table directly).
var DebugOption = map[string]int{
	"CMD":    DebugCmd,
	"INST":   DebugInst,
	"DATA":   DebugData,
	"DETAIL": DebugDetail,
	"IO":     DebugIO,
	"IRQ":    DebugIRQ,
}

// segment is the cached, decoded form of one segment register: selector
// plus the base/limit/flags pulled from its descriptor, refreshed on every
// load so the hot path never re-walks the GDT/LDT.
type segment struct {
	selector uint16
	base     uint32
	limit    uint32
	dBit     bool // 32-bit default operand/address size (code) / big (stack)
	dpl      uint8
	present  bool
}

// dtr is a descriptor table register: GDTR/IDTR (base+limit only).
type dtr struct {
	base  uint32
	limit uint16
}
