/*
corex86 - Opcode name table for disassembly

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

// Package opcodemap names the opcode/operand-format pairs the disassembler
// prints, the same separation the teacher keeps between its S/370 opcode
// constants package and the disassembler that consumes them: a table that
// can be regenerated from the instruction set reference independent of how
// it gets printed.
package opcodemap

// Operand-format classes, the x86-ModRM equivalent of the teacher's
// RR/RX/RS/SI/SS/S S/370 instruction formats. Each names what follows the
// opcode byte.
const (
	FmtNone  = 1 + iota // no operands (CLC, NOP, RET, HLT, ...)
	FmtRM8R8            // r/m8, r8
	FmtR8RM8            // r8, r/m8
	FmtRM32R32
	FmtR32RM32
	FmtAccImm8   // AL, imm8
	FmtAccImm32  // eAX, imm32
	FmtImm8      // one immediate byte (INT n, PUSH imm8 sign-extended)
	FmtImm16     // one immediate word (RET imm16)
	FmtImm32     // one immediate dword (PUSH imm32)
	FmtRel8      // short branch displacement
	FmtRel32     // near branch displacement
	FmtPort8     // fixed port, imm8 (IN/OUT AL/eAX, imm8)
	FmtPortDX    // variable port, DX (IN/OUT AL/eAX, DX)
	FmtModRMOnly // r/m operand only, immediate follows (MOV r/m, imm)
	FmtModRMReg  // ModRM.reg selects a sub-opcode (group 1/2/3/5/01)
)

type Opcode struct {
	Name   string
	Format int
}

// OneByte is the one-byte opcode map the disassembler names opcodes from. It
// lists a subset of what cpu/exec.go dispatches: some opcodes the CPU
// executes, such as far CALL/JMP (0x9A, 0xEA), have no entry here and are
// shown as DB.
var OneByte = map[byte]Opcode{
	0x00: {"ADD", FmtRM8R8},
	0x01: {"ADD", FmtRM32R32},
	0x02: {"ADD", FmtR8RM8},
	0x03: {"ADD", FmtR32RM32},
	0x04: {"ADD", FmtAccImm8},
	0x05: {"ADD", FmtAccImm32},
	0x08: {"OR", FmtRM8R8},
	0x09: {"OR", FmtRM32R32},
	0x0a: {"OR", FmtR8RM8},
	0x0b: {"OR", FmtR32RM32},
	0x0c: {"OR", FmtAccImm8},
	0x0d: {"OR", FmtAccImm32},
	0x10: {"ADC", FmtRM8R8},
	0x11: {"ADC", FmtRM32R32},
	0x12: {"ADC", FmtR8RM8},
	0x13: {"ADC", FmtR32RM32},
	0x14: {"ADC", FmtAccImm8},
	0x15: {"ADC", FmtAccImm32},
	0x18: {"SBB", FmtRM8R8},
	0x19: {"SBB", FmtRM32R32},
	0x1a: {"SBB", FmtR8RM8},
	0x1b: {"SBB", FmtR32RM32},
	0x1c: {"SBB", FmtAccImm8},
	0x1d: {"SBB", FmtAccImm32},
	0x20: {"AND", FmtRM8R8},
	0x21: {"AND", FmtRM32R32},
	0x22: {"AND", FmtR8RM8},
	0x23: {"AND", FmtR32RM32},
	0x24: {"AND", FmtAccImm8},
	0x25: {"AND", FmtAccImm32},
	0x28: {"SUB", FmtRM8R8},
	0x29: {"SUB", FmtRM32R32},
	0x2a: {"SUB", FmtR8RM8},
	0x2b: {"SUB", FmtR32RM32},
	0x2c: {"SUB", FmtAccImm8},
	0x2d: {"SUB", FmtAccImm32},
	0x30: {"XOR", FmtRM8R8},
	0x31: {"XOR", FmtRM32R32},
	0x32: {"XOR", FmtR8RM8},
	0x33: {"XOR", FmtR32RM32},
	0x34: {"XOR", FmtAccImm8},
	0x35: {"XOR", FmtAccImm32},
	0x38: {"CMP", FmtRM8R8},
	0x39: {"CMP", FmtRM32R32},
	0x3a: {"CMP", FmtR8RM8},
	0x3b: {"CMP", FmtR32RM32},
	0x3c: {"CMP", FmtAccImm8},
	0x3d: {"CMP", FmtAccImm32},
	0x68: {"PUSH", FmtImm32},
	0x6a: {"PUSH", FmtImm8},
	0x80: {"<group1 8>", FmtModRMReg},
	0x81: {"<group1 32>", FmtModRMReg},
	0x83: {"<group1 32,imm8>", FmtModRMReg},
	0x88: {"MOV", FmtRM8R8},
	0x89: {"MOV", FmtRM32R32},
	0x8a: {"MOV", FmtR8RM8},
	0x8b: {"MOV", FmtR32RM32},
	0x8d: {"LEA", FmtR32RM32},
	0x90: {"NOP", FmtNone},
	0xc0: {"<group2 8,imm8>", FmtModRMReg},
	0xc1: {"<group2 32,imm8>", FmtModRMReg},
	0xc2: {"RET", FmtImm16},
	0xc3: {"RET", FmtNone},
	0xc6: {"MOV", FmtModRMOnly},
	0xc7: {"MOV", FmtModRMOnly},
	0xcc: {"INT3", FmtNone},
	0xcd: {"INT", FmtImm8},
	0xce: {"INTO", FmtNone},
	0xcf: {"IRET", FmtNone},
	0xd0: {"<group2 8,1>", FmtModRMReg},
	0xd1: {"<group2 32,1>", FmtModRMReg},
	0xd2: {"<group2 8,cl>", FmtModRMReg},
	0xd3: {"<group2 32,cl>", FmtModRMReg},
	0xe4: {"IN", FmtPort8},
	0xe5: {"IN", FmtPort8},
	0xe6: {"OUT", FmtPort8},
	0xe7: {"OUT", FmtPort8},
	0xe8: {"CALL", FmtRel32},
	0xe9: {"JMP", FmtRel32},
	0xeb: {"JMP", FmtRel8},
	0xec: {"IN", FmtPortDX},
	0xed: {"IN", FmtPortDX},
	0xee: {"OUT", FmtPortDX},
	0xef: {"OUT", FmtPortDX},
	0xf4: {"HLT", FmtNone},
	0xf5: {"CMC", FmtNone},
	0xf6: {"<group3 8>", FmtModRMReg},
	0xf7: {"<group3 32>", FmtModRMReg},
	0xf8: {"CLC", FmtNone},
	0xf9: {"STC", FmtNone},
	0xfa: {"CLI", FmtNone},
	0xfb: {"STI", FmtNone},
	0xfc: {"CLD", FmtNone},
	0xfd: {"STD", FmtNone},
	0xfe: {"<incdec 8>", FmtModRMReg},
	0xff: {"<group5 32>", FmtModRMReg},
}

// TwoByte is the 0F-escape map (system instructions and Jcc/SETcc, which
// are pattern-keyed below rather than per-opcode).
var TwoByte = map[byte]Opcode{
	0x01: {"<group01>", FmtModRMReg},
	0x06: {"CLTS", FmtNone},
	0x20: {"MOV", FmtModRMReg}, // MOV r32, CRn
	0x22: {"MOV", FmtModRMReg}, // MOV CRn, r32
}

// Jcc/SETcc, the string instructions and the push/pop/inc/dec/mov-immediate
// families are range- or pattern-keyed rather than per-opcode, the same way
// the teacher collapses near-identical RR opcode families (AR/SR/MR/DR,
// ...) into one table row per mnemonic and lets the caller add the operand.
var CondNames = [16]string{
	"O", "NO", "B", "AE", "E", "NE", "BE", "A",
	"S", "NS", "P", "NP", "L", "GE", "LE", "G",
}

var StringOps = map[byte]string{
	0xa4: "MOVSB", 0xa5: "MOVSD",
	0xa6: "CMPSB", 0xa7: "CMPSD",
	0xaa: "STOSB", 0xab: "STOSD",
	0xac: "LODSB", 0xad: "LODSD",
	0xae: "SCASB", 0xaf: "SCASD",
}

var Group1Ops = [8]string{"ADD", "OR", "ADC", "SBB", "AND", "SUB", "XOR", "CMP"}
var Group2Ops = [8]string{"ROL", "ROR", "RCL", "RCR", "SHL", "SHR", "SHL", "SAR"}
var Group3Ops = [8]string{"TEST", "TEST", "NOT", "NEG", "MUL", "IMUL", "DIV", "IDIV"}
var Group5Ops = [8]string{"INC", "DEC", "CALL", "CALLF", "JMP", "JMPF", "PUSH", "?"}

// RegNames32/RegNames8 name the legacy register encodings (cpudefs.go's
// RegEAX..RegEDI, and the 0-3 low-byte/4-7 high-byte split).
var RegNames32 = [8]string{"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI"}
var RegNames8 = [8]string{"AL", "CL", "DL", "BL", "AH", "CH", "DH", "BH"}
