/*
corex86 - x86 disassembler

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

// Package disassembler renders raw instruction bytes into text, the same
// table-driven "look up format class, switch on it, consume the right
// trailing bytes" shape as the teacher's S/370 disassembler, rebuilt around
// ModRM/SIB decoding instead of fixed-width RR/RX/RS/SI/SS fields. It never
// touches memory or CPU state — the monitor console feeds it raw bytes
// captured from cpu/mmu reads, so a byte run that crosses a page boundary
// disassembles exactly like any other.
package disassembler

import (
	"fmt"

	op "github.com/rh1tech/corex86/opcodemap"
)

// Disassemble decodes one instruction starting at data[0] and returns its
// text and length in bytes. If data is too short to hold the full
// instruction, it returns what it can tell and a length of 0 so the caller
// knows not to advance.
func Disassemble(data []byte) (string, int) {
	pos := 0
	next := func() (byte, bool) {
		if pos >= len(data) {
			return 0, false
		}
		b := data[pos]
		pos++
		return b, true
	}

	segOverride := ""
	opSize32 := true
	b, ok := next()
	if !ok {
		return "<short>", 0
	}
	for {
		switch b {
		case 0x2e:
			segOverride = "CS:"
		case 0x36:
			segOverride = "SS:"
		case 0x3e:
			segOverride = "DS:"
		case 0x26:
			segOverride = "ES:"
		case 0x64:
			segOverride = "FS:"
		case 0x65:
			segOverride = "GS:"
		case 0x66:
			opSize32 = false
		case 0x67, 0xf0, 0xf2, 0xf3:
			// address-size/lock/rep: displayed inline by the opcode case below
		default:
			goto haveOpcode
		}
		b, ok = next()
		if !ok {
			return "<short>", 0
		}
	}

haveOpcode:
	if b == 0x0f {
		b2, ok := next()
		if !ok {
			return "<short>", 0
		}
		return disasTwoByte(data, pos, b2)
	}

	if name, ok := op.StringOps[b]; ok {
		return name, pos
	}
	if b >= 0x70 && b <= 0x7f {
		rel, n, ok := readRel8(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("J%-4s %+d", op.CondNames[b&0xf], rel), n
	}
	if b >= 0x50 && b <= 0x57 {
		return fmt.Sprintf("PUSH   %s", op.RegNames32[b&7]), pos
	}
	if b >= 0x58 && b <= 0x5f {
		return fmt.Sprintf("POP    %s", op.RegNames32[b&7]), pos
	}
	if b >= 0x40 && b <= 0x47 {
		return fmt.Sprintf("INC    %s", op.RegNames32[b&7]), pos
	}
	if b >= 0x48 && b <= 0x4f {
		return fmt.Sprintf("DEC    %s", op.RegNames32[b&7]), pos
	}
	if b >= 0xb0 && b <= 0xb7 {
		imm, n, ok := readImm8(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("MOV    %s,%#x", op.RegNames8[b&7], imm), n
	}
	if b >= 0xb8 && b <= 0xbf {
		imm, n, ok := readImm32(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("MOV    %s,%#x", op.RegNames32[b&7], imm), n
	}

	opc, ok := op.OneByte[b]
	if !ok {
		return fmt.Sprintf("DB     %#x", b), pos
	}

	inst := opc.Name
	for len(inst) < 6 {
		inst += " "
	}

	switch opc.Format {
	case op.FmtNone:
		return opc.Name, pos
	case op.FmtRM8R8, op.FmtRM32R32, op.FmtR8RM8, op.FmtR32RM32:
		rm, reg, n, ok := decodeModRM(data, pos, segOverride, opc.Format == op.FmtRM8R8 || opc.Format == op.FmtR8RM8)
		if !ok {
			return "<short>", 0
		}
		if opc.Format == op.FmtR8RM8 || opc.Format == op.FmtR32RM32 {
			return fmt.Sprintf("%s%s,%s", inst, reg, rm), n
		}
		return fmt.Sprintf("%s%s,%s", inst, rm, reg), n
	case op.FmtAccImm8:
		imm, n, ok := readImm8(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%sAL,%#x", inst, imm), n
	case op.FmtAccImm32:
		imm, n, ok := readImm32(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%seAX,%#x", inst, imm), n
	case op.FmtImm8:
		imm, n, ok := readImm8(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%s%#x", inst, imm), n
	case op.FmtImm16:
		if pos+2 > len(data) {
			return "<short>", 0
		}
		imm := uint16(data[pos]) | uint16(data[pos+1])<<8
		return fmt.Sprintf("%s%#x", inst, imm), pos + 2
	case op.FmtImm32:
		imm, n, ok := readImm32(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%s%#x", inst, imm), n
	case op.FmtRel8:
		rel, n, ok := readRel8(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%s%+d", inst, rel), n
	case op.FmtRel32:
		rel, n, ok := readImm32(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%s%+d", inst, int32(rel)), n
	case op.FmtPort8:
		imm, n, ok := readImm8(data, pos)
		if !ok {
			return "<short>", 0
		}
		acc := "AL"
		if b == 0xe5 || b == 0xe7 {
			acc = "eAX"
		}
		if b == 0xe6 || b == 0xe7 {
			return fmt.Sprintf("%s%#x,%s", inst, imm, acc), n
		}
		return fmt.Sprintf("%s%s,%#x", inst, acc, imm), n
	case op.FmtPortDX:
		acc := "AL"
		if b == 0xed || b == 0xef {
			acc = "eAX"
		}
		if b == 0xee || b == 0xef {
			return fmt.Sprintf("%sDX,%s", inst, acc), pos
		}
		return fmt.Sprintf("%s%s,DX", inst, acc), pos
	case op.FmtModRMOnly:
		rm, _, n, ok := decodeModRM(data, pos, segOverride, opc.Name == "MOV" && b == 0xc6)
		if !ok {
			return "<short>", 0
		}
		if b == 0xc6 {
			imm, n2, ok := readImm8(data, n)
			if !ok {
				return "<short>", 0
			}
			return fmt.Sprintf("%s%s,%#x", inst, rm, imm), n2
		}
		if !opSize32 {
			if n+2 > len(data) {
				return "<short>", 0
			}
			imm := uint16(data[n]) | uint16(data[n+1])<<8
			return fmt.Sprintf("%s%s,%#x", inst, rm, imm), n + 2
		}
		imm, n2, ok := readImm32(data, n)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%s%s,%#x", inst, rm, imm), n2
	case op.FmtModRMReg:
		return disasGroup(data, pos, segOverride, b)
	}
	return fmt.Sprintf("DB     %#x", b), pos
}

func disasTwoByte(data []byte, pos int, b2 byte) (string, int) {
	if b2 >= 0x80 && b2 <= 0x8f {
		rel, n, ok := readImm32(data, pos)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("J%-4s %+d", op.CondNames[b2&0xf], int32(rel)), n
	}
	if b2 >= 0x90 && b2 <= 0x9f {
		rm, _, n, ok := decodeModRM(data, pos, "", true)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("SET%-3s %s", op.CondNames[b2&0xf], rm), n
	}
	opc, ok := op.TwoByte[b2]
	if !ok {
		return fmt.Sprintf("DB     0f %#x", b2), pos
	}
	if b2 == 0x06 {
		return opc.Name, pos
	}
	if b2 == 0x01 {
		rm, _, n, ok := decodeModRM(data, pos, "", false)
		if !ok {
			return "<short>", 0
		}
		reg := int(data[pos]>>3) & 7
		names := []string{"SGDT", "SIDT", "LGDT", "LIDT"}
		if reg < 4 {
			return fmt.Sprintf("%-6s %s", names[reg], rm), n
		}
		names2 := []string{"", "", "LLDT", "LTR"}
		return fmt.Sprintf("%-6s %s", names2[reg], rm), n
	}
	// MOV to/from control registers: byte after 0F 20/22 is modrm-shaped but
	// register-only (reg field picks CRn, rm field picks the GPR).
	if pos >= len(data) {
		return "<short>", 0
	}
	b3 := data[pos]
	crn := (b3 >> 3) & 7
	rm := op.RegNames32[b3&7]
	if b2 == 0x20 {
		return fmt.Sprintf("MOV    %s,CR%d", rm, crn), pos + 1
	}
	return fmt.Sprintf("MOV    CR%d,%s", crn, rm), pos + 1
}

func disasGroup(data []byte, pos int, segOverride string, opcByte byte) (string, int) {
	rm, _, n, ok := decodeModRM(data, pos, segOverride, opcByte == 0xc0 || opcByte == 0xd0 || opcByte == 0xd2 || opcByte == 0xf6 || opcByte == 0xfe)
	if !ok {
		return "<short>", 0
	}
	reg := int(data[pos]>>3) & 7
	switch opcByte {
	case 0x80, 0xc0:
		imm, n2, ok := readImm8(data, n)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%-6s %s,%#x", groupName(opcByte, reg), rm, imm), n2
	case 0x81:
		imm, n2, ok := readImm32(data, n)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%-6s %s,%#x", groupName(opcByte, reg), rm, imm), n2
	case 0x83:
		imm, n2, ok := readImm8(data, n)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%-6s %s,%#x", groupName(opcByte, reg), rm, int8(imm)), n2
	case 0xc1:
		imm, n2, ok := readImm8(data, n)
		if !ok {
			return "<short>", 0
		}
		return fmt.Sprintf("%-6s %s,%#x", groupName(opcByte, reg), rm, imm), n2
	case 0xd0, 0xd2:
		return fmt.Sprintf("%-6s %s", groupName(opcByte, reg), rm), n
	case 0xd1:
		return fmt.Sprintf("%-6s %s,1", groupName(opcByte, reg), rm), n
	case 0xd3:
		return fmt.Sprintf("%-6s %s,CL", groupName(opcByte, reg), rm), n
	case 0xf6:
		if reg == 0 || reg == 1 {
			imm, n2, ok := readImm8(data, n)
			if !ok {
				return "<short>", 0
			}
			return fmt.Sprintf("TEST   %s,%#x", rm, imm), n2
		}
		return fmt.Sprintf("%-6s %s", groupName(opcByte, reg), rm), n
	case 0xf7:
		if reg == 0 || reg == 1 {
			imm, n2, ok := readImm32(data, n)
			if !ok {
				return "<short>", 0
			}
			return fmt.Sprintf("TEST   %s,%#x", rm, imm), n2
		}
		return fmt.Sprintf("%-6s %s", groupName(opcByte, reg), rm), n
	case 0xfe:
		return fmt.Sprintf("%-6s %s", op.Group5Ops[reg&1], rm), n
	case 0xff:
		return fmt.Sprintf("%-6s %s", op.Group5Ops[reg], rm), n
	}
	return fmt.Sprintf("%-6s %s", "?", rm), n
}

func groupName(opcByte byte, reg int) string {
	switch opcByte {
	case 0x80, 0x81, 0x83:
		return op.Group1Ops[reg]
	case 0xc0, 0xc1, 0xd0, 0xd1, 0xd2, 0xd3:
		return op.Group2Ops[reg]
	case 0xf6, 0xf7:
		return op.Group3Ops[reg]
	}
	return "?"
}

// decodeModRM renders the ModRM(+SIB+disp) byte sequence starting at
// data[pos] into an operand string, returning the register-field operand
// (reg8 selects an 8-bit name, else 32-bit) and the byte position just past
// the operand's encoding.
func decodeModRM(data []byte, pos int, segOverride string, reg8 bool) (rm, reg string, next int, ok bool) {
	if pos >= len(data) {
		return "", "", 0, false
	}
	b := data[pos]
	pos++
	mod := b >> 6
	regField := int((b >> 3) & 7)
	rmField := int(b & 7)

	if reg8 {
		reg = op.RegNames8[regField]
	} else {
		reg = op.RegNames32[regField]
	}

	if mod == 3 {
		if reg8 {
			rm = op.RegNames8[rmField]
		} else {
			rm = op.RegNames32[rmField]
		}
		return rm, reg, pos, true
	}

	base := ""
	index := ""
	if rmField == 4 {
		if pos >= len(data) {
			return "", "", 0, false
		}
		sib := data[pos]
		pos++
		scale := 1 << (sib >> 6)
		idx := (sib >> 3) & 7
		bs := sib & 7
		if idx != 4 {
			index = fmt.Sprintf("+%s*%d", op.RegNames32[idx], scale)
		}
		if mod == 0 && bs == 5 {
			if pos+4 > len(data) {
				return "", "", 0, false
			}
			disp := int32(uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24)
			pos += 4
			base = fmt.Sprintf("%#x", disp)
		} else {
			base = op.RegNames32[bs]
		}
	} else if mod == 0 && rmField == 5 {
		if pos+4 > len(data) {
			return "", "", 0, false
		}
		disp := uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24
		pos += 4
		base = fmt.Sprintf("%#x", disp)
	} else {
		base = op.RegNames32[rmField]
	}

	dispStr := ""
	switch mod {
	case 1:
		if pos >= len(data) {
			return "", "", 0, false
		}
		d := int8(data[pos])
		pos++
		if d != 0 {
			if d < 0 {
				dispStr = fmt.Sprintf("-%#x", -int(d))
			} else {
				dispStr = fmt.Sprintf("+%#x", d)
			}
		}
	case 2:
		if pos+4 > len(data) {
			return "", "", 0, false
		}
		d := int32(uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24)
		pos += 4
		if d != 0 {
			if d < 0 {
				dispStr = fmt.Sprintf("-%#x", -int(d))
			} else {
				dispStr = fmt.Sprintf("+%#x", d)
			}
		}
	}

	rm = fmt.Sprintf("%s[%s%s%s]", segOverride, base, index, dispStr)
	return rm, reg, pos, true
}

func readImm8(data []byte, pos int) (uint8, int, bool) {
	if pos >= len(data) {
		return 0, 0, false
	}
	return data[pos], pos + 1, true
}

func readImm32(data []byte, pos int) (uint32, int, bool) {
	if pos+4 > len(data) {
		return 0, 0, false
	}
	v := uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24
	return v, pos + 4, true
}

func readRel8(data []byte, pos int) (int8, int, bool) {
	if pos >= len(data) {
		return 0, 0, false
	}
	return int8(data[pos]), pos + 1, true
}
