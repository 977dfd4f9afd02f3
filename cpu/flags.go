/*
corex86 - Lazy EFLAGS evaluation

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

// ccOp names which ALU operation last produced cc.dst/dst2/src1/src2/mask, so the
// six status flags can be recomputed lazily instead of after every
// instruction. This is a direct transliteration of the reference
// interpreter's CC_* enum and get_CF/PF/AF/ZF/SF/OF switches.
type ccOp int

const (
	ccAdc ccOp = iota
	ccAdd
	ccSbb
	ccSub
	ccNeg8
	ccNeg16
	ccNeg32
	ccDec8
	ccDec16
	ccDec32
	ccInc8
	ccInc16
	ccInc32
	ccImul8
	ccImul16
	ccImul32
	ccMul8
	ccMul16
	ccMul32
	ccSar
	ccShl
	ccShr
	ccShld
	ccShrd
	ccBsf
	ccBsr
	ccAnd
	ccOr
	ccXor
	ccLoaded // flags were materialized directly (POPF/IRET/INT): dst holds them
)

// ccState is the deferred-flags descriptor: the operands and result of the
// last flag-setting operation, plus the word-size mask needed to pull out
// sign/carry bits.
type ccState struct {
	op   ccOp
	dst  uint32
	dst2 uint32 // high half for MUL/shift-carry-out ops
	src1 uint32
	src2 uint32
	mask uint32 // wordbits mask: 0xff, 0xffff, or 0xffffffff
}

var parityTab = [256]uint8{
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
}

func signBit(mask uint32) uint32 {
	return mask ^ (mask >> 1)
}

func (c *ccState) getCF() bool {
	switch c.op {
	case ccLoaded:
		return c.dst&FlagCF != 0
	case ccAdc:
		return c.dst <= c.src2
	case ccAdd:
		return c.dst&c.mask < c.src2
	case ccSbb:
		// src2 already has the incoming borrow folded in by the caller, so
		// a strict compare gives the correct unsigned-borrow condition.
		return c.src1 < c.src2
	case ccSub:
		return c.src1 < c.src2
	case ccNeg8, ccNeg16, ccNeg32:
		return c.dst != 0
	case ccImul8, ccImul16, ccImul32, ccMul8, ccMul16, ccMul32:
		return c.dst2 != 0
	case ccShl:
		return c.dst2&1 != 0
	case ccShr, ccSar:
		return c.dst2>>31 != 0
	case ccShld, ccShrd:
		return c.dst2&1 != 0
	default:
		return false
	}
}

func (c *ccState) getPF() bool {
	if c.op == ccLoaded {
		return c.dst&FlagPF != 0
	}
	return parityTab[c.dst&0xff] != 0
}

func (c *ccState) getAF() bool {
	switch c.op {
	case ccLoaded:
		return c.dst&FlagAF != 0
	case ccAdc, ccAdd, ccSbb, ccSub:
		return (c.dst^c.src1^c.src2)&0x10 != 0
	case ccNeg8, ccNeg16, ccNeg32, ccDec8, ccDec16, ccDec32, ccInc8, ccInc16, ccInc32:
		return c.dst&0xf == 0
	default:
		return false
	}
}

func (c *ccState) getZF() bool {
	if c.op == ccLoaded {
		return c.dst&FlagZF != 0
	}
	return (c.dst & c.mask) == 0
}

func (c *ccState) getSF() bool {
	if c.op == ccLoaded {
		return c.dst&FlagSF != 0
	}
	return c.dst&signBit(c.mask) != 0
}

func (c *ccState) getOF() bool {
	sb := signBit(c.mask)
	switch c.op {
	case ccLoaded:
		return c.dst&FlagOF != 0
	case ccAdc, ccAdd:
		return (^(c.src1^c.src2))&(c.dst^c.src2)&sb != 0
	case ccSbb, ccSub:
		return (c.src1^c.src2)&(c.dst^c.src1)&sb != 0
	case ccDec8, ccDec16, ccDec32:
		return c.dst&c.mask == (sb-1)&c.mask
	case ccInc8, ccInc16, ccInc32:
		return c.dst&c.mask == sb
	case ccNeg8, ccNeg16, ccNeg32:
		return c.dst&c.mask == sb
	case ccImul8, ccImul16, ccImul32, ccMul8, ccMul16, ccMul32:
		return c.getCF()
	case ccShl:
		return (c.dst>>31)^(c.dst2&1) != 0
	case ccShr:
		return c.src1>>31 != 0
	case ccShld, ccShrd:
		return (c.src1^c.dst)>>31 != 0
	default:
		return false
	}
}

// eflags returns the fully materialized EFLAGS register: the lazily
// computed status bits folded into the statically tracked control bits.
func (c *CPU) eflags() uint32 {
	return c.cc.eflagsWriteBack(c.flags)
}

// setEflags loads a full EFLAGS value, e.g. from POPF or an IRET frame,
// also syncing the cached V8086-mode flag from bit 17.
func (c *CPU) setEflags(v uint32) {
	c.flags = v
	c.cc = loadFlags(v)
	c.vm = v&FlagVM != 0
}

// setFlagBit materializes EFLAGS, forces a single status bit to the given
// value and reloads it as the new cc state. Used by instructions (rotates,
// bit tests, CMPXCHG8B, VERR/VERW) that set exactly one flag outside the
// lazy ccOp vocabulary.
func (c *CPU) setFlagBit(bit uint32, v bool) {
	flags := c.eflags() &^ bit
	if v {
		flags |= bit
	}
	c.flags = flags
	c.cc = loadFlags(flags)
}

func (c *CPU) setCF(v bool) { c.setFlagBit(FlagCF, v) }
func (c *CPU) setZF(v bool) { c.setFlagBit(FlagZF, v) }
func (c *CPU) setOF(v bool) { c.setFlagBit(FlagOF, v) }

// loadFlags builds a ccState that reproduces an externally supplied EFLAGS
// value verbatim, used by POPF/IRET/INT-return paths.
func loadFlags(v uint32) ccState {
	return ccState{op: ccLoaded, dst: v, mask: flagsMask}
}

// eflagsWriteBack folds the lazily-computed status bits into flags and
// clears the pending operation, equivalent to refresh_flags.
func (c *ccState) eflagsWriteBack(flags uint32) uint32 {
	flags &^= flagsMask
	if c.getCF() {
		flags |= FlagCF
	}
	if c.getPF() {
		flags |= FlagPF
	}
	if c.getAF() {
		flags |= FlagAF
	}
	if c.getZF() {
		flags |= FlagZF
	}
	if c.getSF() {
		flags |= FlagSF
	}
	if c.getOF() {
		flags |= FlagOF
	}
	return flags
}
