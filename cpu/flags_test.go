package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagsAddCarryAndOverflow(t *testing.T) {
	// 0xff + 0x01 = 0x100, mask 8-bit: CF set, ZF set, OF clear.
	c := ccState{op: ccAdd, dst: 0x100, src1: 0xff, src2: 0x01, mask: 0xff}
	assert.True(t, c.getCF())
	assert.True(t, c.getZF())
	assert.False(t, c.getOF())

	// 0x7f + 0x01 = 0x80: signed overflow, no carry.
	c = ccState{op: ccAdd, dst: 0x80, src1: 0x7f, src2: 0x01, mask: 0xff}
	assert.False(t, c.getCF())
	assert.True(t, c.getOF())
	assert.True(t, c.getSF())
}

func TestFlagsSubBorrow(t *testing.T) {
	// 0x00 - 0x01 = 0xff (8-bit): borrow set.
	c := ccState{op: ccSub, dst: 0xff, src1: 0x00, src2: 0x01, mask: 0xff}
	assert.True(t, c.getCF())
	assert.True(t, c.getSF())
}

func TestFlagsIncDecOverflowBoundary(t *testing.T) {
	c := ccState{op: ccInc8, dst: 0x80, mask: 0xff}
	assert.True(t, c.getOF())

	c = ccState{op: ccDec8, dst: 0x7f, mask: 0xff}
	assert.True(t, c.getOF())
}

func TestFlagsParityTable(t *testing.T) {
	c := ccState{op: ccAnd, dst: 0x03, mask: 0xff} // two bits set -> even parity
	assert.True(t, c.getPF())

	c = ccState{op: ccAnd, dst: 0x01, mask: 0xff}
	assert.False(t, c.getPF())
}

func TestEflagsWriteBackPreservesOtherBits(t *testing.T) {
	c := ccState{op: ccAnd, dst: 0, mask: 0xffffffff}
	flags := c.eflagsWriteBack(FlagIF | FlagTF)
	assert.NotZero(t, flags&FlagZF)
	assert.NotZero(t, flags&FlagIF)
	assert.NotZero(t, flags&FlagTF)
}
