package pit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPITLoadAndReadCountLSBMode(t *testing.T) {
	var clock uint32
	now := func() uint32 { return clock }
	tm := New(now, nil)

	tm.WriteCommand(0x34) // channel 0, LSB/MSB, mode 2
	tm.WriteCounter(0, 0x00)
	tm.WriteCounter(0, 0x10) // count = 0x1000

	clock = 0 // no elapsed time yet
	v1 := tm.ReadCounter(0)
	v2 := tm.ReadCounter(0)
	assert.Equal(t, uint8(0x00), v1)
	assert.Equal(t, uint8(0x10), v2)
}

func TestPITCatchUpIRQCappedAtTen(t *testing.T) {
	var clock uint32
	now := func() uint32 { return clock }
	pulses := 0
	tm := New(now, func(level bool) {
		if level {
			pulses++
		}
	})

	tm.WriteCommand(0x36) // channel 0, LSB/MSB, mode 3
	tm.WriteCounter(0, 0x10)
	tm.WriteCounter(0, 0x00) // count = 0x10

	clock = 1000000 // advance far past many periods
	tm.UpdateIRQ()
	assert.Equal(t, 10, pulses)
}

func TestPITLatchFreezesCountAcrossElapsedTime(t *testing.T) {
	var clock uint32
	now := func() uint32 { return clock }
	tm := New(now, nil)

	tm.WriteCommand(0x34)
	tm.WriteCounter(0, 0x00)
	tm.WriteCounter(0, 0x10)

	tm.WriteCommand(0x00) // latch channel 0
	clock = 500
	lo := tm.ReadCounter(0)
	hi := tm.ReadCounter(0)
	assert.Equal(t, uint16(0x1000), uint16(hi)<<8|uint16(lo))
}
