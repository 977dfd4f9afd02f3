package pic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPICInitAndIRQBase(t *testing.T) {
	raised := 0
	p := New(func() { raised++ })

	p.WriteCommand(true, 0x11) // ICW1: init, ICW4 present
	p.WriteData(true, 0x08)    // ICW2: base vector 0x08
	p.WriteData(true, 0x04)    // ICW3: slave on IRQ2
	p.WriteData(true, 0x01)    // ICW4

	p.WriteCommand(false, 0x11)
	p.WriteData(false, 0x70)
	p.WriteData(false, 0x02)
	p.WriteData(false, 0x01)

	p.WriteData(true, 0xff &^ (1 << 1)) // unmask IRQ1 on master
	p.SetIRQ(1, true)

	assert.Equal(t, 1, raised)
	vec := p.ReadIRQ()
	assert.Equal(t, uint8(0x09), vec)
}

func TestPICCascadeSlaveIRQ(t *testing.T) {
	p := New(func() {})
	p.WriteCommand(true, 0x11)
	p.WriteData(true, 0x08)
	p.WriteData(true, 0x04)
	p.WriteData(true, 0x01)
	p.WriteCommand(false, 0x11)
	p.WriteData(false, 0x70)
	p.WriteData(false, 0x02)
	p.WriteData(false, 0x01)

	p.WriteData(true, 0x00)  // unmask all on master
	p.WriteData(false, 0x00) // unmask all on slave

	p.SetIRQ(8, true) // slave IRQ0 -> master IRQ2 cascade
	vec := p.ReadIRQ()
	assert.Equal(t, uint8(0x70), vec)
}

func TestPICSpuriousOnMasterWhenNothingPending(t *testing.T) {
	p := New(func() {})
	p.WriteCommand(true, 0x11)
	p.WriteData(true, 0x00) // base 0
	p.WriteData(true, 0x04)
	p.WriteData(true, 0x01)

	vec := p.ReadIRQ()
	assert.Equal(t, uint8(0x07), vec)
}

func TestPICSpecificEOIClearsISRBit(t *testing.T) {
	p := New(func() {})
	p.WriteCommand(true, 0x11)
	p.WriteData(true, 0x00)
	p.WriteData(true, 0x04)
	p.WriteData(true, 0x01)
	p.WriteData(true, 0x00)

	p.SetIRQ(3, true)
	p.ReadIRQ()
	assert.NotEqual(t, uint8(0), p.master.isr)

	p.WriteCommand(true, 0x60|3) // specific EOI, irq 3
	assert.Equal(t, uint8(0), p.master.isr)
}

// TestPICNestedRaiseEOIOrdering reproduces the documented nested-interrupt
// sequence: IRQ1 is accepted and in service, a higher-numbered IRQ3 raises
// and is accepted while the handler for IRQ1 hasn't EOI'd yet, then the
// handler EOIs the two in the order it actually serviced them (specific EOI
// for the inner IRQ3, then a non-specific EOI that must resolve to the
// still-outstanding IRQ1) leaving the ISR empty.
func TestPICNestedRaiseEOIOrdering(t *testing.T) {
	p := New(func() {})
	p.WriteCommand(true, 0x11)
	p.WriteData(true, 0x00) // base vector 0
	p.WriteData(true, 0x04)
	p.WriteData(true, 0x01)
	p.WriteData(true, 0x00) // unmask all

	p.SetIRQ(1, true)
	vec := p.ReadIRQ()
	assert.Equal(t, uint8(1), vec)
	assert.Equal(t, uint8(1<<1), p.master.isr)

	// Nested: IRQ3 raises and is accepted while IRQ1 is still in service.
	p.SetIRQ(3, true)
	vec = p.ReadIRQ()
	assert.Equal(t, uint8(3), vec)
	assert.Equal(t, uint8(1<<1|1<<3), p.master.isr)

	p.WriteCommand(true, 0x60|3) // specific EOI for the inner IRQ3
	assert.Equal(t, uint8(1<<1), p.master.isr)

	p.WriteCommand(true, 0x20) // non-specific EOI for the outer IRQ1
	assert.Equal(t, uint8(0), p.master.isr)
}
