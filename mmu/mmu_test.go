package mmu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rh1tech/corex86/memory"
)

func setupPageTable(m *memory.RAM, cr3, laddr, paddr uint32, pdeFlags, pteFlags uint32) {
	pdIdx := (laddr >> 22) & 0x3ff
	ptIdx := (laddr >> 12) & 0x3ff

	ptBase := cr3 + 0x1000
	m.Store32(cr3+pdIdx*4, ptBase|pdeFlags|1)
	m.Store32(ptBase+ptIdx*4, (paddr&^0xfff)|pteFlags|1)
}

func TestTranslateNoPagingPassesThrough(t *testing.T) {
	mem := memory.New(1 << 20, nil)
	mm := New(mem)

	r, flt := mm.Translate(TranslateOpts{}, 0x1234, 4, Access{})
	assert.Nil(t, flt)
	assert.Equal(t, 1, r.N)
	assert.Equal(t, uint32(0x1234), r.Addr[0])
}

func TestTranslateUserWriteToReadOnlyPageFaults(t *testing.T) {
	mem := memory.New(1 << 20, nil)
	mm := New(mem)

	const cr3 = 0x2000
	setupPageTable(mem, cr3, 0x400000, 0x500000, 0x6, 0x4) // PDE: U,W ; PTE: U,R

	opts := TranslateOpts{PagingEnabled: true, CR3: cr3}

	_, flt := mm.Translate(opts, 0x400000, 4, Access{Write: false, User: true})
	assert.Nil(t, flt)

	_, flt = mm.Translate(opts, 0x400000, 4, Access{Write: true, User: true})
	assert.NotNil(t, flt)
	assert.Equal(t, uint32(pfPresent|pfWrite|pfUser), flt.ErrorCode)
}

func TestTranslateSupervisorWriteToReadOnlyAllowedWithoutWP(t *testing.T) {
	mem := memory.New(1 << 20, nil)
	mm := New(mem)

	const cr3 = 0x2000
	setupPageTable(mem, cr3, 0x400000, 0x500000, 0x2, 0x0) // PDE: S,W ; PTE: S,R

	opts := TranslateOpts{PagingEnabled: true, CR3: cr3, WriteProtect: false}
	_, flt := mm.Translate(opts, 0x400000, 4, Access{Write: true, User: false})
	assert.Nil(t, flt)

	opts.WriteProtect = true
	mm.Flush()
	_, flt = mm.Translate(opts, 0x400000, 4, Access{Write: true, User: false})
	assert.NotNil(t, flt)
}

func TestTranslateStraddlesPageBoundary(t *testing.T) {
	mem := memory.New(1 << 20, nil)
	mm := New(mem)

	const cr3 = 0x2000
	setupPageTable(mem, cr3, 0x400000, 0x500000, 0x6, 0x6)
	setupPageTable(mem, cr3, 0x401000, 0x600000, 0x6, 0x6)

	opts := TranslateOpts{PagingEnabled: true, CR3: cr3}
	r, flt := mm.Translate(opts, 0x400ffe, 4, Access{})
	assert.Nil(t, flt)
	assert.Equal(t, 2, r.N)
	assert.Equal(t, uint32(2), r.Len[0])
	assert.Equal(t, uint32(2), r.Len[1])
}
