/*
corex86 - Paging unit: software TLB and linear-to-physical translation

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

// Package mmu implements the i386 two-level page table walk behind a
// direct-mapped software TLB, in the shape of the reference interpreter's
// translate_laddr/translate_lpgno/tlb_refill: a fixed-size tag-compared
// array rather than a map, refilled lazily on a tag miss.
package mmu

import "github.com/rh1tech/corex86/memory"

const (
	tlbSize  = 512
	pageMask = 0xfff

	cr0PG = 1 << 31
	cr0WP = 0x10000
)

// Access describes the kind of reference being translated: read/write and
// supervisor/user, matching the i386 PDE/PTE permission bit combinations.
type Access struct {
	Write bool
	User  bool
}

// Fault is a page fault: the caller turns this into a #PF delivery with the
// given error code and faulting linear address in CR2.
type Fault struct {
	Addr      uint32 // CR2
	ErrorCode uint32 // P | W | U bits, per the i386 #PF error code layout
}

const (
	pfPresent = 1 << 0
	pfWrite   = 1 << 1
	pfUser    = 1 << 2
)

// entry is one direct-mapped TLB slot, keyed by the linear page number.
type entry struct {
	valid    bool
	lpgno    uint32
	xaddr    uint32 // physical page base XOR (lpgno<<12), per tlb_refill
	ppteAddr uint32 // physical address of the PTE, for dirty-bit updates
	deny     [2][2]bool // deny[write][user]
}

// MMU owns the TLB for one CPU. It never touches segment limits or the
// instruction-fetch cache; those live in the cpu package.
type MMU struct {
	mem *memory.RAM
	tlb [tlbSize]entry
}

// New creates an MMU backed by the given physical memory.
func New(mem *memory.RAM) *MMU {
	return &MMU{mem: mem}
}

// Flush invalidates the entire TLB, as CR3 reloads and task switches do.
func (m *MMU) Flush() {
	for i := range m.tlb {
		m.tlb[i].valid = false
	}
}

// InvalidatePage drops the single TLB entry covering laddr's page, the
// INVLPG instruction's effect — cheaper than a full Flush when a kernel
// only changed one page-table entry.
func (m *MMU) InvalidatePage(laddr uint32) {
	lpgno := laddr >> 12
	idx := lpgno % tlbSize
	if m.tlb[idx].lpgno == lpgno {
		m.tlb[idx].valid = false
	}
}

// denyFor computes the deny[write][user] matrix for one combined PDE/PTE
// permission nibble, equivalent to selecting a row out of the reference's
// static pte_lookup[wp][bits] table. bits holds the AND-combined W (bit 1)
// and U (bit 2) flags, already folded together the way tlb_refill's
// `pte & ((pde&7)|0xfffffff8)` expression folds them.
func denyFor(wp bool, bits uint32) [2][2]bool {
	effW := bits&0x2 != 0
	effU := bits&0x4 != 0

	var d [2][2]bool
	for _, write := range []bool{false, true} {
		for _, user := range []bool{false, true} {
			deny := false
			switch {
			case user && !effU:
				deny = true
			case write && !effW:
				if user {
					deny = true
				} else {
					deny = wp
				}
			}
			w, u := 0, 0
			if write {
				w = 1
			}
			if user {
				u = 1
			}
			d[w][u] = deny
		}
	}
	return d
}

// PhysRange is Translate's result for a linear address reference of size
// bytes: one or two physical ranges (split only when the reference straddles
// a 4KiB page boundary), per the ADDR_OK1/ADDR_OK2 contract. With paging
// disabled the linear address passes through unchanged.
type PhysRange struct {
	N    int
	Addr [2]uint32
	Len  [2]uint32
}

// TranslateOpts carries the paging-control bits needed to walk page tables.
type TranslateOpts struct {
	PagingEnabled bool
	WriteProtect  bool // CR0.WP
	CR3           uint32
}

// Translate resolves a linear address range, refilling the TLB on a miss and
// returning a page Fault when the walk fails or the permission check denies
// the access.
func (m *MMU) Translate(opts TranslateOpts, laddr uint32, size uint32, acc Access) (PhysRange, *Fault) {
	if !opts.PagingEnabled {
		return PhysRange{N: 1, Addr: [2]uint32{laddr}, Len: [2]uint32{size}}, nil
	}

	lpgno := laddr >> 12
	phys, flt := m.translateLpgno(opts, lpgno, acc)
	if flt != nil {
		flt.Addr = laddr
		return PhysRange{}, flt
	}
	base := phys << 12

	if (laddr & pageMask) > (0x1000 - size) {
		// Straddles a page boundary: translate the next page too.
		phys2, flt2 := m.translateLpgno(opts, lpgno+1, acc)
		if flt2 != nil {
			flt2.Addr = laddr
			return PhysRange{}, flt2
		}
		len1 := 0x1000 - (laddr & pageMask)
		return PhysRange{
			N:    2,
			Addr: [2]uint32{base | (laddr & pageMask), phys2 << 12},
			Len:  [2]uint32{len1, size - len1},
		}, nil
	}

	return PhysRange{N: 1, Addr: [2]uint32{base | (laddr & pageMask)}, Len: [2]uint32{size}}, nil
}

// translateLpgno returns the physical page number for a linear page number,
// consulting/refilling the TLB exactly as translate_lpgno does.
func (m *MMU) translateLpgno(opts TranslateOpts, lpgno uint32, acc Access) (uint32, *Fault) {
	idx := lpgno % tlbSize
	ent := &m.tlb[idx]

	if !ent.valid || ent.lpgno != lpgno {
		if err := m.refill(opts, lpgno, ent); err != nil {
			return 0, err
		}
	}

	wbit := 0
	if acc.Write {
		wbit = 1
	}
	ubit := 0
	if acc.User {
		ubit = 1
	}
	if ent.deny[wbit][ubit] {
		ec := uint32(pfPresent)
		if acc.Write {
			ec |= pfWrite
		}
		if acc.User {
			ec |= pfUser
		}
		ent.valid = false
		return 0, &Fault{ErrorCode: ec}
	}

	if acc.Write {
		cur := m.mem.Load8(ent.ppteAddr)
		m.mem.Store8(ent.ppteAddr, cur|0x40) // dirty bit
	}

	return ent.xaddr ^ lpgno, nil
}

// refill walks the two-level page table for lpgno and installs a TLB entry,
// mirroring tlb_refill's PDE/PTE accessed-bit and lookup-table setup.
func (m *MMU) refill(opts TranslateOpts, lpgno uint32, ent *entry) *Fault {
	pdeAddr := (opts.CR3 &^ 0xfff) + ((lpgno >> 10) & 0x3ff * 4)
	pde := m.mem.Load32(pdeAddr)
	if pde&1 == 0 {
		return &Fault{}
	}
	m.mem.Store8(pdeAddr, m.mem.Load8(pdeAddr)|0x20) // PDE accessed bit

	pteAddr := (pde &^ 0xfff) + (lpgno & 0x3ff * 4)
	pte := m.mem.Load32(pteAddr)
	if pte&1 == 0 {
		return &Fault{}
	}
	m.mem.Store8(pteAddr, m.mem.Load8(pteAddr)|0x20) // PTE accessed bit

	ent.valid = true
	ent.lpgno = lpgno
	ent.xaddr = ((pte &^ 0xfff) >> 12) ^ lpgno
	ent.ppteAddr = pteAddr

	combined := pte & ((pde & 7) | 0xfffffff8)
	ent.deny = denyFor(opts.WriteProtect, combined)

	return nil
}
