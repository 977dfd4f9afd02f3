/*
corex86 - Physical memory and MMIO dispatch

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

// Package memory implements the byte-level physical memory accessor: a flat
// RAM region plus dispatch to the MMIO callback surface for everything above
// it. Unlike the S370 teacher's package-level global, an instance is an owned
// value so more than one machine can exist in a process (e.g. in tests).
package memory

import (
	"encoding/binary"

	"github.com/rh1tech/corex86/device"
)

const pageSize = 4096

// RAM is the physical address space of one machine: a contiguous byte slice
// for installed RAM, and everything above/outside it routed to an MMIO
// callback table. Addresses outside both RAM and the callback's accepted
// range read as zero and swallow writes.
type RAM struct {
	bytes   []byte
	size    uint32
	io      device.Callbacks
	onWrite func(phys uint32)
}

// New allocates size bytes of RAM, backed by io for any address at or above
// size. io may be device.NullCallbacks{} when no MMIO devices are wired yet.
func New(size uint32, io device.Callbacks) *RAM {
	if io == nil {
		io = device.NullCallbacks{}
	}
	return &RAM{bytes: make([]byte, size), size: size, io: io}
}

// Size returns the number of RAM bytes backing the address space.
func (m *RAM) Size() uint32 { return m.size }

// SetIO swaps the MMIO callback table, used when a host plugs real devices
// into a machine built with device.NullCallbacks.
func (m *RAM) SetIO(io device.Callbacks) {
	if io == nil {
		io = device.NullCallbacks{}
	}
	m.io = io
}

// SetWriteObserver registers a callback invoked, page-aligned, whenever a
// physical RAM write lands on the given page — the cpu package uses this to
// invalidate its one-slot instruction fetch cache on self-modifying code.
func (m *RAM) SetWriteObserver(f func(phys uint32)) {
	m.onWrite = f
}

func (m *RAM) notify(addr uint32) {
	if m.onWrite != nil {
		m.onWrite(addr &^ (pageSize - 1))
	}
}

// Load8 reads one byte of physical memory.
func (m *RAM) Load8(addr uint32) uint8 {
	if addr < m.size {
		return m.bytes[addr]
	}
	return m.io.IOMemRead8(addr)
}

// Load16 reads two bytes, little-endian, of physical memory.
func (m *RAM) Load16(addr uint32) uint16 {
	if uint64(addr)+2 <= uint64(m.size) {
		return binary.LittleEndian.Uint16(m.bytes[addr:])
	}
	return uint16(m.Load8(addr)) | uint16(m.Load8(addr+1))<<8
}

// Load32 reads four bytes, little-endian, of physical memory.
func (m *RAM) Load32(addr uint32) uint32 {
	if uint64(addr)+4 <= uint64(m.size) {
		return binary.LittleEndian.Uint32(m.bytes[addr:])
	}
	return uint32(m.Load16(addr)) | uint32(m.Load16(addr+2))<<16
}

// Store8 writes one byte of physical memory.
func (m *RAM) Store8(addr uint32, v uint8) {
	if addr < m.size {
		m.bytes[addr] = v
		m.notify(addr)
		return
	}
	m.io.IOMemWrite8(addr, v)
}

// Store16 writes two bytes, little-endian, of physical memory.
func (m *RAM) Store16(addr uint32, v uint16) {
	if uint64(addr)+2 <= uint64(m.size) {
		binary.LittleEndian.PutUint16(m.bytes[addr:], v)
		m.notify(addr)
		return
	}
	m.io.IOMemWrite16(addr, v)
}

// Store32 writes four bytes, little-endian, of physical memory.
func (m *RAM) Store32(addr uint32, v uint32) {
	if uint64(addr)+4 <= uint64(m.size) {
		binary.LittleEndian.PutUint32(m.bytes[addr:], v)
		m.notify(addr)
		return
	}
	m.io.IOMemWrite32(addr, v)
}

// LoadBytes copies a run of physical memory into dst, straddling the RAM/MMIO
// boundary byte-by-byte when necessary.
func (m *RAM) LoadBytes(addr uint32, dst []byte) {
	if uint64(addr)+uint64(len(dst)) <= uint64(m.size) {
		copy(dst, m.bytes[addr:])
		return
	}
	for i := range dst {
		dst[i] = m.Load8(addr + uint32(i))
	}
}

// StoreBytes copies src into physical memory, straddling the RAM/MMIO
// boundary byte-by-byte when necessary, and tries the bulk MMIO path first
// when the whole run lands outside RAM.
func (m *RAM) StoreBytes(addr uint32, src []byte) {
	if uint64(addr)+uint64(len(src)) <= uint64(m.size) {
		copy(m.bytes[addr:], src)
		m.notify(addr)
		m.notify(addr + uint32(len(src)) - 1)
		return
	}
	if addr >= m.size && m.io.IOMemWriteString(addr, src) {
		return
	}
	for i, b := range src {
		m.Store8(addr+uint32(i), b)
	}
}
