/*
corex86 - Device callback interface

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

// Package device defines the callback surface the core emulator uses to
// reach port I/O and memory-mapped I/O devices it does not itself implement
// (disk, VGA, audio, PS/2, serial). The core never imports a concrete device;
// it is always handed a Callbacks implementation at construction time.
package device

// Callbacks is the I/O surface a host wires into a Machine. Every method has
// a width-specific form because x86 IN/OUT and MMIO accesses are width
// sensitive at the bus level.
type Callbacks interface {
	IORead8(port uint16) uint8
	IORead16(port uint16) uint16
	IORead32(port uint16) uint32
	IOWrite8(port uint16, v uint8)
	IOWrite16(port uint16, v uint16)
	IOWrite32(port uint16, v uint32)

	// IOReadString/IOWriteString are an optional fast path for REP INS/OUTS.
	// Returning 0 means "not supported here", and the caller falls back to
	// one port access per element.
	IOReadString(port uint16, buf []byte) int
	IOWriteString(port uint16, buf []byte) int

	IOMemRead8(addr uint32) uint8
	IOMemRead16(addr uint32) uint16
	IOMemRead32(addr uint32) uint32
	IOMemWrite8(addr uint32, v uint8)
	IOMemWrite16(addr uint32, v uint16)
	IOMemWrite32(addr uint32, v uint32)

	// IOMemWriteString is an optional bulk MMIO write path; false means
	// "not supported here".
	IOMemWriteString(addr uint32, buf []byte) bool
}

// NullCallbacks is the zero-value Callbacks: every port/MMIO read returns
// zero and every write is swallowed. It is the default device table for a
// Machine until a host plugs in real devices.
type NullCallbacks struct{}

func (NullCallbacks) IORead8(uint16) uint8   { return 0 }
func (NullCallbacks) IORead16(uint16) uint16 { return 0 }
func (NullCallbacks) IORead32(uint16) uint32 { return 0 }
func (NullCallbacks) IOWrite8(uint16, uint8)   {}
func (NullCallbacks) IOWrite16(uint16, uint16) {}
func (NullCallbacks) IOWrite32(uint16, uint32) {}

func (NullCallbacks) IOReadString(uint16, []byte) int  { return 0 }
func (NullCallbacks) IOWriteString(uint16, []byte) int { return 0 }

func (NullCallbacks) IOMemRead8(uint32) uint8   { return 0 }
func (NullCallbacks) IOMemRead16(uint32) uint16 { return 0 }
func (NullCallbacks) IOMemRead32(uint32) uint32 { return 0 }
func (NullCallbacks) IOMemWrite8(uint32, uint8)   {}
func (NullCallbacks) IOMemWrite16(uint32, uint16) {}
func (NullCallbacks) IOMemWrite32(uint32, uint32) {}

func (NullCallbacks) IOMemWriteString(uint32, []byte) bool { return false }
