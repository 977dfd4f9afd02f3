/*
corex86 - Machine configuration tests

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

package machineconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSizePlainAndSuffixed(t *testing.T) {
	n, err := parseSize("1024")
	assert.NoError(t, err)
	assert.Equal(t, uint32(1024), n)

	n, err = parseSize("16M")
	assert.NoError(t, err)
	assert.Equal(t, uint32(16*1024*1024), n)

	n, err = parseSize("4k")
	assert.NoError(t, err)
	assert.Equal(t, uint32(4*1024), n)

	_, err = parseSize("not-a-number")
	assert.Error(t, err)
}

func TestSetMemSize(t *testing.T) {
	current = Machine{}
	assert.NoError(t, setMemSize(0, "16M", nil))
	assert.Equal(t, uint32(16*1024*1024), Current().MemSize)

	assert.Error(t, setMemSize(0, "bogus", nil))
}

func TestSetCPUGenRejectsUnknown(t *testing.T) {
	current = Machine{}
	assert.NoError(t, setCPUGen(0, "i486", nil))
	assert.Equal(t, "i486", Current().CPUGen)

	assert.Error(t, setCPUGen(0, "z80", nil))
}

func TestSetFPUSwitch(t *testing.T) {
	current = Machine{}
	assert.False(t, Current().FPU)
	assert.NoError(t, setFPU(0, "", nil))
	assert.True(t, Current().FPU)
}

func TestSetBIOSKernelInitrdCmdline(t *testing.T) {
	current = Machine{}
	assert.NoError(t, setBIOS(0, "bios.bin", nil))
	assert.NoError(t, setVGABIOS(0, "vgabios.bin", nil))
	assert.NoError(t, setKernel(0, "vmlinuz", nil))
	assert.NoError(t, setInitrd(0, "initrd.img", nil))
	assert.NoError(t, setCmdline(0, "console=ttyS0", nil))

	mc := Current()
	assert.Equal(t, "bios.bin", mc.BIOS)
	assert.Equal(t, "vgabios.bin", mc.VGABIOS)
	assert.Equal(t, "vmlinuz", mc.Kernel)
	assert.Equal(t, "initrd.img", mc.Initrd)
	assert.Equal(t, "console=ttyS0", mc.Cmdline)
}

func TestSetLinuxStart(t *testing.T) {
	current = Machine{}
	assert.NoError(t, setLinuxStart(0, "0x100000", nil))
	assert.Equal(t, uint32(0x100000), Current().LinuxStart)

	assert.Error(t, setLinuxStart(0, "nope", nil))
}

func TestSetEnableSerial(t *testing.T) {
	current = Machine{}
	assert.False(t, Current().EnableSerial)
	assert.NoError(t, setEnableSerial(0, "", nil))
	assert.True(t, Current().EnableSerial)
}
