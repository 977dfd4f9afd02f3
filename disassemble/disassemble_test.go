/*
corex86 - x86 disassembler tests

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

package disassembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisassembleNoOperand(t *testing.T) {
	cases := []struct {
		bytes []byte
		want  string
	}{
		{[]byte{0x90}, "NOP"},
		{[]byte{0xc3}, "RET"},
		{[]byte{0xf4}, "HLT"},
		{[]byte{0xcc}, "INT3"},
		{[]byte{0xcf}, "IRET"},
		{[]byte{0xf8}, "CLC"},
		{[]byte{0xfb}, "STI"},
	}
	for _, c := range cases {
		inst, n := Disassemble(c.bytes)
		assert.Equal(t, c.want, inst)
		assert.Equal(t, len(c.bytes), n)
	}
}

func TestDisassembleRegisterForms(t *testing.T) {
	inst, n := Disassemble([]byte{0x50}) // PUSH EAX
	assert.Equal(t, "PUSH   EAX", inst)
	assert.Equal(t, 1, n)

	inst, n = Disassemble([]byte{0x5b}) // POP EBX
	assert.Equal(t, "POP    EBX", inst)
	assert.Equal(t, 1, n)

	inst, n = Disassemble([]byte{0x41}) // INC ECX
	assert.Equal(t, "INC    ECX", inst)
	assert.Equal(t, 1, n)
}

func TestDisassembleMovImmediate(t *testing.T) {
	// mov eax, 0x7fffffff
	inst, n := Disassemble([]byte{0xb8, 0xff, 0xff, 0xff, 0x7f})
	assert.Equal(t, "MOV    EAX,0x7fffffff", inst)
	assert.Equal(t, 5, n)

	// mov al, 0x42
	inst, n = Disassemble([]byte{0xb0, 0x42})
	assert.Equal(t, "MOV    AL,0x42", inst)
	assert.Equal(t, 2, n)
}

func TestDisassembleModRMRegisterToRegister(t *testing.T) {
	// add eax, ecx (mod=3, reg=ecx, rm=eax) -> ADD EAX,ECX
	inst, n := Disassemble([]byte{0x01, 0xc8})
	assert.Equal(t, "ADD   EAX,ECX", inst)
	assert.Equal(t, 2, n)
}

func TestDisassembleModRMMemoryDisplacement(t *testing.T) {
	// mov eax, [ebx+0x10] -> mod=1, reg=eax, rm=ebx, disp8=0x10
	inst, n := Disassemble([]byte{0x8b, 0x43, 0x10})
	assert.Equal(t, "MOV   EAX,[EBX+0x10]", inst)
	assert.Equal(t, 3, n)
}

func TestDisassembleDisp32Absolute(t *testing.T) {
	// mov eax, [disp32] via mod=0, rm=5 -> absolute address form.
	inst, n := Disassemble([]byte{0x8b, 0x05, 0x00, 0x00, 0x10, 0x00})
	assert.Equal(t, "MOV   EAX,[0x100000]", inst)
	assert.Equal(t, 6, n)
}

func TestDisassembleGroup1Immediate(t *testing.T) {
	// cmp dword [eax], 0x5 -> 81 /7 ib..id, mod=0 rm=eax reg=7(CMP)
	inst, n := Disassemble([]byte{0x81, 0x38, 0x05, 0x00, 0x00, 0x00})
	assert.Equal(t, "CMP    [EAX],0x5", inst)
	assert.Equal(t, 6, n)
}

func TestDisassembleJccShort(t *testing.T) {
	inst, n := Disassemble([]byte{0x74, 0x05}) // JE +5
	assert.Equal(t, "JE    +5", inst)
	assert.Equal(t, 2, n)
}

func TestDisassembleTwoByteSystem(t *testing.T) {
	inst, n := Disassemble([]byte{0x0f, 0x06}) // CLTS
	assert.Equal(t, "CLTS", inst)
	assert.Equal(t, 2, n)

	// mov eax, cr0
	inst, n = Disassemble([]byte{0x0f, 0x20, 0xc0})
	assert.Equal(t, "MOV    EAX,CR0", inst)
	assert.Equal(t, 3, n)
}

func TestDisassembleUnknownOpcodeFallsBackToDB(t *testing.T) {
	inst, n := Disassemble([]byte{0x0f, 0xff})
	assert.Equal(t, "DB     0f 0xff", inst)
	assert.Equal(t, 2, n)
}

func TestDisassembleShortBufferReturnsZeroLength(t *testing.T) {
	_, n := Disassemble([]byte{0x8b})
	assert.Equal(t, 0, n)
}
