/*
corex86 - Machine configuration options

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

// Package machineconfig registers the machine-level config keys
// (mem_size, cpu_gen, fpu, bios, vga_bios, kernel, initrd, cmdline,
// linuxstart, enable_serial) against configparser's init-time registry, the
// same way the teacher's emu/models package registers its unit-record
// devices. Importing this package (cmd/corex86/main.go imports it by name)
// is what makes the keys recognized; Current() returns the accumulated
// result after configparser.LoadConfigFile runs.
package machineconfig

import (
	"errors"
	"strconv"
	"strings"

	config "github.com/rh1tech/corex86/config/configparser"
)

// Machine is the parsed result of every machine-config line seen so far.
// Zero value: no BIOS, no FPU, and MemSize 0, which cmd/corex86 replaces
// with its 16 MiB default.
type Machine struct {
	MemSize      uint32
	CPUGen       string
	FPU          bool
	BIOS         string
	VGABIOS      string
	Kernel       string
	Initrd       string
	Cmdline      string
	LinuxStart   uint32
	EnableSerial bool
}

var current Machine

// Current returns the machine configuration accumulated by config lines
// processed so far. Safe to call only after configparser.LoadConfigFile
// returns, mirroring the teacher's pattern of reading accumulated global
// device state only after LoadConfigFile completes.
func Current() Machine {
	return current
}

func init() {
	config.RegisterOption("mem_size", setMemSize)
	config.RegisterOption("cpu_gen", setCPUGen)
	config.RegisterSwitch("fpu", setFPU)
	config.RegisterOption("bios", setBIOS)
	config.RegisterOption("vga_bios", setVGABIOS)
	config.RegisterOption("kernel", setKernel)
	config.RegisterOption("initrd", setInitrd)
	config.RegisterOption("cmdline", setCmdline)
	config.RegisterOption("linuxstart", setLinuxStart)
	config.RegisterSwitch("enable_serial", setEnableSerial)
}

// parseSize accepts a plain byte count, or a K/M suffix (mem_size's
// <number><K|M> grammar per spec.md §6), the same suffix convention the
// teacher's config grammar documents for device addresses.
func parseSize(s string) (uint32, error) {
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.New("mem_size: invalid size: " + s)
	}
	return uint32(n * mult), nil
}

func setMemSize(_ uint16, value string, _ []config.Option) error {
	n, err := parseSize(value)
	if err != nil {
		return err
	}
	current.MemSize = n
	return nil
}

func setCPUGen(_ uint16, value string, _ []config.Option) error {
	gen := strings.ToLower(value)
	switch gen {
	case "i386", "i486", "pentium":
		current.CPUGen = gen
		return nil
	default:
		return errors.New("cpu_gen: unknown generation: " + value)
	}
}

func setFPU(_ uint16, _ string, _ []config.Option) error {
	current.FPU = true
	return nil
}

func setBIOS(_ uint16, value string, _ []config.Option) error {
	current.BIOS = value
	return nil
}

func setVGABIOS(_ uint16, value string, _ []config.Option) error {
	current.VGABIOS = value
	return nil
}

func setKernel(_ uint16, value string, _ []config.Option) error {
	current.Kernel = value
	return nil
}

func setInitrd(_ uint16, value string, _ []config.Option) error {
	current.Initrd = value
	return nil
}

func setCmdline(_ uint16, value string, _ []config.Option) error {
	current.Cmdline = value
	return nil
}

func setLinuxStart(_ uint16, value string, _ []config.Option) error {
	n, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return errors.New("linuxstart: invalid address: " + value)
	}
	current.LinuxStart = uint32(n)
	return nil
}

func setEnableSerial(_ uint16, _ string, _ []config.Option) error {
	current.EnableSerial = true
	return nil
}
