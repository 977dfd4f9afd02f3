/*
corex86 - Debug options configuration.

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

package debugconfig

import (
	"errors"
	"strings"

	config "github.com/rh1tech/corex86/config/configparser"
	"github.com/rh1tech/corex86/cpu"
)

// register a debug option on initialize, same registration-from-init
// pattern the teacher uses for its unit-record devices.
func init() {
	config.RegisterOption("debug", setDebug)
}

// setDebug maps a category name from cpudefs.go's DebugOption table (CMD,
// INST, DATA, DETAIL, IO, IRQ) to its bit and ORs it into cpu.DebugMask.
// "debug" is registered with RegisterOption, whose lines take one name and
// no comma list, so several categories take several debug lines.
func setDebug(_ uint16, value string, options []config.Option) error {
	mask, err := maskFor(value)
	if err != nil {
		return err
	}

	for _, opt := range options {
		m, err := maskFor(opt.Name)
		if err != nil {
			return err
		}
		mask |= m
		for _, v := range opt.Value {
			m, err := maskFor(*v)
			if err != nil {
				return err
			}
			mask |= m
		}
	}

	cpu.DebugMask |= mask
	return nil
}

func maskFor(name string) (int, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0, nil
	}
	bit, ok := cpu.DebugOption[name]
	if !ok {
		return 0, errors.New("debug option invalid: " + name)
	}
	return bit, nil
}
