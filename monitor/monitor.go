/*
corex86 - Interactive monitor console

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

// Package monitor is the line-edited operator console: regs/seg/page-table
// inspection, breakpoints and run control, read over stdin with the same
// github.com/peterh/liner editor the teacher's command/reader used for its
// S370> prompt. Everything device/channel-shaped in the teacher's console
// (attach/detach/set/show by device number, the 3270 telnet multiplexer)
// had no x86 analog, so this package replaces that vocabulary outright
// instead of carrying it forward unused — see DESIGN.md.
package monitor

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/rh1tech/corex86/core"
	"github.com/rh1tech/corex86/mmu"
)

var regNames = [8]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

var segNames = [8]string{"es", "cs", "ss", "ds", "fs", "gs", "", "tr"}

// Console reads commands from stdin until "quit" or EOF/Ctrl-D, the same
// prompt/history/completer wiring the teacher's ConsoleReader used. It
// declines to start against a non-terminal stdin (a pipe or redirected
// file), since liner's raw-mode history editing needs a real TTY.
func Console(m *core.Machine) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println("monitor: stdin is not a terminal, console disabled")
		return
	}

	mon := &monitor{m: m, breakpoints: map[uint32]bool{}}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(mon.complete)

	for {
		cmdLine, err := line.Prompt("corex86> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			return
		}
		line.AppendHistory(cmdLine)
		if mon.dispatch(cmdLine) {
			return
		}
	}
}

type monitor struct {
	m           *core.Machine
	breakpoints map[uint32]bool
}

var commandNames = []string{"regs", "seg", "mem", "walk", "break", "unbreak", "continue", "stop", "step", "reset", "help", "quit"}

// complete offers command-name completion; none of the commands below take
// an argument worth completing against live state.
func (mon *monitor) complete(line string) []string {
	matches := []string{}
	for _, name := range commandNames {
		if strings.HasPrefix(name, line) {
			matches = append(matches, name)
		}
	}
	return matches
}

// dispatch runs one command line, returning true when the console should
// exit.
func (mon *monitor) dispatch(cmdLine string) bool {
	fields := strings.Fields(cmdLine)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		mon.help()
	case "regs":
		mon.showRegs()
	case "seg":
		mon.showSegs()
	case "mem":
		mon.showMem(args)
	case "walk":
		mon.walkPage(args)
	case "break":
		mon.setBreak(args)
	case "unbreak":
		mon.clearBreak(args)
	case "continue":
		mon.m.Resume()
		fmt.Println("running")
	case "stop":
		mon.m.Pause()
		fmt.Println("stopped")
	case "step":
		mon.step()
	case "reset":
		mon.m.Reset()
		fmt.Println("reset")
	default:
		fmt.Println("unknown command: " + cmd)
	}
	return false
}

func (mon *monitor) help() {
	fmt.Println("regs                  show general registers, EIP, EFLAGS, CPL")
	fmt.Println("seg                   show segment register cache (selector/base/limit/dpl)")
	fmt.Println("mem <seg> <off> <n>   dump n bytes at seg:off")
	fmt.Println("walk <laddr>          walk the page tables for a linear address")
	fmt.Println("break <eip>           set a breakpoint at a linear EIP (checked each step)")
	fmt.Println("unbreak <eip>         clear a breakpoint")
	fmt.Println("continue|stop|step    run control")
	fmt.Println("reset                 reset the machine")
	fmt.Println("quit                  leave the console (machine keeps running)")
}

func (mon *monitor) showRegs() {
	st := mon.m.CPU.Snapshot()
	for i, v := range st.Regs {
		fmt.Printf("%-4s=%08x  ", regNames[i], v)
		if i%4 == 3 {
			fmt.Println()
		}
	}
	mode := "real"
	switch {
	case st.VM:
		mode = "v8086"
	case st.CR0&1 != 0:
		mode = "protected"
	}
	fmt.Printf("eip=%08x eflags=%08x cpl=%d mode=%s halted=%v\n", st.EIP, st.EFlags, st.CPL, mode, st.Halted)
	fmt.Printf("cr0=%08x cr2=%08x cr3=%08x\n", st.CR0, st.CR2, st.CR3)
}

func (mon *monitor) showSegs() {
	st := mon.m.CPU.Snapshot()
	for i, seg := range st.Seg {
		if segNames[i] == "" {
			continue
		}
		fmt.Printf("%-3s sel=%04x base=%08x limit=%08x dpl=%d d=%v present=%v\n",
			segNames[i], seg.Selector, seg.Base, seg.Limit, seg.DPL, seg.DBit, seg.Present)
	}
	fmt.Printf("gdt base=%08x limit=%04x  idt base=%08x limit=%04x\n", st.GDT.Base, st.GDT.Limit, st.IDT.Base, st.IDT.Limit)
}

func segIndex(name string) (int, bool) {
	for i, n := range segNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

func (mon *monitor) showMem(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: mem <seg> <off-hex> <n>")
		return
	}
	segN, ok := segIndex(args[0])
	if !ok {
		fmt.Println("unknown segment: " + args[0])
		return
	}
	off, err := strconv.ParseUint(args[1], 16, 32)
	if err != nil {
		fmt.Println("bad offset: " + args[1])
		return
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 {
		fmt.Println("bad length: " + args[2])
		return
	}

	laddr := mon.m.CPU.LinearAddress(segN, uint32(off))
	buf := make([]byte, n)
	mon.m.Mem.LoadBytes(laddr, buf)
	for i := 0; i < n; i += 16 {
		end := min(i+16, n)
		fmt.Printf("%08x: % x\n", laddr+uint32(i), buf[i:end])
	}
}

// walkPage translates a linear address through MMU.Translate, the same path
// (TLB refill included) the CPU uses, and prints the resulting physical
// address or the page-fault error code; the PDE and PTE are not shown.
func (mon *monitor) walkPage(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: walk <laddr-hex>")
		return
	}
	laddr64, err := strconv.ParseUint(args[0], 16, 32)
	if err != nil {
		fmt.Println("bad address: " + args[0])
		return
	}
	laddr := uint32(laddr64)

	if !mon.m.CPU.PagingOn() {
		fmt.Printf("paging disabled: %08x -> %08x (identity)\n", laddr, laddr)
		return
	}

	opts := mmu.TranslateOpts{PagingEnabled: true, WriteProtect: mon.m.CPU.WriteProtect(), CR3: mon.m.CPU.CR3Value()}
	r, flt := mon.m.MMU.Translate(opts, laddr, 1, mmu.Access{})
	if flt != nil {
		fmt.Printf("%08x -> page fault, error=%#x\n", laddr, flt.ErrorCode)
		return
	}
	fmt.Printf("%08x -> %08x\n", laddr, r.Addr[0])
}

func (mon *monitor) setBreak(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: break <eip-hex>")
		return
	}
	addr, err := strconv.ParseUint(args[0], 16, 32)
	if err != nil {
		fmt.Println("bad address: " + args[0])
		return
	}
	mon.breakpoints[uint32(addr)] = true
	fmt.Printf("breakpoint set at %08x\n", addr)
}

func (mon *monitor) clearBreak(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: unbreak <eip-hex>")
		return
	}
	addr, err := strconv.ParseUint(args[0], 16, 32)
	if err != nil {
		fmt.Println("bad address: " + args[0])
		return
	}
	delete(mon.breakpoints, uint32(addr))
}

// step single-steps the CPU while the run loop is paused, stopping early if
// the new EIP lands on a breakpoint.
func (mon *monitor) step() {
	mon.m.Pause()
	if !mon.m.CPU.Step() {
		fmt.Println("cpu halted on unrecoverable fault")
		return
	}
	st := mon.m.CPU.Snapshot()
	if mon.breakpoints[st.EIP] {
		fmt.Printf("hit breakpoint at %08x\n", st.EIP)
	}
	fmt.Printf("eip=%08x\n", st.EIP)
}
