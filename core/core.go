/*
corex86 - Machine: the run loop tying CPU, MMU, memory and chipset together

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

// Package core wires one machine instance together: physical memory, the
// MMU, the CPU, the 8259 PIC pair, the 8254 PIT and the MC146818 RTC, plus
// the cycle-counted event scheduler that drives their catch-up timers. It
// is an owned value — a process can run more than one Machine, e.g. in
// tests — unlike the teacher's package-level cpu/event globals.
package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rh1tech/corex86/cmos"
	"github.com/rh1tech/corex86/cpu"
	"github.com/rh1tech/corex86/device"
	"github.com/rh1tech/corex86/event"
	"github.com/rh1tech/corex86/memory"
	"github.com/rh1tech/corex86/mmu"
	"github.com/rh1tech/corex86/pic"
	"github.com/rh1tech/corex86/pit"
)

// cyclesPerTick is how many instruction steps the run loop treats as one
// "cycle" unit for the event scheduler's Advance call — the same coarse
// accounting the teacher's CycleCPU/event.Advance pairing uses.
const cyclesPerTick = 1

// Config describes the machine to build, the Go-native equivalent of the
// mem_size/fpu config keys.
type Config struct {
	MemSize uint32
	FPU     bool
}

// Machine is one independently instantiable x86 system: its own memory, its
// own CPU, its own chipset. Nothing here is a package-level global.
type Machine struct {
	Mem    *memory.RAM
	MMU    *mmu.MMU
	CPU    *cpu.CPU
	PIC    *pic.Pair
	PIT    *pit.Timer
	RTC    *cmos.RTC
	Events *event.Scheduler

	wg      sync.WaitGroup
	done    chan struct{}
	running bool
	mu      sync.Mutex
}

// New builds a Machine with the given physical memory size, io wired in for
// anything the caller already has (VGA, disk, serial); io may be
// device.NullCallbacks{} and later replaced with Mem.SetIO.
func New(cfg Config, io device.Callbacks) *Machine {
	if io == nil {
		io = device.NullCallbacks{}
	}
	mem := memory.New(cfg.MemSize, io)
	mmuUnit := mmu.New(mem)
	m := &Machine{
		Mem:    mem,
		MMU:    mmuUnit,
		Events: &event.Scheduler{},
		done:   make(chan struct{}),
	}

	start := time.Now()
	m.PIC = pic.New(func() {
		m.CPU.RaiseIRQ(m.PIC.ReadIRQ())
	})
	m.PIT = pit.New(func() uint32 { return uint32(time.Since(start).Microseconds()) }, func(level bool) { m.PIC.SetIRQ(0, level) })
	m.RTC = cmos.New(time.Now, func(level bool) { m.PIC.SetIRQ(8, level) })
	m.CPU = cpu.New(mem, mmuUnit, io, cpu.Config{FPU: cfg.FPU})

	return m
}

// Reset returns the CPU to its power-up state and flushes the TLB. The PIC,
// PIT and RTC keep their current state, and memory is not cleared.
func (m *Machine) Reset() {
	m.CPU.Reset()
	m.MMU.Flush()
}

// Start runs the fetch/decode/execute loop on its own goroutine until Stop
// is called, pulsing the PIT/RTC catch-up logic once per step the way the
// teacher's Start pumps event.Advance once per CPU cycle count.
func (m *Machine) Start() {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.done:
				slog.Info("machine: shutdown")
				return
			default:
			}

			m.mu.Lock()
			running := m.running
			m.mu.Unlock()
			if !running {
				time.Sleep(time.Millisecond)
				continue
			}

			if !m.CPU.Step() {
				m.mu.Lock()
				m.running = false
				m.mu.Unlock()
				slog.Error("machine: cpu halted on unrecoverable fault")
				continue
			}

			m.Events.Advance(cyclesPerTick)
			m.PIT.UpdateIRQ()
			m.RTC.Tick(cyclesPerTick)
		}
	}()
}

// Stop halts the run loop and waits for it to exit, with a one-second
// timeout matching the teacher's Stop.
func (m *Machine) Stop() {
	close(m.done)
	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		slog.Warn("machine: timed out waiting for cpu goroutine to exit")
	}
}

// Pause/Resume gate the run loop without tearing down the goroutine,
// matching the teacher's running flag toggled by Start/Stop master packets.
func (m *Machine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

func (m *Machine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}
