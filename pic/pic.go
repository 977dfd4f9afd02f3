/*
corex86 - 8259A programmable interrupt controller pair

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

// Package pic implements a cascaded pair of 8259A interrupt controllers:
// edge-triggered IRQ lines, ICW1-4 initialization, OCW2 EOI (specific,
// non-specific, rotating), OCW3 poll/read-register-select/special-mask, and
// master/slave cascade on IRQ2.
package pic

import "log/slog"

type controller struct {
	lastIRR                 uint8
	irr                     uint8
	imr                     uint8
	isr                     uint8
	priorityAdd             uint8
	irqBase                 uint8
	readRegSelect           uint8
	poll                    bool
	specialMask             bool
	initState               uint8
	autoEOI                 bool
	rotateOnAutoEOI         bool
	specialFullyNestedMode  bool
	init4                   bool
	singleMode              bool
}

func (s *controller) reset() {
	*s = controller{}
}

// setIRQ1 applies edge-triggered detection to one IRQ line.
func (s *controller) setIRQ1(irq int, level bool) {
	mask := uint8(1) << uint(irq)
	if level {
		if s.lastIRR&mask == 0 {
			s.irr |= mask
		}
		s.lastIRR |= mask
	} else {
		s.lastIRR &^= mask
	}
}

// priority returns the highest priority line set in mask (0 = highest),
// rotated by priorityAdd; 8 means none set.
func (s *controller) priority(mask uint8) int {
	if mask == 0 {
		return 8
	}
	p := 0
	for mask&(1<<((uint(p)+uint(s.priorityAdd))&7)) == 0 {
		p++
	}
	return p
}

// wantedIRQ returns the highest-priority pending, unmasked IRQ not already
// beaten by one in service, or -1 if none.
func (s *controller) wantedIRQ(isMaster bool) int {
	mask := s.irr &^ s.imr
	prio := s.priority(mask)
	if prio == 8 {
		return -1
	}

	curMask := s.isr
	if s.specialMask {
		curMask &^= s.imr
	}
	if s.specialFullyNestedMode && isMaster {
		curMask &^= 1 << 2
	}
	curPrio := s.priority(curMask)
	if prio < curPrio {
		return int((uint(prio) + uint(s.priorityAdd)) & 7)
	}
	return -1
}

func (s *controller) intack(irq int) {
	if s.autoEOI {
		if s.rotateOnAutoEOI {
			s.priorityAdd = uint8((irq + 1) & 7)
		}
	} else {
		s.isr |= 1 << uint(irq)
	}
	s.irr &^= 1 << uint(irq)
}

// Pair is a cascaded master/slave 8259A pair, with the slave's INT line
// wired into the master's IRQ2.
type Pair struct {
	master, slave controller
	raise         func()
}

// New creates a Pair. raise is invoked, synchronously, whenever the master's
// wanted IRQ may have changed and at least one is pending — it should signal
// the CPU's INTR line; the actual vector is fetched via ReadIRQ.
func New(raise func()) *Pair {
	p := &Pair{raise: raise}
	p.master.reset()
	p.slave.reset()
	return p
}

func (p *Pair) ctrl(master bool) *controller {
	if master {
		return &p.master
	}
	return &p.slave
}

// updateIRQ recomputes whether the CPU's INTR line should be asserted; it
// must run after anything that can change either controller's wanted IRQ.
func (p *Pair) updateIRQ() {
	if irq2 := p.slave.wantedIRQ(false); irq2 >= 0 {
		p.master.setIRQ1(2, true)
		p.master.setIRQ1(2, false)
	}
	if p.master.wantedIRQ(true) >= 0 && p.raise != nil {
		p.raise()
	}
}

// SetIRQ raises or lowers IRQ line irq (0-15, 8-15 on the slave).
func (p *Pair) SetIRQ(irq int, level bool) {
	p.ctrl(irq < 8).setIRQ1(irq&7, level)
	p.updateIRQ()
}

// ReadIRQ acknowledges the highest-priority pending IRQ and returns its
// fully resolved interrupt vector (irq_base + line number), handling the
// cascade and spurious-IRQ (7) cases exactly as the reference does.
func (p *Pair) ReadIRQ() uint8 {
	irq := p.master.wantedIRQ(true)
	var vector uint8
	if irq >= 0 {
		p.master.intack(irq)
		if irq == 2 {
			irq2 := p.slave.wantedIRQ(false)
			if irq2 >= 0 {
				p.slave.intack(irq2)
			} else {
				irq2 = 7 // spurious on slave
			}
			vector = p.slave.irqBase + uint8(irq2)
		} else {
			vector = p.master.irqBase + uint8(irq)
		}
	} else {
		vector = p.master.irqBase + 7 // spurious on master
	}
	p.updateIRQ()
	return vector
}

// WriteCommand handles a write to the command port (offset 0 of a pair,
// i.e. port 0x20/0xA0).
func (p *Pair) WriteCommand(master bool, val uint8) {
	s := p.ctrl(master)
	switch {
	case val&0x10 != 0: // ICW1
		s.reset()
		s.initState = 1
		s.init4 = val&1 != 0
		s.singleMode = val&2 != 0
		if val&0x08 != 0 {
			slog.Error("pic: level-sensitive IRQ requested, unsupported", slog.Bool("master", master))
		}
	case val&0x08 != 0: // OCW3
		if val&0x04 != 0 {
			s.poll = true
		}
		if val&0x02 != 0 {
			s.readRegSelect = val & 1
		}
		if val&0x40 != 0 {
			s.specialMask = (val>>5)&1 != 0
		}
	default: // OCW2
		cmd := val >> 5
		switch cmd {
		case 0, 4:
			s.rotateOnAutoEOI = cmd>>2 != 0
		case 1, 5: // non-specific EOI, with rotate on 5
			prio := s.priority(s.isr)
			if prio != 8 {
				irq := int((uint(prio) + uint(s.priorityAdd)) & 7)
				s.isr &^= 1 << uint(irq)
				if cmd == 5 {
					s.priorityAdd = uint8((irq + 1) & 7)
				}
				p.updateIRQ()
			}
		case 3: // specific EOI
			irq := int(val & 7)
			s.isr &^= 1 << uint(irq)
			p.updateIRQ()
		case 6: // set priority
			s.priorityAdd = uint8((val + 1) & 7)
			p.updateIRQ()
		case 7: // rotate on specific EOI
			irq := int(val & 7)
			s.isr &^= 1 << uint(irq)
			s.priorityAdd = uint8((irq + 1) & 7)
			p.updateIRQ()
		}
	}
}

// WriteData handles a write to the data port (offset 1, i.e. port
// 0x21/0xA1): IMR in normal operation, else ICW2-4 during initialization.
func (p *Pair) WriteData(master bool, val uint8) {
	s := p.ctrl(master)
	switch s.initState {
	case 0:
		s.imr = val
		p.updateIRQ()
	case 1: // ICW2
		s.irqBase = val & 0xf8
		if s.singleMode {
			if s.init4 {
				s.initState = 3
			} else {
				s.initState = 0
			}
		} else {
			s.initState = 2
		}
	case 2: // ICW3
		if s.init4 {
			s.initState = 3
		} else {
			s.initState = 0
		}
	case 3: // ICW4
		s.specialFullyNestedMode = (val>>4)&1 != 0
		s.autoEOI = (val>>1)&1 != 0
		s.initState = 0
	}
}

// ReadCommand reads the command port: poll response, or IRR/ISR per OCW3's
// read-register-select.
func (p *Pair) ReadCommand(master bool) uint8 {
	s := p.ctrl(master)
	if s.poll {
		s.poll = false
		return p.pollRead(master)
	}
	if s.readRegSelect != 0 {
		return s.isr
	}
	return s.irr
}

// ReadData reads the data port: the IMR.
func (p *Pair) ReadData(master bool) uint8 {
	return p.ctrl(master).imr
}

func (p *Pair) pollRead(master bool) uint8 {
	s := p.ctrl(master)
	irq := s.wantedIRQ(master)
	if irq < 0 {
		p.updateIRQ()
		return 0x07
	}
	if master && irq == 2 {
		// Cascade: fold in the slave's ack too, per addr1>>7 in the source.
		p.master.isr &^= 1 << 2
		p.master.irr &^= 1 << 2
	}
	s.irr &^= 1 << uint(irq)
	s.isr &^= 1 << uint(irq)
	p.updateIRQ()
	return uint8(irq)
}
