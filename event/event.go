/*
corex86 - Cycle/deadline event scheduler

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

// Package event implements a cycle-counted, linked-list event queue: each
// entry stores its delay relative to the entry before it, so advancing time
// is a single subtract-and-fire walk from the head instead of a scan of
// absolute deadlines. core.Machine advances its Scheduler once per step; the
// PIT and CMOS are polled directly by that loop and schedule nothing here.
package event

// Callback is invoked when a scheduled event's remaining time reaches zero.
type Callback func(arg int)

type entry struct {
	time int
	cb   Callback
	arg  int
	prev *entry
	next *entry
}

// Scheduler is one machine's event queue. The zero value is ready to use.
type Scheduler struct {
	head, tail *entry
}

// Add schedules cb to fire after delay clock units (cycles or
// microseconds — the caller picks the unit and is consistent about it
// across every Add/Advance pair). A delay of 0 invokes cb immediately. arg
// also serves as Cancel's matching key, so callers should pass a value
// unique to the event being scheduled.
func (s *Scheduler) Add(cb Callback, delay int, arg int) {
	if delay <= 0 {
		cb(arg)
		return
	}

	ev := &entry{cb: cb, time: delay, arg: arg}

	cur := s.head
	if cur == nil {
		s.head = ev
		s.tail = ev
		return
	}

	for cur != nil {
		if ev.time <= cur.time {
			cur.time -= ev.time
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				s.head = ev
			}
			return
		}
		ev.time -= cur.time
		cur = cur.next
	}

	ev.prev = s.tail
	s.tail.next = ev
	s.tail = ev
}

// Cancel removes every pending event scheduled with the given arg.
func (s *Scheduler) Cancel(arg int) {
	cur := s.head
	for cur != nil {
		next := cur.next
		if cur.arg == arg {
			if next != nil {
				next.time += cur.time
				next.prev = cur.prev
			} else {
				s.tail = cur.prev
			}
			if cur.prev != nil {
				cur.prev.next = next
			} else {
				s.head = next
			}
		}
		cur = next
	}
}

// Pending reports whether any event is scheduled.
func (s *Scheduler) Pending() bool {
	return s.head != nil
}

// Advance moves the clock forward by t units, firing every event whose
// remaining time reaches zero or below, in order.
func (s *Scheduler) Advance(t int) {
	cur := s.head
	if cur == nil {
		return
	}
	cur.time -= t
	for cur != nil && cur.time <= 0 {
		over := cur.time
		cur.cb(cur.arg)
		s.head = cur.next
		cur = s.head
		if cur != nil {
			cur.prev = nil
			cur.time += over
		} else {
			s.tail = nil
		}
	}
}
