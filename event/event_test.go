package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerFiresInOrder(t *testing.T) {
	var s Scheduler
	var fired []int

	s.Add(func(arg int) { fired = append(fired, arg) }, 10, 1)
	s.Add(func(arg int) { fired = append(fired, arg) }, 5, 2)
	s.Add(func(arg int) { fired = append(fired, arg) }, 20, 3)

	s.Advance(5)
	assert.Equal(t, []int{2}, fired)

	s.Advance(5)
	assert.Equal(t, []int{2, 1}, fired)

	s.Advance(10)
	assert.Equal(t, []int{2, 1, 3}, fired)
	assert.False(t, s.Pending())
}

func TestSchedulerCancel(t *testing.T) {
	var s Scheduler
	var fired []int
	s.Add(func(arg int) { fired = append(fired, arg) }, 10, 1)
	s.Add(func(arg int) { fired = append(fired, arg) }, 15, 2)

	s.Cancel(1)
	s.Advance(20)
	assert.Equal(t, []int{2}, fired)
}

func TestSchedulerZeroDelayFiresImmediately(t *testing.T) {
	var s Scheduler
	ran := false
	s.Add(func(int) { ran = true }, 0, 0)
	assert.True(t, ran)
}
