package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRAMLoadStoreRoundTrip(t *testing.T) {
	m := New(64*1024, nil)

	m.Store8(0x10, 0x42)
	assert.Equal(t, uint8(0x42), m.Load8(0x10))

	m.Store16(0x20, 0xbeef)
	assert.Equal(t, uint16(0xbeef), m.Load16(0x20))

	m.Store32(0x30, 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), m.Load32(0x30))
}

func TestRAMOutOfRangeReadsZeroAndSwallowsWrites(t *testing.T) {
	m := New(4096, nil)

	assert.Equal(t, uint8(0), m.Load8(0x100000))
	m.Store8(0x100000, 0xff) // must not panic
	assert.Equal(t, uint8(0), m.Load8(0x100000))
}

func TestRAMWriteObserverFiresOnPageContainingWrite(t *testing.T) {
	m := New(64*1024, nil)

	var notified uint32
	var hit bool
	m.SetWriteObserver(func(phys uint32) {
		notified = phys
		hit = true
	})

	m.Store8(0x1234, 0x01)
	assert.True(t, hit)
	assert.Equal(t, uint32(0x1000), notified)
}

func TestRAMStoreBytesStraddlesRAMBoundary(t *testing.T) {
	m := New(16, nil)
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	m.StoreBytes(12, src)

	dst := make([]byte, 8)
	m.LoadBytes(12, dst)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, dst)
}
