package locktable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func hold(l *Table, seconds int, endSignal chan<- bool) {
	l.Lock(1)
	defer l.Unlock(1)
	l.Lock(2)
	defer l.Unlock(2)
	time.Sleep(time.Duration(seconds) * time.Second)
	endSignal <- true
}

func TestLockTable(t *testing.T) {
	var end bool
	table := New(10)
	endSignal := make(chan bool, 1)
	go hold(table, 1, endSignal)
	for !end {
		select {
		case end = <-endSignal:
		case <-time.After(2 * time.Second):
			t.Error("TestLockTable failed")
			end = true
		}
	}
}

func TestTryLock(t *testing.T) {
	table := New(4)
	table.Lock(3)
	assert.False(t, table.TryLock(3))
	assert.False(t, table.TryRLock(3))
	assert.True(t, table.TryLock(2))
	table.Unlock(2)
	table.Unlock(3)

	table.RLock(0)
	assert.True(t, table.TryRLock(0))
	assert.False(t, table.TryLock(0))
	table.RUnlock(0)
	table.RUnlock(0)
	assert.True(t, table.TryLock(0))
	table.Unlock(0)
}

func TestIndependentKeys(t *testing.T) {
	table := New(2)
	assert.Equal(t, 2, table.Size())
	table.Lock(0)
	done := make(chan struct{})
	go func() {
		table.Lock(1)
		table.Unlock(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock 1 blocked by lock 0")
	}
	table.Unlock(0)
}
