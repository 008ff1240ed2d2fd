package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialDeliversSynchronouslyWhenIdle(t *testing.T) {
	var got []int
	s := NewSerial(func(v int) { got = append(got, v) })

	s.Push(1)
	assert.Equal(t, []int{1}, got)
	s.Push(2)
	assert.Equal(t, []int{1, 2}, got)
}

func TestSerialReentrantPushIsQueued(t *testing.T) {
	var (
		got []int
		s   *Serial[int]
	)
	s = NewSerial(func(v int) {
		got = append(got, v)
		if v < 3 {
			s.Push(v + 10)
			s.Push(v + 1)
		}
	})

	s.Push(1)
	assert.Equal(t, []int{1, 11, 2, 12, 3}, got)
}

func TestSerialCloseStopsDelivery(t *testing.T) {
	var (
		got []int
		s   *Serial[int]
	)
	s = NewSerial(func(v int) {
		got = append(got, v)
		if v == 1 {
			s.Push(2)
			s.Close()
		}
	})

	s.Push(1)
	s.Push(3)
	assert.Equal(t, []int{1}, got)
	assert.True(t, s.Closed())
}

func TestSerialConcurrentPushesAreNotInterleaved(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		overlap bool
		count   int
	)
	s := NewSerial(func(int) {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()

		mu.Lock()
		active--
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s.Push(v)
		}(i)
	}
	wg.Wait()

	assert.False(t, overlap)
	assert.Equal(t, 50, count)
}
