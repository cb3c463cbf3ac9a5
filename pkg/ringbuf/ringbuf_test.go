package ringbuf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, DefaultCapacity, New(-5).Cap())
	assert.Equal(t, 3, New(3).Cap())
}

func TestPushPop_FIFO(t *testing.T) {
	b := New(4)
	for i := range 3 {
		assert.False(t, b.Push(float32(i)))
	}
	assert.Equal(t, 3, b.Len())

	for i := range 3 {
		v, ok := b.Pop()
		require.True(t, ok)
		assert.Equal(t, float32(i), v)
	}

	_, ok := b.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestPush_DropsOldest(t *testing.T) {
	b := New(10)
	evictions := 0
	for i := range 19 {
		if b.Push(float32(i)) {
			evictions++
		}
	}

	assert.Equal(t, 9, evictions)
	assert.Equal(t, 10, b.Len())
	assert.Equal(t, []float32{9, 10, 11, 12, 13, 14, 15, 16, 17, 18}, b.Snapshot())
}

func TestPushPop_WrapAround(t *testing.T) {
	b := New(3)
	var got []float32
	for i := range 10 {
		b.Push(float32(i))
		if i%2 == 1 {
			v, ok := b.Pop()
			require.True(t, ok)
			got = append(got, v)
		}
	}
	for {
		v, ok := b.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}

	// Pushes 5, 7 and 9 land on a full buffer and evict 2, 4 and 6.
	assert.Equal(t, []float32{0, 1, 3, 5, 7, 8, 9}, got)
}

func TestClear(t *testing.T) {
	b := New(5)
	b.Push(1)
	b.Push(2)
	b.Clear()

	assert.Equal(t, 0, b.Len())
	_, ok := b.Pop()
	assert.False(t, ok)

	b.Push(3)
	v, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, float32(3), v)
}

func TestConcurrentPushPop(t *testing.T) {
	b := New(10)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range total {
			b.Push(float32(i))
		}
	}()

	var popped []float32
	go func() {
		defer wg.Done()
		for range total {
			if v, ok := b.Pop(); ok {
				popped = append(popped, v)
			}
		}
	}()
	wg.Wait()

	for {
		v, ok := b.Pop()
		if !ok {
			break
		}
		popped = append(popped, v)
	}

	assert.LessOrEqual(t, b.Len(), b.Cap())
	// Whatever survived must come out strictly in push order.
	for i := 1; i < len(popped); i++ {
		assert.Less(t, popped[i-1], popped[i])
	}
	require.NotEmpty(t, popped)
	assert.Equal(t, float32(total-1), popped[len(popped)-1])
}
