package queue

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOSingleProducer(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	done := make(chan int, 1)
	go func() {
		v, ok := q.Pop()
		if ok {
			done <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestCloseUnblocksConsumerWithinBoundedTime(t *testing.T) {
	q := New[int]()
	start := make(chan struct{})
	done := make(chan bool, 1)
	go func() {
		close(start)
		_, ok := q.Pop()
		done <- ok
	}()

	<-start
	time.Sleep(10 * time.Millisecond) // let the goroutine reach Pop()
	closedAt := time.Now()
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
		assert.Less(t, time.Since(closedAt), 100*time.Millisecond)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Pop did not return within 100ms of Close")
	}
}

func TestPushAfterCloseIsNoop(t *testing.T) {
	q := New[int]()
	q.Close()
	q.Push(2)

	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestCloseDrainsRemainingThenSentinel(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestPopTimeoutReturnsAbsent(t *testing.T) {
	q := New[int]()
	start := time.Now()
	_, ok := q.PopTimeout(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestTryPopNonBlocking(t *testing.T) {
	q := New[int]()
	_, ok := q.TryPop()
	assert.False(t, ok)

	q.Push(7)
	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestMultiProducerExactlyOnceDelivery(t *testing.T) {
	q := New[int]()
	const producers = 4
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	seen := make([]int, 0, producers*perProducer)
	for i := 0; i < producers*perProducer; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		seen = append(seen, v)
	}

	sort.Ints(seen)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestSizeAndEmpty(t *testing.T) {
	q := New[string]()
	assert.True(t, q.Empty())
	assert.Equal(t, 0, q.Size())

	q.Push("a")
	q.Push("b")
	assert.False(t, q.Empty())
	assert.Equal(t, 2, q.Size())
}
