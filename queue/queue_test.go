package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"i4.energy/across/aisms/queue"
)

func TestQueueFIFO(t *testing.T) {
	q := queue.New[int]()
	for i := range 5 {
		require.NoError(t, q.Push(i))
	}
	require.Equal(t, 5, q.Len())

	for want := range 5 {
		got, err := q.Pop(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Zero(t, q.Len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := queue.New[string]()

	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push("hello"))
	select {
	case v := <-got:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}

func TestQueueClose(t *testing.T) {
	t.Run("drains before reporting closed", func(t *testing.T) {
		q := queue.New[int]()
		require.NoError(t, q.Push(1))
		require.NoError(t, q.Push(2))
		q.Close()
		q.Close()

		require.ErrorIs(t, q.Push(3), queue.ErrClosed)

		v, err := q.Pop(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, v)
		v, err = q.Pop(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, v)

		_, err = q.Pop(context.Background())
		require.ErrorIs(t, err, queue.ErrClosed)
	})

	t.Run("wakes blocked consumers", func(t *testing.T) {
		q := queue.New[int]()

		var wg sync.WaitGroup
		errs := make(chan error, 3)
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := q.Pop(context.Background())
				errs <- err
			}()
		}

		time.Sleep(10 * time.Millisecond)
		q.Close()
		wg.Wait()
		close(errs)

		for err := range errs {
			require.ErrorIs(t, err, queue.ErrClosed)
		}
	})
}

func TestQueuePopContext(t *testing.T) {
	q := queue.New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := queue.New[int]()

	const producers, perProducer = 4, 100
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				_ = q.Push(p*perProducer + i)
			}
		}()
	}
	wg.Wait()
	q.Close()

	last := make(map[int]int)
	count := 0
	for {
		v, err := q.Pop(context.Background())
		if err != nil {
			require.ErrorIs(t, err, queue.ErrClosed)
			break
		}
		producer := v / perProducer
		if prev, seen := last[producer]; seen {
			require.Greater(t, v, prev, "items from one producer must stay in order")
		}
		last[producer] = v
		count++
	}
	require.Equal(t, producers*perProducer, count)
}
