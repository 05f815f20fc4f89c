package workflow

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	// GIVEN: invoice:1 is held
	// WHEN: A second caller asks for invoice:1 with a short deadline
	// THEN: It gives up, while invoice:2 is free

	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "invoice:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "invoice:1")
	assert.ErrorIs(t, err, ErrLockNotObtained)

	other, err := k.Lock(context.Background(), "invoice:2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := k.Lock(context.Background(), "invoice:1")
	require.NoError(t, err)
	again()
	again()

	assert.Empty(t, k.locks)
}

func TestKeyedMutex_NoOverlap(t *testing.T) {
	k := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "invoice:7")
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, k.locks)
}

func TestRematchQueue_DrainsOnStop(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int64
	)
	q := NewRematchQueue(2, 10, func(_ context.Context, id int64) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	}, quietLog())

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), i))
	}
	q.Start()
	q.Stop()

	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, seen)
	assert.ErrorIs(t, q.Enqueue(context.Background(), 6), ErrQueueClosed)
	q.Stop()
}
