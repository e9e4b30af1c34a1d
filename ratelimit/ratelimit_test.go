package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jeopardybot/ratelimit"
)

func TestWaitReturnsImmediatelyForFreshChat(t *testing.T) {
	l := ratelimit.New()
	start := time.Now()
	assert.NoError(t, l.Wait(context.Background(), 1))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBlockReservesSlot(t *testing.T) {
	l := ratelimit.New()
	l.Block(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseGivesOneSecondGap(t *testing.T) {
	l := ratelimit.New()
	l.Release(1)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, l.Wait(ctx, 1))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestGuardedSerializesPerChat(t *testing.T) {
	l := ratelimit.New()
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Guarded(context.Background(), 42, func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()
	assert.Len(t, order, 3)
}

func TestDifferentChatsDoNotBlockEachOther(t *testing.T) {
	l := ratelimit.New()
	l.Block(1)

	start := time.Now()
	assert.NoError(t, l.Wait(context.Background(), 2))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
