// Package ratelimit implements the per-chat send throttle of §4.2: a
// monotonic "next allowed send" instant per chat, mutated under a
// short-held mutex with the actual suspension happening outside the
// lock (§5).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	blockDuration   = 100 * time.Second
	releaseDuration = 1 * time.Second
)

// Limiter maps chat_id -> next_send_instant. Construct one with New;
// the zero value has no map and is not ready to use.
type Limiter struct {
	mu   sync.Mutex
	next map[int64]time.Time
}

func New() *Limiter {
	return &Limiter{next: make(map[int64]time.Time)}
}

// Wait suspends the caller until now >= next_send_instant[chat]. It
// computes the deadline under the lock and sleeps outside it, so no
// suspension ever occurs while the lock is held.
func (l *Limiter) Wait(ctx context.Context, chat int64) error {
	l.mu.Lock()
	deadline, ok := l.next[chat]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Block reserves the chat's slot for a pending multi-step call:
// next_send_instant = now + 100s.
func (l *Limiter) Block(chat int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next[chat] = time.Now().Add(blockDuration)
}

// Release sets the standard post-call gap: next_send_instant = now + 1s.
func (l *Limiter) Release(chat int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next[chat] = time.Now().Add(releaseDuration)
}

// Guarded runs fn under the wait -> block -> call -> release pattern
// every privileged send/edit/kick/invite-link call follows (§4.2).
func (l *Limiter) Guarded(ctx context.Context, chat int64, fn func(context.Context) error) error {
	if err := l.Wait(ctx, chat); err != nil {
		return err
	}
	l.Block(chat)
	defer l.Release(chat)
	return fn(ctx)
}
