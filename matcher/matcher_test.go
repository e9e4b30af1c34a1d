package matcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jeopardybot/model"
	"jeopardybot/topics"
)

type noBans struct{}

func (noBans) IsBanned(a, b int64) (bool, error) { return false, nil }

type pairBans struct{ a, b int64 }

func (p pairBans) IsBanned(a, b int64) (bool, error) {
	return (a == p.a && b == p.b) || (a == p.b && b == p.a), nil
}

type alwaysFeasible struct{ topicCount int }

func (c alwaysFeasible) Candidates(users []int64) ([]topics.PackageCandidate, error) {
	return []topics.PackageCandidate{{
		PackageID:  "p1",
		TopicCount: c.topicCount,
		Played:     map[int64]topics.PlayedBitmap{},
		Blocked:    map[int64]bool{},
	}}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	expired  []int64
	resized  []int64
}

func (n *recordingNotifier) QueueSizeChanged(userID int64, messageID int, waitingCount int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resized = append(n.resized, userID)
}

func (n *recordingNotifier) Expired(userID int64, messageID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, userID)
}

func user(id int64, rating uint32) model.User {
	return model.User{UserID: id, Rating: rating}
}

func TestEnqueueRefreshesActivityPreservesEnqueuedAt(t *testing.T) {
	m := New(noBans{}, alwaysFeasible{topicCount: 10}, &recordingNotifier{}, nil)
	base := time.Unix(1000, 0)
	m.now = func() time.Time { return base }
	m.Enqueue(user(1, 15000), 1)
	first := m.waiting[0].EnqueuedAt

	m.now = func() time.Time { return base.Add(5 * time.Second) }
	m.Enqueue(user(1, 15000), 2)
	require.Len(t, m.waiting, 1)
	assert.Equal(t, first, m.waiting[0].EnqueuedAt, "re-enqueue must preserve EnqueuedAt")
	assert.Equal(t, base.Add(5*time.Second), m.waiting[0].LastActivityAt)
}

func TestDequeueIsIdempotent(t *testing.T) {
	m := New(noBans{}, alwaysFeasible{topicCount: 10}, &recordingNotifier{}, nil)
	m.Enqueue(user(1, 15000), 0)
	m.Dequeue(1)
	m.Dequeue(1)
	assert.Equal(t, 0, m.QueueSize())
}

func TestFourPlayerMatchWithinTolerance(t *testing.T) {
	notifier := &recordingNotifier{}
	m := New(noBans{}, alwaysFeasible{topicCount: 10}, notifier, nil)
	base := time.Unix(0, 0)
	m.now = func() time.Time { return base }
	for i := int64(1); i <= 4; i++ {
		m.Enqueue(user(i, 15000), int(i))
	}
	m.tick(context.Background())

	select {
	case res := <-m.Results():
		assert.Len(t, res.Players, 4)
		assert.Equal(t, "p1", res.PackageID)
	default:
		t.Fatal("expected a match")
	}
	assert.Equal(t, 0, m.QueueSize())
}

func TestNoMatchBelowPartySize(t *testing.T) {
	m := New(noBans{}, alwaysFeasible{topicCount: 10}, &recordingNotifier{}, nil)
	base := time.Unix(0, 0)
	m.now = func() time.Time { return base }
	m.Enqueue(user(1, 15000), 1)
	m.Enqueue(user(2, 15000), 2)
	m.tick(context.Background())

	select {
	case <-m.Results():
		t.Fatal("must not match with only 2 waiting")
	default:
	}
}

func TestOutOfToleranceBlocksMatch(t *testing.T) {
	m := New(noBans{}, alwaysFeasible{topicCount: 10}, &recordingNotifier{}, nil)
	base := time.Unix(0, 0)
	m.now = func() time.Time { return base }
	m.Enqueue(user(1, 15000), 1)
	m.Enqueue(user(2, 15000), 2)
	m.Enqueue(user(3, 15000), 3)
	m.Enqueue(user(4, 30000), 4) // wildly out of tolerance at t=0
	m.tick(context.Background())

	select {
	case <-m.Results():
		t.Fatal("out-of-tolerance player must not be matched")
	default:
	}
}

func TestThreePlayerFallbackOnlyAfterPatienceThreshold(t *testing.T) {
	m := New(noBans{}, alwaysFeasible{topicCount: 10}, &recordingNotifier{}, nil)
	base := time.Unix(0, 0)
	m.now = func() time.Time { return base }
	for i := int64(1); i <= 3; i++ {
		m.Enqueue(user(i, 15000), int(i))
	}
	// All waited 0s: impatient by definition of <60s, so no 3-match yet.
	m.tick(context.Background())
	select {
	case <-m.Results():
		t.Fatal("must not attempt a 3-player match before the patience threshold")
	default:
	}

	m.now = func() time.Time { return base.Add(61 * time.Second) }
	m.tick(context.Background())
	select {
	case res := <-m.Results():
		assert.Len(t, res.Players, 3)
	default:
		t.Fatal("expected a 3-player match after the patience threshold")
	}
}

func TestBannedPairExcludedFromSubset(t *testing.T) {
	m := New(pairBans{a: 1, b: 2}, alwaysFeasible{topicCount: 10}, &recordingNotifier{}, nil)
	base := time.Unix(0, 0)
	m.now = func() time.Time { return base }
	for i := int64(1); i <= 3; i++ {
		m.Enqueue(user(i, 15000), int(i))
	}
	// All three are past the patience threshold, so a 3-player subset is
	// searched and only the 1-2 ban keeps it from being found.
	m.now = func() time.Time { return base.Add(61 * time.Second) }
	m.tick(context.Background())
	select {
	case <-m.Results():
		t.Fatal("a subset containing a banned pair must never be chosen")
	default:
	}
}

func TestIdleEntriesExpireAfterTenMinutes(t *testing.T) {
	notifier := &recordingNotifier{}
	m := New(noBans{}, alwaysFeasible{topicCount: 10}, notifier, nil)
	base := time.Unix(0, 0)
	m.now = func() time.Time { return base }
	m.Enqueue(user(1, 15000), 1)

	m.now = func() time.Time { return base.Add(11 * time.Minute) }
	m.tick(context.Background())

	assert.Equal(t, 0, m.QueueSize())
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.expired, int64(1))
}
