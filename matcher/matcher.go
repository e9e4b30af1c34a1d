// Package matcher implements the Matcher of §4.4: a 1-second tick
// loop over a waiting list, growing rating tolerance, deterministic
// subset search, and shared topic selection with the explicit start
// command (topics.Select).
package matcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"jeopardybot/model"
	"jeopardybot/topics"
)

const (
	tickInterval = 1 * time.Second
	// toleranceUnit is the 100ms-per-tolerance-point rule of §4.4.1.
	toleranceUnit = 100 * time.Millisecond
	// patientThreshold is the wait required before a 3-player game is
	// considered (§4.4.2).
	patientThreshold = 60 * time.Second
	idleExpiry       = 10 * time.Minute
	// partyTopicCount is the fixed topic count for matcher-produced
	// games (§4.4.5).
	partyTopicCount = 6
)

// BanChecker reports whether two users have banned each other, either
// direction.
type BanChecker interface {
	IsBanned(a, b int64) (bool, error)
}

// CandidateSource supplies package candidates feasible for a set of
// users, in the order topics.Select should probe them (§4.5: preferred
// package, else active-set registry order).
type CandidateSource interface {
	Candidates(users []int64) ([]topics.PackageCandidate, error)
}

// Notifier is told about queue-size changes and expirations so the
// caller can edit/send chat messages; it must not block the tick.
type Notifier interface {
	QueueSizeChanged(userID int64, messageID int, waitingCount int)
	Expired(userID int64, messageID int)
}

// MatchResult is one successful match, ready for the Supervisor to
// spawn a GameFSM from.
type MatchResult struct {
	Players      []model.User
	PackageID    string
	TopicIndices []int
}

type waitingEntry struct {
	User           model.User
	EnqueuedAt     time.Time
	LastActivityAt time.Time
	QueueMessageID int
}

// Matcher owns the waiting list. All mutation happens on the tick
// goroutine except Enqueue/Dequeue, which take the mutex briefly —
// matching §5's "short-held mutex" discipline used elsewhere.
type Matcher struct {
	mu      sync.Mutex
	waiting []*waitingEntry

	bans       BanChecker
	candidates CandidateSource
	notifier   Notifier
	results    chan MatchResult
	log        *zap.Logger

	now func() time.Time
}

// New constructs a Matcher. now defaults to time.Now; tests may
// override it to control tolerance/expiry deterministically.
func New(bans BanChecker, candidates CandidateSource, notifier Notifier, log *zap.Logger) *Matcher {
	return &Matcher{
		bans:       bans,
		candidates: candidates,
		notifier:   notifier,
		results:    make(chan MatchResult, 16),
		log:        log,
		now:        time.Now,
	}
}

// Results is the channel of produced matches.
func (m *Matcher) Results() <-chan MatchResult {
	return m.results
}

// Run drives the 1-second tick loop until ctx is cancelled.
func (m *Matcher) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Enqueue adds u to the waiting list, or refreshes LastActivityAt
// (preserving EnqueuedAt) if already present (§4.4 "enqueue re-entry").
func (m *Matcher) Enqueue(u model.User, queueMessageID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, e := range m.waiting {
		if e.User.UserID == u.UserID {
			e.LastActivityAt = now
			e.QueueMessageID = queueMessageID
			return
		}
	}
	m.waiting = append(m.waiting, &waitingEntry{
		User:           u,
		EnqueuedAt:     now,
		LastActivityAt: now,
		QueueMessageID: queueMessageID,
	})
}

// Dequeue removes uid from the waiting list; idempotent.
func (m *Matcher) Dequeue(uid int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.waiting {
		if e.User.UserID == uid {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			return
		}
	}
}

// QueueSize returns the current number of waiting players.
func (m *Matcher) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

func (m *Matcher) tick(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]*waitingEntry, len(m.waiting))
	copy(snapshot, m.waiting)
	m.mu.Unlock()

	now := m.now()

	for {
		if len(snapshot) < 3 {
			break
		}
		allowThree := !anyImpatient(snapshot, now)

		subset, ok := m.findSubset(snapshot, 4, now)
		if !ok && allowThree {
			subset, ok = m.findSubset(snapshot, 3, now)
		}
		if !ok {
			break
		}
		if !m.tryMatch(ctx, subset) {
			break
		}
		m.removeMatched(subset)
		snapshot = m.currentSnapshot()
	}

	m.sweepExpired(now)
}

// anyImpatient reports whether any waiter has been queued under the
// patience threshold, in which case only 4-player games are attempted
// (§4.4.2-3).
func anyImpatient(entries []*waitingEntry, now time.Time) bool {
	for _, e := range entries {
		if now.Sub(e.EnqueuedAt) < patientThreshold {
			return true
		}
	}
	return false
}

// tolerance returns [rating-Δ, rating+Δ] for e at instant now.
func tolerance(e *waitingEntry, now time.Time) (int64, int64) {
	delta := int64(now.Sub(e.EnqueuedAt) / toleranceUnit)
	r := int64(e.User.Rating)
	return r - delta, r + delta
}

func inTolerance(a, b *waitingEntry, now time.Time) bool {
	loA, hiA := tolerance(a, now)
	loB, hiB := tolerance(b, now)
	rb := int64(b.User.Rating)
	ra := int64(a.User.Rating)
	return rb >= loA && rb <= hiA && ra >= loB && ra <= hiB
}

// findSubset performs a deterministic ascending-order search for the
// first feasible subset of size partySize (§4.4 "deterministic,
// ascending positional order").
func (m *Matcher) findSubset(entries []*waitingEntry, partySize int, now time.Time) ([]*waitingEntry, bool) {
	if len(entries) < partySize {
		return nil, false
	}
	chosen := make([]int, 0, partySize)
	var search func(start int) bool
	search = func(start int) bool {
		if len(chosen) == partySize {
			return true
		}
		remaining := partySize - len(chosen)
		for i := start; i <= len(entries)-remaining; i++ {
			if m.compatibleWithAll(entries[i], chosen, entries, now) {
				chosen = append(chosen, i)
				if search(i + 1) {
					return true
				}
				chosen = chosen[:len(chosen)-1]
			}
		}
		return false
	}
	if !search(0) {
		return nil, false
	}
	out := make([]*waitingEntry, partySize)
	for i, idx := range chosen {
		out[i] = entries[idx]
	}
	return out, true
}

func (m *Matcher) compatibleWithAll(candidate *waitingEntry, chosen []int, entries []*waitingEntry, now time.Time) bool {
	for _, idx := range chosen {
		other := entries[idx]
		if !inTolerance(candidate, other, now) {
			return false
		}
		banned, err := m.bans.IsBanned(candidate.User.UserID, other.User.UserID)
		if err != nil {
			if m.log != nil {
				m.log.Error("matcher: ban check failed", zap.Error(err))
			}
			return false
		}
		if banned {
			return false
		}
	}
	return true
}

// tryMatch probes candidate packages for subset and, on success,
// publishes the match. It does not mutate the waiting list.
func (m *Matcher) tryMatch(ctx context.Context, subset []*waitingEntry) bool {
	uids := make([]int64, len(subset))
	for i, e := range subset {
		uids[i] = e.User.UserID
	}
	candidates, err := m.candidates.Candidates(uids)
	if err != nil {
		if m.log != nil {
			m.log.Error("matcher: candidate lookup failed", zap.Error(err))
		}
		return false
	}
	packageID, indices, ok := topics.Select(uids, partyTopicCount, candidates)
	if !ok {
		return false
	}
	players := make([]model.User, len(subset))
	for i, e := range subset {
		players[i] = e.User
	}
	select {
	case m.results <- MatchResult{Players: players, PackageID: packageID, TopicIndices: indices}:
	case <-ctx.Done():
		return false
	}
	return true
}

func (m *Matcher) removeMatched(subset []*waitingEntry) {
	matched := make(map[int64]bool, len(subset))
	for _, e := range subset {
		matched[e.User.UserID] = true
	}
	m.mu.Lock()
	out := m.waiting[:0]
	for _, e := range m.waiting {
		if !matched[e.User.UserID] {
			out = append(out, e)
		}
	}
	m.waiting = out
	remaining := append([]*waitingEntry(nil), m.waiting...)
	m.mu.Unlock()

	for _, e := range remaining {
		m.notifier.QueueSizeChanged(e.User.UserID, e.QueueMessageID, len(remaining))
	}
}

func (m *Matcher) currentSnapshot() []*waitingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*waitingEntry, len(m.waiting))
	copy(out, m.waiting)
	return out
}

// sweepExpired removes any entry idle for 10+ minutes (§4.4.6).
func (m *Matcher) sweepExpired(now time.Time) {
	m.mu.Lock()
	var expired []*waitingEntry
	out := m.waiting[:0]
	for _, e := range m.waiting {
		if now.Sub(e.LastActivityAt) > idleExpiry {
			expired = append(expired, e)
		} else {
			out = append(out, e)
		}
	}
	m.waiting = out
	remaining := append([]*waitingEntry(nil), m.waiting...)
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	for _, e := range expired {
		m.notifier.Expired(e.User.UserID, e.QueueMessageID)
	}
	for _, e := range remaining {
		m.notifier.QueueSizeChanged(e.User.UserID, e.QueueMessageID, len(remaining))
	}
}
