package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"jeopardybot/model"
	"jeopardybot/topics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// setRating seeds a user's rating directly, bypassing the normal
// commit path, so tests can start from a known non-default rating.
func setRating(t *testing.T, s *Store, uid int64, rating uint32) {
	t.Helper()
	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		u := model.User{UserID: uid, Rating: rating}
		return putJSON(tx.Bucket(bucketUsers), uidKey(uid), &u)
	}))
}

func TestGetOrCreateUserInitialRating(t *testing.T) {
	s := newTestStore(t)
	u, err := s.GetOrCreateUser(1, "Alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(model.InitialRating), u.Rating)
	assert.Equal(t, "Alice", u.DisplayName)

	again, err := s.GetOrCreateUser(1, "Alice Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.DisplayName, "second call must not overwrite the existing record")
}

func TestListRatingsDenseRanking(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.GetOrCreateUser(1, "a")
	_, _ = s.GetOrCreateUser(2, "b")
	_, _ = s.GetOrCreateUser(3, "c")
	setRating(t, s, 1, 15100)
	setRating(t, s, 2, 15200)
	setRating(t, s, 3, 15200)

	ranked, err := s.ListRatings(0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 1, ranked[1].Rank, "tied ratings share a rank")
	assert.Equal(t, 2, ranked[2].Rank, "no gap skip after the tie")
}

func TestDecayInvariant(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOrCreateUser(1, "a")
	require.NoError(t, err)
	setRating(t, s, 1, model.InitialRating+1000)

	require.NoError(t, s.Decay())
	after, err := s.GetUser(1)
	require.NoError(t, err)

	assert.Equal(t, uint32(model.InitialRating+990), after.Rating)
}

func TestDecayPreservesSignBelowBaseline(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOrCreateUser(1, "a")
	require.NoError(t, err)
	setRating(t, s, 1, model.InitialRating-1000)

	require.NoError(t, s.Decay())
	after, err := s.GetUser(1)
	require.NoError(t, err)

	assert.Equal(t, uint32(model.InitialRating-990), after.Rating)
}

func TestCommitResultWorkedExample(t *testing.T) {
	// Ratings 15000/15200, scores 100/0: E_A = 1/(1+10^(200/4000)) =
	// 0.47125, delta_A = round(100*0.52875) = 53, delta_B = -53.
	s := newTestStore(t)
	_, err := s.GetOrCreateUser(1, "a")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(2, "b")
	require.NoError(t, err)
	setRating(t, s, 1, 15000)
	setRating(t, s, 2, 15200)

	deltas, err := s.CommitResult([]PlayerResult{
		{UserID: 1, Score: 100},
		{UserID: 2, Score: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 53, deltas[1])
	assert.Equal(t, -53, deltas[2])

	ua, err := s.GetUser(1)
	require.NoError(t, err)
	ub, err := s.GetUser(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(15053), ua.Rating)
	assert.Equal(t, uint32(15147), ub.Rating)
}

func TestCommitResultFloorsAt10(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOrCreateUser(1, "a")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(2, "b")
	require.NoError(t, err)
	// Equal ratings: the loser's raw delta is round(100*(0-0.5)) = -50,
	// which the floor raises to 10-12 = -2.
	setRating(t, s, 1, 12)
	setRating(t, s, 2, 12)

	deltas, err := s.CommitResult([]PlayerResult{
		{UserID: 1, Score: 0},
		{UserID: 2, Score: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 10-12, deltas[1])

	ua, err := s.GetUser(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), ua.Rating)
}

func TestPackageActivationInvariant(t *testing.T) {
	s := newTestStore(t)
	pkg := &model.TopicPackage{PackageID: "p1", Title: "t", Topics: make([]model.Topic, 3)}
	require.NoError(t, s.SavePackage(pkg))
	require.NoError(t, s.ActivatePackage("p1"))
	require.NoError(t, s.DeactivatePackage("p1"))

	active, err := s.ListActivePackages()
	require.NoError(t, err)
	assert.NotContains(t, active, "p1")

	wasActive, err := s.WasActive("p1")
	require.NoError(t, err)
	assert.True(t, wasActive, "was-active-sets never shrinks")
}

func TestSavePackageRejectsTopicCountChangeOnceActive(t *testing.T) {
	s := newTestStore(t)
	pkg := &model.TopicPackage{PackageID: "p1", Title: "t", Topics: make([]model.Topic, 3)}
	require.NoError(t, s.SavePackage(pkg))
	require.NoError(t, s.ActivatePackage("p1"))

	resized := &model.TopicPackage{PackageID: "p1", Title: "t", Topics: make([]model.Topic, 5)}
	err := s.SavePackage(resized)
	assert.Error(t, err)
}

func TestPlayedBitmapPopcountInvariant(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.MarkTopicsPlayed("p1", []int64{1}, []int{0, 2, 4}))
	bm, err := s.PlayedBitmap(1, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, bm.Count())
	assert.True(t, bm.Has(0))
	assert.True(t, bm.Has(2))
	assert.False(t, bm.Has(1))

	require.NoError(t, s.MarkTopicsPlayed("p1", []int64{1}, []int{2}))
	bm, err = s.PlayedBitmap(1, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, bm.Count(), "re-marking an already-played topic must not inflate the count")

	empty, err := s.PlayedBitmap(2, "p1")
	require.NoError(t, err)
	assert.Equal(t, topics.PlayedBitmap(0), empty)
}

func TestBanListCapAndOutcomes(t *testing.T) {
	s := newTestStore(t)
	result, err := s.BanAdd(1, 2)
	require.NoError(t, err)
	assert.Equal(t, model.BanAdded, result)

	result, err = s.BanAdd(1, 2)
	require.NoError(t, err)
	assert.Equal(t, model.BanAlreadyPresent, result)

	for i := int64(3); i < 3+model.MaxBanListSize-1; i++ {
		_, err := s.BanAdd(1, i)
		require.NoError(t, err)
	}
	list, err := s.BanList(1)
	require.NoError(t, err)
	require.Len(t, list, model.MaxBanListSize)

	result, err = s.BanAdd(1, 9999)
	require.NoError(t, err)
	assert.Equal(t, model.BanAtLimit, result)
}

func TestIsBannedChecksBothDirections(t *testing.T) {
	s := newTestStore(t)
	_, err := s.BanAdd(1, 2)
	require.NoError(t, err)

	banned, err := s.IsBanned(1, 2)
	require.NoError(t, err)
	assert.True(t, banned)

	banned, err = s.IsBanned(2, 1)
	require.NoError(t, err)
	assert.True(t, banned, "ban check must be symmetric")
}

func TestRecentOpponentsCapAndMoveToTail(t *testing.T) {
	s := newTestStore(t)
	for i := int64(2); i < 2+model.MaxRecentOpponents+3; i++ {
		require.NoError(t, s.PushRecentOpponents([]int64{1, i}))
	}
	list, err := s.RecentOpponents(1)
	require.NoError(t, err)
	require.Len(t, list, model.MaxRecentOpponents)
	assert.NotContains(t, list, int64(2), "oldest opponents evict from the front")

	require.NoError(t, s.PushRecentOpponents([]int64{1, list[0]}))
	refreshed, err := s.RecentOpponents(1)
	require.NoError(t, err)
	assert.Equal(t, list[0], refreshed[len(refreshed)-1], "re-pushing an existing opponent moves it to the tail")
	assert.Len(t, refreshed, model.MaxRecentOpponents)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	snap := &model.GameSnapshot{
		PlayChat:       42,
		SourceChats:    []int64{1, 2},
		Phase:          model.PhaseQuestion,
		PackageID:      "p1",
		TopicIndices:   []int{0, 1, 2},
		CursorTopic:    1,
		CursorQuestion: 2,
		Participants: map[int64]*model.Participant{
			1: {User: model.User{UserID: 1}, Score: 30, Present: true},
		},
		Spectators: map[int64]struct{}{9: {}},
		StateID:    7,
	}
	require.NoError(t, s.SaveSnapshot(snap))

	loaded, err := s.LoadSnapshot(42)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Phase, loaded.Phase)
	assert.Equal(t, snap.CursorTopic, loaded.CursorTopic)
	assert.Equal(t, snap.CursorQuestion, loaded.CursorQuestion)
	assert.Equal(t, snap.StateID, loaded.StateID)
	assert.Equal(t, 30, loaded.Participants[1].Score)

	all, err := s.ScanSnapshots()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteSnapshot(42))
	gone, err := s.LoadSnapshot(42)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRoomRegistry(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterRoom(100))
	require.NoError(t, s.RegisterRoom(200))
	rooms, err := s.ListRooms()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 200}, rooms)

	require.NoError(t, s.UnregisterRoom(100))
	rooms, err = s.ListRooms()
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, rooms)
}
