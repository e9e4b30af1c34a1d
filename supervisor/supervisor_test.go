package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jeopardybot/bot"
	"jeopardybot/matcher"
	"jeopardybot/model"
	"jeopardybot/platform"
	"jeopardybot/store"
)

type fakeClient struct {
	updates chan platform.Update
	sent    []string
	kicked  []int64
}

func newFakeClient() *fakeClient { return &fakeClient{updates: make(chan platform.Update, 16)} }

func (f *fakeClient) SendMessage(ctx context.Context, chatID int64, text string, kb [][]string, remove bool) (int, error) {
	f.sent = append(f.sent, text)
	return len(f.sent), nil
}
func (f *fakeClient) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	return nil
}
func (f *fakeClient) KickChatMember(ctx context.Context, chatID, userID int64) error {
	f.kicked = append(f.kicked, userID)
	return nil
}
func (f *fakeClient) GetChatMember(ctx context.Context, chatID, userID int64) (platform.ChatMemberStatus, error) {
	return platform.StatusMember, nil
}
func (f *fakeClient) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	return "https://invite/x", nil
}
func (f *fakeClient) RevokeInviteLink(ctx context.Context, chatID int64, link string) error {
	return nil
}
func (f *fakeClient) DownloadDocument(ctx context.Context, doc platform.Document) (string, []byte, error) {
	return doc.FileName, nil, nil
}
func (f *fakeClient) Updates() <-chan platform.Update { return f.updates }

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeClient, *fakeClient, *store.Store) {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	schedClient := newFakeClient()
	playClient := newFakeClient()
	schedBot := bot.New(schedClient, zap.NewNop())
	playBot := bot.New(playClient, zap.NewNop())

	s := New(st, schedBot, playBot, nil, schedClient.Updates(), playClient.Updates(), Config{ManagerID: 1}, zap.NewNop())
	m := matcher.New(st, s.CandidateSource(), s.Notifier(), zap.NewNop())
	s.matcher = m
	return s, schedClient, playClient, st
}

func TestParseCommandStripsSlashAndBotSuffix(t *testing.T) {
	cmd, arg := parseCommand("/Register@MyBot extra")
	assert.Equal(t, "register", cmd)
	assert.Equal(t, "extra", arg)
}

func TestParseCommandNoArgs(t *testing.T) {
	cmd, arg := parseCommand("list")
	assert.Equal(t, "list", cmd)
	assert.Equal(t, "", arg)
}

func TestPersonalRegisterEnqueuesInMatcher(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	s.personalCommand(context.Background(), 100, "Alice", "register", "")
	assert.Equal(t, 1, s.matcher.QueueSize())
}

func TestPersonalUnregisterDequeues(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	s.personalCommand(context.Background(), 100, "Alice", "register", "")
	s.personalCommand(context.Background(), 100, "Alice", "unregister", "")
	assert.Equal(t, 0, s.matcher.QueueSize())
}

func TestManagerActivateDeactivatePackage(t *testing.T) {
	s, _, _, st := newTestSupervisor(t)
	require.NoError(t, st.SavePackage(&model.TopicPackage{PackageID: "p1", Title: "T"}))

	handled := s.managerCommand(context.Background(), 1, "включить", "p1")
	assert.True(t, handled)
	active, err := st.ListActivePackages()
	require.NoError(t, err)
	assert.Contains(t, active, "p1")

	s.managerCommand(context.Background(), 1, "выключить", "p1")
	active, err = st.ListActivePackages()
	require.NoError(t, err)
	assert.NotContains(t, active, "p1")
}

func TestNonManagerCannotUseManagerCommands(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	// privateCommand only routes to managerCommand when UserID == managerID
	// (configured as 1 in newTestSupervisor); a non-manager's "включить"
	// falls through to personalCommand and is treated as an unknown command.
	u := platform.Update{ChatID: 999, UserID: 999, Text: "включить p1"}
	s.privateCommand(context.Background(), u)
	active, _ := s.store.ListActivePackages()
	assert.Empty(t, active)
}

func TestBanThenUnbanRoundTrips(t *testing.T) {
	s, _, _, st := newTestSupervisor(t)
	require.NoError(t, st.PushRecentOpponents([]int64{100, 200}))

	s.handleBan(context.Background(), 100, "1")
	list, err := st.BanList(100)
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, list)

	s.handleUnban(context.Background(), 100, "1")
	list, err = st.BanList(100)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGroupGameCreatesProposal(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	u := platform.Update{ChatID: 500, UserID: 100, DisplayName: "Alice", Text: "game"}
	s.groupCommand(context.Background(), u)
	s.mu.Lock()
	_, exists := s.proposals[500]
	s.mu.Unlock()
	assert.True(t, exists)
}

func TestGroupRegisterAddsToProposal(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	s.groupCommand(context.Background(), platform.Update{ChatID: 500, UserID: 100, DisplayName: "Alice", Text: "game"})
	s.groupCommand(context.Background(), platform.Update{ChatID: 500, UserID: 100, DisplayName: "Alice", Text: "register"})

	s.mu.Lock()
	p := s.proposals[500]
	s.mu.Unlock()
	require.NotNil(t, p)
	assert.Contains(t, p.Players, int64(100))
}

func TestGroupStartRefusedBelowMinPlayers(t *testing.T) {
	s, sched, _, _ := newTestSupervisor(t)
	s.groupCommand(context.Background(), platform.Update{ChatID: 500, UserID: 100, DisplayName: "Alice", Text: "game"})
	s.groupCommand(context.Background(), platform.Update{ChatID: 500, UserID: 100, DisplayName: "Alice", Text: "register"})
	s.groupCommand(context.Background(), platform.Update{ChatID: 500, UserID: 100, DisplayName: "Alice", Text: "start"})

	s.mu.Lock()
	_, exists := s.proposals[500]
	s.mu.Unlock()
	assert.True(t, exists, "a failed start must not destroy the proposal")
	assert.Contains(t, sched.sent, "need at least 2 players, have 1")
}

func TestFreeRoomSkipsBusyRooms(t *testing.T) {
	s, _, _, st := newTestSupervisor(t)
	require.NoError(t, st.RegisterRoom(700))
	require.NoError(t, st.RegisterRoom(800))
	s.mu.Lock()
	s.rooms[700] = true
	s.rooms[800] = true
	s.games[700] = nil // busy: bound (even if nil in this fake)
	s.mu.Unlock()

	room, ok := s.freeRoom()
	require.True(t, ok)
	assert.Equal(t, int64(800), room)
}

func TestDummyAccountTogglesRoomEnrollment(t *testing.T) {
	s, _, _, st := newTestSupervisor(t)
	s.dummyID = 999
	s.handlePlayUpdate(context.Background(), platform.Update{ChatID: 42, UserID: 999, Text: "добавить"})
	rooms, err := st.ListRooms()
	require.NoError(t, err)
	assert.Contains(t, rooms, int64(42))

	s.handlePlayUpdate(context.Background(), platform.Update{ChatID: 42, UserID: 999, Text: "удалить"})
	rooms, err = st.ListRooms()
	require.NoError(t, err)
	assert.NotContains(t, rooms, int64(42))
}

func TestUnboundPlayChatArrivalIsKicked(t *testing.T) {
	s, _, play, _ := newTestSupervisor(t)
	s.handlePlayUpdate(context.Background(), platform.Update{ChatID: 42, UserID: 555, Text: "hello"})
	assert.Contains(t, play.kicked, int64(555))
}
