// Package fsm implements the GameFSM of §4.7, the core of the
// coordination engine: one actor per running game, driven by a single
// inbox of platform messages and its own timer fires, gated by a
// monotonically increasing state_id so a superseded timer is dropped
// silently instead of acting on stale state.
package fsm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jeopardybot/answercheck"
	"jeopardybot/model"
	"jeopardybot/russian"
	"jeopardybot/store"
)

const (
	beforeGameTick        = 60 * time.Second
	beforeGameAccelerated = 15 * time.Second
	beforeTopicTimer      = 8 * time.Second
	beforeFirstQTimer     = 8 * time.Second
	beforeQuestionTimer   = 1 * time.Second
	questionFirstTimer    = 15 * time.Second
	questionRetryTimer    = 10 * time.Second
	answerTimer           = 30 * time.Second
	afterQuestionTimer    = 8 * time.Second
	afterQuestionPaused   = 600 * time.Second
	specialScoreTimer     = 8 * time.Second
	afterGameTimer        = 60 * time.Second

	adjustMin = -10000
	adjustMax = 10000
)

// Bot is the subset of bot.Bot the FSM needs, kept as an interface so
// tests can fake it.
type Bot interface {
	Send(ctx context.Context, chatID int64, text string, kb model.Keyboard) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	Kick(ctx context.Context, chatID, userID int64) error
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
	RevokeInviteLink(ctx context.Context, chatID int64, link string) error
}

// Store is the subset of store.Store the FSM needs.
type Store interface {
	SaveSnapshot(snap *model.GameSnapshot) error
	DeleteSnapshot(playChat int64) error
	CommitResult(results []store.PlayerResult) (map[int64]int, error)
	PushRecentOpponents(participants []int64) error
}

// GameEndedNotifier is told when a GameFSM reaches the very end of its
// epilogue, so the Supervisor can free the play-room (§4.8), and on
// every phase transition in between, so the Supervisor can forward a
// live operational feed (adminmon) without the FSM knowing adminmon
// exists.
type GameEndedNotifier interface {
	GameEnded(playChat int64)
	PhaseChanged(playChat int64, phase model.Phase)
}

type timerFired struct{ stateID uint64 }

type chatMessage struct {
	chatID int64
	userID int64
	text   string
}

type memberJoined struct {
	chatID int64
	userID int64
}

// Game is one running GameFSM actor.
type Game struct {
	snap *model.GameSnapshot
	pkg  *model.TopicPackage

	bot   Bot
	store Store
	ended GameEndedNotifier
	log   *zap.Logger

	// inbox is generously buffered rather than truly unbounded: Go
	// channels aren't unbounded, and a single play-chat's message rate
	// never approaches this depth in practice.
	inbox chan any

	now func() time.Time
}

// New constructs a Game around an existing (possibly just-created or
// just-recovered) snapshot and its package.
func New(snap *model.GameSnapshot, pkg *model.TopicPackage, bot Bot, st Store, ended GameEndedNotifier, log *zap.Logger) *Game {
	return &Game{
		snap:  snap,
		pkg:   pkg,
		bot:   bot,
		store: st,
		ended: ended,
		log:   log,
		inbox: make(chan any, 1024),
		now:   time.Now,
	}
}

// PlayChat returns the play-room chat id this game is bound to.
func (g *Game) PlayChat() int64 { return g.snap.PlayChat }

// Deliver enqueues an inbound platform message for this game's actor.
// Safe to call from any goroutine.
func (g *Game) Deliver(chatID, userID int64, text string) {
	select {
	case g.inbox <- chatMessage{chatID: chatID, userID: userID, text: text}:
	default:
		g.log.Warn("fsm: inbox full, dropping message", zap.Int64("play_chat", g.snap.PlayChat))
	}
}

// DeliverJoin marks a user as having joined the play room.
func (g *Game) DeliverJoin(chatID, userID int64) {
	select {
	case g.inbox <- memberJoined{chatID: chatID, userID: userID}:
	default:
	}
}

// Start begins a freshly created game: BeforeGame(false, 5), invite
// link issued to every source chat (§4.7 transition 1).
func (g *Game) Start(ctx context.Context) error {
	g.snap.Phase = model.PhaseBeforeGame
	g.snap.MinutesLeft = 5
	g.snap.Paused = false

	link, err := g.bot.CreateInviteLink(ctx, g.snap.PlayChat)
	if err != nil {
		return fmt.Errorf("create invite link: %w", err)
	}
	g.snap.InviteLink = link
	for _, chat := range g.snap.SourceChats {
		g.send(ctx, chat, fmt.Sprintf("Game starting. Join here: %s", link), model.KeyboardNone)
	}
	g.persist()
	g.scheduleTimer(ctx, beforeGameTick)
	return nil
}

// Resume restarts a Game actor from a crash-recovered snapshot, whose
// phase has already been rewritten to its paused counterpart by the
// caller (§4.7 "Crash recovery").
func (g *Game) Resume(ctx context.Context, timer time.Duration, notice string) {
	g.send(ctx, g.snap.PlayChat, notice, model.KeyboardNone)
	g.scheduleTimer(ctx, timer)
}

// Run drives the actor's event loop until ctx is cancelled.
func (g *Game) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-g.inbox:
			g.handle(ctx, ev)
		}
	}
}

func (g *Game) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case timerFired:
		if e.stateID != g.snap.StateID {
			return // superseded fire, drop silently (§4.7 timer discipline)
		}
		g.onTimer(ctx)
	case chatMessage:
		g.onMessage(ctx, e)
	case memberJoined:
		g.onMemberJoined(ctx, e)
	}
}

func (g *Game) onMemberJoined(ctx context.Context, e memberJoined) {
	if e.chatID != g.snap.PlayChat {
		return
	}
	if p, ok := g.snap.Participants[e.userID]; ok {
		p.Present = true
		g.persist()
		if g.snap.Phase == model.PhaseBeforeGame && g.allPresent() {
			g.snap.MinutesLeft = 1
			g.persist()
			g.scheduleTimer(ctx, beforeGameAccelerated)
		}
		return
	}
	if _, ok := g.snap.Spectators[e.userID]; ok {
		return
	}
	if err := g.bot.Kick(ctx, e.chatID, e.userID); err != nil {
		g.log.Warn("fsm: kick unexpected arrival failed", zap.Error(err))
	}
}

func (g *Game) onMessage(ctx context.Context, e chatMessage) {
	if e.chatID != g.snap.PlayChat {
		return
	}
	text := strings.TrimSpace(e.text)
	if strings.EqualFold(text, "abort") || strings.EqualFold(text, "отмена") {
		g.abort(ctx)
		return
	}
	if g.snap.Phase.Pausable() && g.handlePauseControls(ctx, e.userID, text) {
		return
	}
	switch g.snap.Phase {
	case model.PhaseQuestion:
		g.onQuestionMessage(ctx, e.userID, text)
	case model.PhaseAnswer:
		g.onAnswerMessage(ctx, e.userID, text)
	case model.PhaseAfterQuestion:
		g.onAfterQuestionMessage(ctx, e.userID, text)
	}
}

func (g *Game) allPresent() bool {
	for _, p := range g.snap.Participants {
		if !p.Present {
			return false
		}
	}
	return true
}

// scheduleTimer bumps StateID and arms a fresh timer tagged with the
// new id; a fire whose id no longer matches g.snap.StateID is stale
// and ignored by handle() (§4.7 "per-FSM timer discipline").
func (g *Game) scheduleTimer(ctx context.Context, d time.Duration) {
	g.snap.StateID++
	id := g.snap.StateID
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			select {
			case g.inbox <- timerFired{stateID: id}:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}

func (g *Game) send(ctx context.Context, chatID int64, text string, kb model.Keyboard) int {
	id, err := g.bot.Send(ctx, chatID, text, kb)
	if err != nil {
		g.log.Warn("fsm: send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return id
}

func (g *Game) persist() {
	if err := g.store.SaveSnapshot(g.snap); err != nil {
		g.log.Error("fsm: save snapshot failed", zap.Error(err))
	}
	if g.ended != nil {
		g.ended.PhaseChanged(g.snap.PlayChat, g.snap.Phase)
	}
}

func parseAdjust(arg string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, false
	}
	if n < adjustMin || n > adjustMax || n%10 != 0 {
		return 0, false
	}
	return n, true
}

// currentQuestion returns the question at the FSM's cursor.
func (g *Game) currentQuestion() model.Question {
	return g.pkg.Topics[g.snap.CursorTopic].Questions[g.snap.CursorQuestion]
}

func remainingTopicsAnnouncement(remaining int, name string) string {
	return fmt.Sprintf("%d %s left. Next: %s", remaining, russian.TopicWord(remaining), name)
}

func checkAnswer(got string, accepted []string) bool {
	return answercheck.Check(got, accepted)
}
