// Package supervisor implements the Supervisor of §4.8: the top-level
// actor that multiplexes the scheduler bot's updates, the play bot's
// updates, Matcher output, and per-FSM completion notices, routing
// each to a Proposal, the Matcher queue, or a running GameFSM.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"jeopardybot/adminmon"
	"jeopardybot/bot"
	"jeopardybot/fsm"
	"jeopardybot/matcher"
	"jeopardybot/model"
	"jeopardybot/platform"
	"jeopardybot/proposal"
	"jeopardybot/store"
)

// proposalExpired is posted by a per-proposal timer goroutine; it is
// honored only if Version still matches the live proposal's
// ExpiryVersion (§4.6, the same state_id discipline the FSM uses).
type proposalExpired struct {
	groupChat int64
	version   uint64
}

type gameEnded struct{ playChat int64 }

// decayInterval is how often the Supervisor triggers Store.Decay (§3,
// §4.1's "periodic 1%-toward-baseline decay"). Neither spec.md nor the
// original implementation name an exact cadence, so a daily walk is
// picked as a reasonable default for a rating that otherwise only
// moves on game results.
const decayInterval = 24 * time.Hour

// Supervisor owns the room registry, the live FSM map, the group-chat
// proposal map, and drives the event-multiplexing loop of §4.8.
type Supervisor struct {
	store        *store.Store
	schedulerBot *bot.Bot
	playBot      *bot.Bot
	matcher      *matcher.Matcher
	hub          *adminmon.Hub
	log          *zap.Logger

	schedulerUpdates <-chan platform.Update
	playUpdates      <-chan platform.Update

	managerID int64
	dummyID   int64

	// mu guards everything below; Run's event loop does most of the
	// mutation, but Shutdown sets shuttingDown from another goroutine
	// and the adminmon stats readers (ActiveGames, ProposalCount) read
	// these fields from HTTP handler goroutines.
	mu           sync.Mutex
	rooms        map[int64]bool
	games        map[int64]*fsm.Game
	proposals    map[int64]*proposal.Proposal
	shuttingDown bool

	expired chan proposalExpired
	ended   chan gameEnded

	done chan struct{}
}

// Config bundles the identities the Supervisor needs to distinguish
// privileged senders (§4.8 routing table).
type Config struct {
	ManagerID int64
	DummyID   int64
}

// New wires a Supervisor around its collaborators. schedulerUpdates
// and playUpdates are typically bot.Bot's underlying platform.Client
// Updates() channels.
func New(st *store.Store, schedulerBot, playBot *bot.Bot, m *matcher.Matcher, schedulerUpdates, playUpdates <-chan platform.Update, cfg Config, log *zap.Logger) *Supervisor {
	return &Supervisor{
		store:            st,
		schedulerBot:     schedulerBot,
		playBot:          playBot,
		matcher:          m,
		log:              log,
		schedulerUpdates: schedulerUpdates,
		playUpdates:      playUpdates,
		managerID:        cfg.ManagerID,
		dummyID:          cfg.DummyID,
		rooms:            make(map[int64]bool),
		games:            make(map[int64]*fsm.Game),
		proposals:        make(map[int64]*proposal.Proposal),
		expired:          make(chan proposalExpired, 64),
		ended:            make(chan gameEnded, 64),
		done:             make(chan struct{}),
	}
}

// SetMatcher wires the Matcher after construction, breaking the
// circular dependency between Supervisor (which the Matcher needs for
// its CandidateSource/Notifier) and the Matcher itself (which New
// needs to store). Must be called once, before Run.
func (s *Supervisor) SetMatcher(m *matcher.Matcher) {
	s.matcher = m
}

// SetAdminHub wires the operator status feed. Optional: a nil hub
// (the zero value) means events are simply dropped, so tests and
// deployments that don't run adminmon don't need a no-op stand-in.
func (s *Supervisor) SetAdminHub(h *adminmon.Hub) {
	s.hub = h
}

// broadcast forwards ev to the admin feed if one is wired.
func (s *Supervisor) broadcast(ev adminmon.StatusEvent) {
	if s.hub != nil {
		s.hub.Broadcast(ev)
	}
}

// PhaseChanged implements fsm.GameEndedNotifier's other half: every
// persisted phase transition of a running game is forwarded to the
// operator feed.
func (s *Supervisor) PhaseChanged(playChat int64, phase model.Phase) {
	s.broadcast(adminmon.StatusEvent{Type: adminmon.EventPhaseChange, PlayChat: playChat, Phase: phase.String()})
}

// GameEnded implements fsm.GameEndedNotifier; called from a Game
// actor's own goroutine on reaching the end of its epilogue.
func (s *Supervisor) GameEnded(playChat int64) {
	select {
	case s.ended <- gameEnded{playChat: playChat}:
	default:
		s.log.Warn("supervisor: gameEnded channel full", zap.Int64("play_chat", playChat))
	}
}

// Run boots crash-recovered games, starts the Matcher's tick loop, and
// drives the multiplexing loop until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.recoverGames(ctx); err != nil {
		return fmt.Errorf("supervisor: crash recovery: %w", err)
	}
	rooms, err := s.store.ListRooms()
	if err != nil {
		return fmt.Errorf("supervisor: list rooms: %w", err)
	}
	s.mu.Lock()
	for _, r := range rooms {
		s.rooms[r] = true
	}
	s.mu.Unlock()

	go s.matcher.Run(ctx)

	decayTicker := time.NewTicker(decayInterval)
	defer decayTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.done)
			return nil
		case u, ok := <-s.schedulerUpdates:
			if !ok {
				s.schedulerUpdates = nil
				continue
			}
			s.handleSchedulerUpdate(ctx, u)
		case u, ok := <-s.playUpdates:
			if !ok {
				s.playUpdates = nil
				continue
			}
			s.handlePlayUpdate(ctx, u)
		case res := <-s.matcher.Results():
			s.onMatch(ctx, res)
		case e := <-s.ended:
			s.onGameEnded(e.playChat)
		case e := <-s.expired:
			s.onProposalExpired(ctx, e)
		case <-decayTicker.C:
			if err := s.store.Decay(); err != nil {
				s.log.Error("supervisor: rating decay failed", zap.Error(err))
			} else {
				s.log.Info("supervisor: applied periodic rating decay")
			}
		}
	}
}

// Shutdown refuses new games/proposals, waits for every live FSM to
// finish, and sends a final notice to the manager (§4.8, §5
// "cancellation").
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		empty := len(s.games) == 0
		s.mu.Unlock()
		if empty {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
	if s.managerID != 0 {
		_, _ = s.schedulerBot.Send(ctx, s.managerID, "Bot off.", model.KeyboardNone)
	}
}

// ActiveGames, QueueSize, and ProposalCount together satisfy
// adminmon.StatsProvider so the operator feed can report live counts
// without reaching into the Supervisor's internals.
func (s *Supervisor) ActiveGames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

func (s *Supervisor) QueueSize() int {
	return s.matcher.QueueSize()
}

func (s *Supervisor) ProposalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.proposals)
}

func (s *Supervisor) onGameEnded(playChat int64) {
	s.mu.Lock()
	delete(s.games, playChat)
	s.mu.Unlock()
	s.broadcast(adminmon.StatusEvent{Type: adminmon.EventGameEnded, PlayChat: playChat})
}

func (s *Supervisor) scheduleProposalExpiry(groupChat int64, version uint64) {
	go func() {
		t := time.NewTimer(proposal.InactivityTimeout)
		defer t.Stop()
		<-t.C
		select {
		case s.expired <- proposalExpired{groupChat: groupChat, version: version}:
		case <-s.done:
		}
	}()
}

func (s *Supervisor) onProposalExpired(ctx context.Context, e proposalExpired) {
	s.mu.Lock()
	p, ok := s.proposals[e.groupChat]
	if !ok || p.ExpiryVersion != e.version {
		s.mu.Unlock()
		return
	}
	delete(s.proposals, e.groupChat)
	s.mu.Unlock()
	_, _ = s.schedulerBot.Send(ctx, e.groupChat, "Proposal expired from inactivity.", model.KeyboardNone)
}

// touchProposal refreshes the expiry timer for the current version of
// a just-mutated proposal; callers invoke it right after any mutation.
func (s *Supervisor) touchProposal(p *proposal.Proposal) {
	s.scheduleProposalExpiry(p.GroupChat, p.ExpiryVersion)
}
