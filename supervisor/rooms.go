package supervisor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jeopardybot/adminmon"
	"jeopardybot/fsm"
	"jeopardybot/matcher"
	"jeopardybot/model"
	"jeopardybot/proposal"
	"jeopardybot/topics"
)

// storeCandidates adapts Store to matcher.CandidateSource and to the
// explicit-start preferred-package path of §4.5.
type storeCandidates struct{ s *Supervisor }

func (c storeCandidates) Candidates(users []int64) ([]topics.PackageCandidate, error) {
	return c.s.candidatesFor(users, "")
}

func (s *Supervisor) candidatesFor(users []int64, preferred string) ([]topics.PackageCandidate, error) {
	var ids []string
	if preferred != "" {
		ids = []string{preferred}
	} else {
		active, err := s.store.ListActivePackages()
		if err != nil {
			return nil, err
		}
		ids = active
	}

	out := make([]topics.PackageCandidate, 0, len(ids))
	for _, id := range ids {
		pkg, err := s.store.GetPackage(id)
		if err != nil {
			return nil, err
		}
		if pkg == nil {
			continue
		}
		played := make(map[int64]topics.PlayedBitmap, len(users))
		blocked := make(map[int64]bool, len(users))
		for _, u := range users {
			bm, err := s.store.PlayedBitmap(u, id)
			if err != nil {
				return nil, err
			}
			played[u] = bm
			isBlocked, err := s.store.IsBlocked(u, id)
			if err != nil {
				return nil, err
			}
			blocked[u] = isBlocked
		}
		out = append(out, topics.PackageCandidate{
			PackageID:  id,
			TopicCount: len(pkg.Topics),
			Played:     played,
			Blocked:    blocked,
		})
	}
	return out, nil
}

// matcherNotifier adapts the Supervisor's scheduler bot to
// matcher.Notifier; private-chat ids equal the corresponding user id
// on this platform, the same assumption the command layer makes.
type matcherNotifier struct{ s *Supervisor }

func (n matcherNotifier) QueueSizeChanged(userID int64, messageID int, waitingCount int) {
	n.s.broadcast(adminmon.StatusEvent{Type: adminmon.EventQueueSize, Count: waitingCount})
	if messageID == 0 {
		return
	}
	_ = n.s.schedulerBot.Edit(context.Background(), userID, messageID, fmt.Sprintf("Waiting for players... (%d in queue)", waitingCount))
}

func (n matcherNotifier) Expired(userID int64, messageID int) {
	if messageID != 0 {
		_ = n.s.schedulerBot.Edit(context.Background(), userID, messageID, "Queue entry expired after 10 minutes of inactivity.")
	} else {
		n.s.schedulerBot.TrySend(userID, "Queue entry expired after 10 minutes of inactivity.")
	}
}

// CandidateSource returns the matcher.CandidateSource this Supervisor
// exposes, for use by the Matcher constructed alongside it.
func (s *Supervisor) CandidateSource() matcher.CandidateSource { return storeCandidates{s} }

// Notifier returns the matcher.Notifier this Supervisor exposes.
func (s *Supervisor) Notifier() matcher.Notifier { return matcherNotifier{s} }

// BanChecker returns the matcher.BanChecker this Supervisor exposes
// (Store already satisfies it directly, this just documents intent).
func (s *Supervisor) BanChecker() matcher.BanChecker { return s.store }

func (s *Supervisor) onMatch(ctx context.Context, res matcher.MatchResult) {
	if err := s.startGame(ctx, res.Players, nil, res.PackageID, res.TopicIndices, nil); err != nil {
		s.log.Warn("supervisor: matcher-produced game could not start", zap.Error(err))
		for _, p := range res.Players {
			s.schedulerBot.TrySend(p.UserID, "Sorry, no play room is free right now; you've been returned to the queue.")
			s.matcher.Enqueue(p, 0)
		}
	}
}

// startGameFromProposal handles a `start` command: topic selection is
// either pinned (PackageID set) or searched exactly like the Matcher
// does, sharing topics.Select (§4.5).
func (s *Supervisor) startGameFromProposal(ctx context.Context, payload proposal.StartPayload) error {
	uids := make([]int64, len(payload.Players))
	for i, u := range payload.Players {
		uids[i] = u.UserID
	}
	candidates, err := s.candidatesFor(uids, payload.PackageID)
	if err != nil {
		return err
	}
	packageID, indices, ok := topics.Select(uids, payload.TopicCount, candidates)
	if !ok {
		return fmt.Errorf("no feasible package for this group")
	}
	return s.startGame(ctx, payload.Players, payload.Spectators, packageID, indices, []int64{payload.GroupChat})
}

// freeRoom returns the first enrolled play-room not currently bound
// to a live FSM, in registry order.
func (s *Supervisor) freeRoom() (int64, bool) {
	rooms, err := s.store.ListRooms()
	if err != nil {
		s.log.Error("supervisor: list rooms failed", zap.Error(err))
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rooms {
		if !s.rooms[r] {
			continue
		}
		if _, busy := s.games[r]; !busy {
			return r, true
		}
	}
	return 0, false
}

func (s *Supervisor) startGame(ctx context.Context, players, spectators []model.User, packageID string, topicIndices []int, sourceChats []int64) error {
	s.mu.Lock()
	refusing := s.shuttingDown
	s.mu.Unlock()
	if refusing {
		return fmt.Errorf("shutting down, no new games")
	}

	room, ok := s.freeRoom()
	if !ok {
		return fmt.Errorf("no free play room")
	}
	pkg, err := s.store.GetPackage(packageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		return fmt.Errorf("unknown package %s", packageID)
	}

	participants := make(map[int64]*model.Participant, len(players))
	for _, u := range players {
		participants[u.UserID] = &model.Participant{User: u}
	}
	spectatorSet := make(map[int64]struct{}, len(spectators))
	for _, u := range spectators {
		spectatorSet[u.UserID] = struct{}{}
	}

	snap := &model.GameSnapshot{
		PlayChat:     room,
		SourceChats:  sourceChats,
		PackageID:    packageID,
		TopicIndices: topicIndices,
		Participants: participants,
		Spectators:   spectatorSet,
	}

	gameID := uuid.NewString()
	log := s.log.With(zap.String("game_id", gameID), zap.Int64("play_chat", room))
	game := fsm.New(snap, pkg, s.playBot, s.store, s, log)
	s.mu.Lock()
	s.games[room] = game
	s.mu.Unlock()

	go game.Run(ctx)
	if err := game.Start(ctx); err != nil {
		s.mu.Lock()
		delete(s.games, room)
		s.mu.Unlock()
		return err
	}
	log.Info("supervisor: game started", zap.String("package_id", packageID))
	s.broadcast(adminmon.StatusEvent{Type: adminmon.EventGameStarted, PlayChat: room, PackageID: packageID})

	uids := make([]int64, len(players))
	for i, u := range players {
		uids[i] = u.UserID
	}
	if err := s.store.MarkTopicsPlayed(packageID, uids, topicIndices); err != nil {
		s.log.Error("supervisor: mark topics played failed", zap.Error(err))
	}
	return nil
}

// recoverGames scans persisted snapshots at boot and resumes each
// (§4.7 "Crash recovery").
func (s *Supervisor) recoverGames(ctx context.Context) error {
	snaps, err := s.store.ScanSnapshots()
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		pkg, err := s.store.GetPackage(snap.PackageID)
		if err != nil {
			return err
		}
		if pkg == nil {
			s.log.Error("supervisor: recovered snapshot references unknown package, dropping",
				zap.Int64("play_chat", snap.PlayChat), zap.String("package_id", snap.PackageID))
			_ = s.store.DeleteSnapshot(snap.PlayChat)
			continue
		}
		timer := fsm.RecoverSnapshot(snap)
		game := fsm.New(snap, pkg, s.playBot, s.store, s, s.log)
		s.mu.Lock()
		s.games[snap.PlayChat] = game
		s.mu.Unlock()
		go game.Run(ctx)
		game.Resume(ctx, timer, fsm.RecoveryNotice)
	}
	return nil
}
