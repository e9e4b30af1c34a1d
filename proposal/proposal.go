// Package proposal implements the in-memory group-chat game builder
// of §4.6: an accumulating draft of package, topic count, player range
// and roster, destroyed on start, abort, or inactivity.
package proposal

import (
	"fmt"
	"time"

	"jeopardybot/model"
)

// InactivityTimeout is the duration after which an untouched proposal
// with no newer mutation self-destructs (§4.6).
const InactivityTimeout = 5 * time.Minute

const (
	minTopicCount = 1
	maxTopicCount = 20
	maxPlayers    = 20
)

// Proposal is the mutable draft for one group chat. It is never
// persisted: a crash loses in-flight proposals, which is acceptable
// per §4.6 (in-memory only).
type Proposal struct {
	GroupChat  int64
	PackageID  string
	TopicCount int
	MinPlayers int
	MaxPlayers int
	Players    map[int64]model.User
	Spectators map[int64]model.User

	// ExpiryVersion increments on every mutation; a firing timer whose
	// version no longer matches the current one is stale and ignored
	// (§4.6, same discipline as the FSM's state_id).
	ExpiryVersion uint64
}

// New returns a fresh proposal with the spec's defaults: no package,
// topic_count 6 (the Matcher's fixed party topic count), min/max
// players 2/4.
func New(groupChat int64) *Proposal {
	return &Proposal{
		GroupChat:  groupChat,
		TopicCount: 6,
		MinPlayers: 2,
		MaxPlayers: 4,
		Players:    make(map[int64]model.User),
		Spectators: make(map[int64]model.User),
	}
}

func (p *Proposal) touch() {
	p.ExpiryVersion++
}

// SetPackage pins the proposal to a specific package id (skipping
// Matcher-style candidate search at start time).
func (p *Proposal) SetPackage(packageID string) {
	p.PackageID = packageID
	p.touch()
}

// SetTopicCount validates n is in [1, 20].
func (p *Proposal) SetTopicCount(n int) error {
	if n < minTopicCount || n > maxTopicCount {
		return fmt.Errorf("topic count must be between %d and %d", minTopicCount, maxTopicCount)
	}
	p.TopicCount = n
	p.touch()
	return nil
}

// SetMinPlayers validates n is in [1, MaxPlayers].
func (p *Proposal) SetMinPlayers(n int) error {
	if n < 1 || n > p.MaxPlayers {
		return fmt.Errorf("min players must be between 1 and %d", p.MaxPlayers)
	}
	p.MinPlayers = n
	p.touch()
	return nil
}

// SetMaxPlayers validates n is in [max(MinPlayers, current player
// count), 20].
func (p *Proposal) SetMaxPlayers(n int) error {
	floor := p.MinPlayers
	if len(p.Players) > floor {
		floor = len(p.Players)
	}
	if n < floor || n > maxPlayers {
		return fmt.Errorf("max players must be between %d and %d", floor, maxPlayers)
	}
	p.MaxPlayers = n
	p.touch()
	return nil
}

// AddPlayer registers u as a player, removing any prior spectator
// registration (exclusive membership, §4.6). Rejects once the roster
// is at MaxPlayers.
func (p *Proposal) AddPlayer(u model.User) error {
	if _, already := p.Players[u.UserID]; already {
		p.touch()
		return nil
	}
	if len(p.Players) >= p.MaxPlayers {
		return fmt.Errorf("all seats taken")
	}
	delete(p.Spectators, u.UserID)
	p.Players[u.UserID] = u
	p.touch()
	return nil
}

// AddSpectator registers u as a spectator, removing any prior player
// registration.
func (p *Proposal) AddSpectator(u model.User) {
	delete(p.Players, u.UserID)
	p.Spectators[u.UserID] = u
	p.touch()
}

// Remove drops uid from both players and spectators.
func (p *Proposal) Remove(uid int64) {
	delete(p.Players, uid)
	delete(p.Spectators, uid)
	p.touch()
}

// ReadyToStart reports whether the player count satisfies MinPlayers.
func (p *Proposal) ReadyToStart() bool {
	return len(p.Players) >= p.MinPlayers
}

// StartPayload is what a successful `start` hands to the Supervisor.
type StartPayload struct {
	GroupChat  int64
	PackageID  string
	TopicCount int
	Players    []model.User
	Spectators []model.User
}

// Start validates the proposal can begin and builds its payload. The
// caller is responsible for destroying the proposal afterward.
func (p *Proposal) Start() (StartPayload, error) {
	if !p.ReadyToStart() {
		return StartPayload{}, fmt.Errorf("need at least %d players, have %d", p.MinPlayers, len(p.Players))
	}
	players := make([]model.User, 0, len(p.Players))
	for _, u := range p.Players {
		players = append(players, u)
	}
	spectators := make([]model.User, 0, len(p.Spectators))
	for _, u := range p.Spectators {
		spectators = append(spectators, u)
	}
	return StartPayload{
		GroupChat:  p.GroupChat,
		PackageID:  p.PackageID,
		TopicCount: p.TopicCount,
		Players:    players,
		Spectators: spectators,
	}, nil
}
