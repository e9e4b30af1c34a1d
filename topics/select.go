// Package topics implements the topic-selection logic shared by the
// Matcher and explicit start command (§4.5).
package topics

import "math/bits"

// PlayedBitmap is a per-(user, package) bitmap over topic indices,
// set-bits accumulate only (§3). A uint64 caps packages at 64 topics,
// comfortably above any package seen in practice.
type PlayedBitmap uint64

func (b PlayedBitmap) Count() int {
	return bits.OnesCount64(uint64(b))
}

func (b PlayedBitmap) Has(idx int) bool {
	return uint64(b)&(1<<uint(idx)) != 0
}

func (b PlayedBitmap) Set(idx int) PlayedBitmap {
	return b | (1 << uint(idx))
}

// PackageCandidate is everything Selection needs to know about one
// candidate package to decide feasibility.
type PackageCandidate struct {
	PackageID  string
	TopicCount int
	// Played maps user id -> played bitmap for this package. A user
	// absent from the map has played nothing.
	Played map[int64]PlayedBitmap
	// Blocked is the set of user ids who have blocked this package
	// (§4.5: "filtered as if they had no remaining topics for that
	// user").
	Blocked map[int64]bool
}

// Select returns the first feasible package and its selected topic
// indices, or ok=false if none is feasible.
//
// A package is feasible iff every user has enough unplayed topics AND
// the union of their played bitmaps leaves at least topicCount bits
// unset. Selected topics are the first topicCount unset indices of the
// union, ascending.
func Select(users []int64, topicCount int, candidates []PackageCandidate) (packageID string, selected []int, ok bool) {
	for _, c := range candidates {
		if idx, feasible := feasible(users, topicCount, c); feasible {
			return c.PackageID, idx, true
		}
	}
	return "", nil, false
}

func feasible(users []int64, topicCount int, c PackageCandidate) ([]int, bool) {
	var union PlayedBitmap
	for _, u := range users {
		if c.Blocked[u] {
			return nil, false
		}
		played := c.Played[u]
		remaining := c.TopicCount - played.Count()
		if remaining < topicCount {
			return nil, false
		}
		union |= played
	}

	selected := make([]int, 0, topicCount)
	for idx := 0; idx < c.TopicCount && len(selected) < topicCount; idx++ {
		if !union.Has(idx) {
			selected = append(selected, idx)
		}
	}
	if len(selected) < topicCount {
		return nil, false
	}
	return selected, true
}
