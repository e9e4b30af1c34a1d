package store

import (
	"math"

	"go.etcd.io/bbolt"

	"jeopardybot/model"
)

// eloDivisor is the spec's deliberately flat ELO curve divisor: 10x
// the classical 400. This is a locked production contract, not a bug
// (§4.1, §9 Open Questions).
const eloDivisor = 4000

// PlayerResult is one participant's final score for a settlement.
type PlayerResult struct {
	UserID int64
	Score  int
}

// CommitResult applies the game-result commit transactionally across
// all participants (§4.1): for every ordered pair compute the ELO-style
// delta, sum per player, then floor each player's post-update rating at
// 10. Returns the rating delta applied to each user id.
func (s *Store) CommitResult(results []PlayerResult) (map[int64]int, error) {
	deltas := make(map[int64]int, len(results))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		users := make(map[int64]model.User, len(results))
		for _, r := range results {
			var u model.User
			ok, err := getJSON(b, uidKey(r.UserID), &u)
			if err != nil {
				return err
			}
			if !ok {
				u = *model.NewUser(r.UserID, "")
			}
			users[r.UserID] = u
		}

		for _, a := range results {
			ratingA := users[a.UserID].Rating
			delta := 0
			for _, bp := range results {
				if a.UserID == bp.UserID {
					continue
				}
				delta += pairDelta(ratingA, users[bp.UserID].Rating, a.Score, bp.Score)
			}
			floor := 10 - int(ratingA)
			if delta < floor {
				delta = floor
			}
			deltas[a.UserID] = delta
		}

		for _, a := range results {
			u := users[a.UserID]
			newRating := int64(u.Rating) + int64(deltas[a.UserID])
			if newRating < 10 {
				newRating = 10
			}
			u.Rating = uint32(newRating)
			if err := putJSON(b, uidKey(u.UserID), &u); err != nil {
				return err
			}
		}
		return nil
	})
	return deltas, err
}

// pairDelta computes one ordered-pair contribution to A's delta:
// E_a = 1 / (1 + 10^((R_b - R_a)/4000)), S_a per win/loss/draw,
// delta_a = round(100*(S_a - E_a)).
func pairDelta(ratingA, ratingB uint32, scoreA, scoreB int) int {
	expected := 1 / (1 + math.Pow(10, float64(int64(ratingB)-int64(ratingA))/eloDivisor))
	var actual float64
	switch {
	case scoreA > scoreB:
		actual = 1
	case scoreA < scoreB:
		actual = 0
	default:
		actual = 0.5
	}
	return int(math.Round(100 * (actual - expected)))
}
