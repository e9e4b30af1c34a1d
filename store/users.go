package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"jeopardybot/model"
)

// GetOrCreateUser returns the user record for uid, creating it with
// the initial rating and displayName if this is its first appearance
// (§3).
func (s *Store) GetOrCreateUser(uid int64, displayName string) (*model.User, error) {
	var u model.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		ok, err := getJSON(b, uidKey(uid), &u)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		u = *model.NewUser(uid, displayName)
		return putJSON(b, uidKey(uid), &u)
	})
	if err != nil {
		return nil, fmt.Errorf("get or create user %d: %w", uid, err)
	}
	return &u, nil
}

// GetUser returns nil, nil if the user has never been seen.
func (s *Store) GetUser(uid int64) (*model.User, error) {
	var u model.User
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		ok, err := getJSON(b, uidKey(uid), &u)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) putUser(tx *bbolt.Tx, u *model.User) error {
	return putJSON(tx.Bucket(bucketUsers), uidKey(u.UserID), u)
}

// ListRatings returns the top `limit` users by rating, descending,
// with dense ranking (ties share a rank, no gaps after ties) (§4.1).
func (s *Store) ListRatings(limit int) ([]model.RankedUser, error) {
	var users []model.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var u model.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			users = append(users, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].Rating != users[j].Rating {
			return users[i].Rating > users[j].Rating
		}
		return users[i].UserID < users[j].UserID
	})

	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}

	ranked := make([]model.RankedUser, len(users))
	rank := 0
	for i, u := range users {
		if i == 0 || users[i-1].Rating != u.Rating {
			rank++
		}
		ranked[i] = model.RankedUser{Rank: rank, User: u}
	}
	return ranked, nil
}

// Decay replaces every user's rating with 15000 + (R-15000)*99/100
// (integer division), applied atomically across all users (§4.1).
func (s *Store) Decay() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		var updates []model.User
		err := b.ForEach(func(k, v []byte) error {
			var u model.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			u.Rating = decayRating(u.Rating)
			updates = append(updates, u)
			return nil
		})
		if err != nil {
			return err
		}
		for _, u := range updates {
			uu := u
			if err := s.putUser(tx, &uu); err != nil {
				return err
			}
		}
		return nil
	})
}

func decayRating(r uint32) uint32 {
	diff := int64(r) - model.InitialRating
	diff = diff * 99 / 100
	return uint32(model.InitialRating + diff)
}
