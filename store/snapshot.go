package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"jeopardybot/model"
)

// SaveSnapshot persists the FSM state for a play-chat. Called on
// every FSM mutation (§3).
func (s *Store) SaveSnapshot(snap *model.GameSnapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketGameState), snapshotKey(snap.PlayChat), snap)
	})
}

// LoadSnapshot returns nil, nil if no snapshot exists for playChat.
func (s *Store) LoadSnapshot(playChat int64) (*model.GameSnapshot, error) {
	var snap model.GameSnapshot
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketGameState), snapshotKey(playChat), &snap)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &snap, nil
}

func (s *Store) DeleteSnapshot(playChat int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGameState).Delete(snapshotKey(playChat))
	})
}

// ScanSnapshots returns every persisted snapshot, for crash-recovery
// boot scan (§4.7 "Crash recovery").
func (s *Store) ScanSnapshots() ([]*model.GameSnapshot, error) {
	var out []*model.GameSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGameState)
		return b.ForEach(func(k, v []byte) error {
			var snap model.GameSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			out = append(out, &snap)
			return nil
		})
	})
	return out, err
}

func snapshotKey(playChat int64) []byte {
	return []byte(fmt.Sprintf("%d", playChat))
}
