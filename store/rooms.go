package store

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// RegisterRoom adds chatID to the game-chats registry (§4.8 play-room
// enrollment via the "dummy" admin account).
func (s *Store) RegisterRoom(chatID int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return addToList(tx, bucketGameChats, listKeyGameChats, fmt.Sprintf("%d", chatID))
	})
}

func (s *Store) UnregisterRoom(chatID int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return removeFromList(tx, bucketGameChats, listKeyGameChats, fmt.Sprintf("%d", chatID))
	})
}

func (s *Store) ListRooms() ([]int64, error) {
	var strs []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		strs, err = readList(tx, bucketGameChats, listKeyGameChats)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(strs))
	for i, str := range strs {
		var id int64
		if _, err := fmt.Sscanf(str, "%d", &id); err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
