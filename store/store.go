// Package store is the durable key-value persistence layer of §4.1:
// users, ratings, packages, played-bitmaps, ban lists, recent-opponent
// queues, suspended game snapshots, and the room registry. Backed by
// go.etcd.io/bbolt, whose single-writer transactions give the
// transactional rating-commit and decay walk (§4.1) serialization for
// free, satisfying §5's "strictly serialized per logical key".
package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers       = []byte("users")
	bucketPackages    = []byte("sets")
	bucketActiveSets  = []byte("active-sets")  // single JSON-list value keyed by listKeyActiveSets
	bucketWasActive   = []byte("was-active-sets")
	bucketPlayed      = []byte("played")       // key: uid#pkg -> bitmap
	bucketBlocked     = []byte("blocked_set")  // key: uid#pkg -> single byte 0x01
	bucketBanList     = []byte("ban-list")     // key: uid -> JSON []int64
	bucketRecentOpp   = []byte("last-played")  // key: uid -> JSON []int64
	bucketGameState   = []byte("game-state")   // key: play_chat -> JSON snapshot
	bucketGameChats   = []byte("game-chats")   // single JSON-list value
)

const (
	listKeyActiveSets = "active-sets"
	listKeyWasActive  = "was-active-sets"
	listKeyGameChats  = "game-chats"
)

var allBuckets = [][]byte{
	bucketUsers, bucketPackages, bucketActiveSets, bucketWasActive,
	bucketPlayed, bucketBlocked, bucketBanList, bucketRecentOpp,
	bucketGameState, bucketGameChats,
}

// Store wraps a bbolt database.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures every bucket this package needs exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Wipe removes every bucket and recreates them empty.
func (s *Store) Wipe() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if err := tx.DeleteBucket(b); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

func uidKey(uid int64) []byte {
	return []byte(fmt.Sprintf("%d", uid))
}

func uidPkgKey(uid int64, pkg string) []byte {
	return []byte(fmt.Sprintf("%d#%s", uid, pkg))
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func getJSON(b *bbolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
