package store

import (
	"encoding/binary"

	"go.etcd.io/bbolt"

	"jeopardybot/topics"
)

// MarkTopicsPlayed sets bits for indices in every user's played bitmap
// for packageID (§4.1). The bitmap only ever grows (§3, §8).
func (s *Store) MarkTopicsPlayed(packageID string, users []int64, indices []int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPlayed)
		for _, u := range users {
			key := uidPkgKey(u, packageID)
			bm := decodeBitmap(b.Get(key))
			for _, idx := range indices {
				bm = bm.Set(idx)
			}
			if err := b.Put(key, encodeBitmap(bm)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PlayedBitmap returns the played bitmap for (uid, packageID); its
// Count() is kept equal to popcount(bitmap) by construction (§8).
func (s *Store) PlayedBitmap(uid int64, packageID string) (topics.PlayedBitmap, error) {
	var bm topics.PlayedBitmap
	err := s.db.View(func(tx *bbolt.Tx) error {
		bm = decodeBitmap(tx.Bucket(bucketPlayed).Get(uidPkgKey(uid, packageID)))
		return nil
	})
	return bm, err
}

func decodeBitmap(data []byte) topics.PlayedBitmap {
	if len(data) != 8 {
		return 0
	}
	return topics.PlayedBitmap(binary.BigEndian.Uint64(data))
}

func encodeBitmap(bm topics.PlayedBitmap) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(bm))
	return buf
}
