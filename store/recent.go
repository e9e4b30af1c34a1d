package store

import (
	"go.etcd.io/bbolt"

	"jeopardybot/model"
)

// PushRecentOpponents pushes every participant into every other
// participant's recent-opponents list, move-to-tail on duplicates,
// capacity 10, front-pop eviction (§3, §4.1).
func (s *Store) PushRecentOpponents(participants []int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecentOpp)
		for _, uid := range participants {
			list, err := readInt64List(b, uid)
			if err != nil {
				return err
			}
			for _, other := range participants {
				if other == uid {
					continue
				}
				list = pushMoveToTail(list, other, model.MaxRecentOpponents)
			}
			if err := writeInt64List(b, uid, list); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RecentOpponents(uid int64) ([]int64, error) {
	var list []int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		list, err = readInt64List(tx.Bucket(bucketRecentOpp), uid)
		return err
	})
	return list, err
}

// pushMoveToTail appends value to the tail, removing any earlier
// occurrence first, and evicts from the front once over capacity.
func pushMoveToTail(list []int64, value int64, capacity int) []int64 {
	out := make([]int64, 0, len(list)+1)
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	out = append(out, value)
	if len(out) > capacity {
		out = out[len(out)-capacity:]
	}
	return out
}
