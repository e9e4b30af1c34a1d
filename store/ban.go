package store

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"jeopardybot/model"
)

// BanAdd adds target to uid's ban list, enforcing the 50-cap (§3,
// §4.1). Reports {added, already_present, at_limit}.
func (s *Store) BanAdd(uid, target int64) (model.BanResult, error) {
	var result model.BanResult
	err := s.db.Update(func(tx *bbolt.Tx) error {
		list, err := readInt64List(tx.Bucket(bucketBanList), uid)
		if err != nil {
			return err
		}
		for _, v := range list {
			if v == target {
				result = model.BanAlreadyPresent
				return nil
			}
		}
		if len(list) >= model.MaxBanListSize {
			result = model.BanAtLimit
			return nil
		}
		list = append(list, target)
		result = model.BanAdded
		return writeInt64List(tx.Bucket(bucketBanList), uid, list)
	})
	return result, err
}

func (s *Store) BanRemove(uid, target int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		list, err := readInt64List(tx.Bucket(bucketBanList), uid)
		if err != nil {
			return err
		}
		out := list[:0]
		for _, v := range list {
			if v != target {
				out = append(out, v)
			}
		}
		return writeInt64List(tx.Bucket(bucketBanList), uid, out)
	})
}

func (s *Store) BanList(uid int64) ([]int64, error) {
	var list []int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		list, err = readInt64List(tx.Bucket(bucketBanList), uid)
		return err
	})
	return list, err
}

// IsBanned reports whether a and b have banned each other, either
// direction (§4.4 transition rule 4).
func (s *Store) IsBanned(a, b int64) (bool, error) {
	var banned bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		listA, err := readInt64List(tx.Bucket(bucketBanList), a)
		if err != nil {
			return err
		}
		for _, v := range listA {
			if v == b {
				banned = true
				return nil
			}
		}
		listB, err := readInt64List(tx.Bucket(bucketBanList), b)
		if err != nil {
			return err
		}
		for _, v := range listB {
			if v == a {
				banned = true
				return nil
			}
		}
		return nil
	})
	return banned, err
}

func readInt64List(b *bbolt.Bucket, uid int64) ([]int64, error) {
	data := b.Get(uidKey(uid))
	if data == nil {
		return nil, nil
	}
	var l []int64
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return l, nil
}

func writeInt64List(b *bbolt.Bucket, uid int64, l []int64) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return b.Put(uidKey(uid), data)
}
