package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"jeopardybot/model"
)

// SavePackage persists a package under its id. Re-uploading a package
// that has already been active is accepted only if the topic count
// matches, else rejected (§3).
func (s *Store) SavePackage(pkg *model.TopicPackage) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPackages)
		var existing model.TopicPackage
		ok, err := getJSON(b, []byte(pkg.PackageID), &existing)
		if err != nil {
			return err
		}
		if ok {
			wasActive, err := wasActiveTx(tx, pkg.PackageID)
			if err != nil {
				return err
			}
			if wasActive && len(existing.Topics) != len(pkg.Topics) {
				return fmt.Errorf("package %s was active with different topic count", pkg.PackageID)
			}
		}
		return putJSON(b, []byte(pkg.PackageID), pkg)
	})
}

func (s *Store) GetPackage(packageID string) (*model.TopicPackage, error) {
	var pkg model.TopicPackage
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketPackages), []byte(packageID), &pkg)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &pkg, nil
}

// TopicNames returns the topic names of a package in order, for the
// manager "темы <pkg>" command.
func (s *Store) TopicNames(packageID string) ([]string, error) {
	pkg, err := s.GetPackage(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, fmt.Errorf("unknown package %s", packageID)
	}
	names := make([]string, len(pkg.Topics))
	for i, t := range pkg.Topics {
		names[i] = t.Name
	}
	return names, nil
}

// ActivatePackage adds packageID to both the active set and the
// was-active set (the latter never shrinks, §8 invariant).
func (s *Store) ActivatePackage(packageID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := addToList(tx, bucketActiveSets, listKeyActiveSets, packageID); err != nil {
			return err
		}
		return addToList(tx, bucketWasActive, listKeyWasActive, packageID)
	})
}

// DeactivatePackage removes packageID from the active set only; it
// remains in was-active-sets.
func (s *Store) DeactivatePackage(packageID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return removeFromList(tx, bucketActiveSets, listKeyActiveSets, packageID)
	})
}

// ListActivePackages returns active package ids in registry (insertion) order.
func (s *Store) ListActivePackages() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		l, err := readList(tx, bucketActiveSets, listKeyActiveSets)
		out = l
		return err
	})
	return out, err
}

// WasActive reports whether packageID has ever been active.
func (s *Store) WasActive(packageID string) (bool, error) {
	var was bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		was, err = wasActiveTx(tx, packageID)
		return err
	})
	return was, err
}

func wasActiveTx(tx *bbolt.Tx, packageID string) (bool, error) {
	l, err := readList(tx, bucketWasActive, listKeyWasActive)
	if err != nil {
		return false, err
	}
	for _, id := range l {
		if id == packageID {
			return true, nil
		}
	}
	return false, nil
}

// BlockPackage records that uid has opted out of packageID.
func (s *Store) BlockPackage(uid int64, packageID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlocked).Put(uidPkgKey(uid, packageID), []byte{1})
	})
}

func (s *Store) UnblockPackage(uid int64, packageID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlocked).Delete(uidPkgKey(uid, packageID))
	})
}

func (s *Store) IsBlocked(uid int64, packageID string) (bool, error) {
	var blocked bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		blocked = tx.Bucket(bucketBlocked).Get(uidPkgKey(uid, packageID)) != nil
		return nil
	})
	return blocked, err
}

// --- generic ordered-list helper, backing active-sets/was-active-sets/game-chats (§6) ---

func readList(tx *bbolt.Tx, bucket []byte, key string) ([]string, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	var l []string
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return l, nil
}

func writeList(tx *bbolt.Tx, bucket []byte, key string, l []string) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func addToList(tx *bbolt.Tx, bucket []byte, key string, value string) error {
	l, err := readList(tx, bucket, key)
	if err != nil {
		return err
	}
	for _, v := range l {
		if v == value {
			return nil
		}
	}
	l = append(l, value)
	return writeList(tx, bucket, key, l)
}

func removeFromList(tx *bbolt.Tx, bucket []byte, key string, value string) error {
	l, err := readList(tx, bucket, key)
	if err != nil {
		return err
	}
	out := l[:0]
	for _, v := range l {
		if v != value {
			out = append(out, v)
		}
	}
	return writeList(tx, bucket, key, out)
}
