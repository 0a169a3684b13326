package kv

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// Families lists the column families the node opens buckets for at
// startup. Identity, inbox, job, subscription and WS-ACL data all live
// under one of these; PrefixScan never crosses a family boundary.
var Families = []string{
	"identity",
	"inbox",
	"job",
	"subscription",
	"wsacl",
	"tool",
}

// BoltStore is the bbolt-backed Store implementation. It is the only KV
// engine the node ships: a single ordered, embedded store with one bucket
// per column family.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt database at path and
// ensures every family in Families has a bucket.
func OpenBoltStore(path string) (*BoltStore, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "OpenBoltStore", "package": "kv"})

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, family := range Families {
			if _, err := tx.CreateBucketIfNotExists([]byte(family)); err != nil {
				return fmt.Errorf("kv: create bucket %s: %w", family, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("path", path).Info("opened kv store")
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(family string, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return fmt.Errorf("kv: unknown family %s", family)
		}
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *BoltStore) Has(family string, key []byte) (bool, error) {
	_, err := s.Get(family, key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BoltStore) Batch(ops ...WriteOp) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			b := tx.Bucket([]byte(op.Family))
			if b == nil {
				return fmt.Errorf("kv: unknown family %s", op.Family)
			}
			if op.Value == nil {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) PrefixScan(family string, prefix []byte, fn func(Entry) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return fmt.Errorf("kv: unknown family %s", family)
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			entry := Entry{
				Key:   append([]byte(nil), k...),
				Value: append([]byte(nil), v...),
			}
			if !fn(entry) {
				break
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
