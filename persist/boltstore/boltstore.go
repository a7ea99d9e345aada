// boltstore.go - BoltDB backed preference store.
// Copyright (C) 2026  Feedbactory Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package boltstore implements persist.PreferenceStore with a simple
// boltdb based backend.
package boltstore

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/feedbactory/client/persist"
)

const (
	metadataBucket    = "metadata"
	versionKey        = "version"
	preferencesBucket = "preferences"

	storeVersion = 0
)

// Store is a preference store backed by a bolt database file.
type Store struct {
	db *bolt.DB
}

// New creates (or loads) a preference store with the given file name f.
func New(f string) (*Store, error) {
	db, err := bolt.Open(f, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(preferencesBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			return checkVersion(b)
		}

		// Freshly created.
		return bkt.Put([]byte(versionKey), []byte{storeVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func checkVersion(b []byte) error {
	if len(b) != 1 || b[0] != storeVersion {
		return fmt.Errorf("boltstore: incompatible version: %x", b)
	}
	return nil
}

func (s *Store) Get(key string, v any) (bool, error) {
	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(preferencesBucket)).Get([]byte(key)); b != nil {
			// Only valid for the life of the transaction.
			raw = append([]byte(nil), b...)
		}
		return nil
	}); err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	return true, persist.Unmarshal(raw, v)
}

func (s *Store) Put(values map[string]any) error {
	enc := make(map[string][]byte, len(values))
	for k, v := range values {
		b, err := persist.Marshal(v)
		if err != nil {
			return err
		}
		enc[k] = b
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(preferencesBucket))
		for k, b := range enc {
			if err := bkt.Put([]byte(k), b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Remove(keys ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(preferencesBucket))
		for _, k := range keys {
			if err := bkt.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close syncs and closes the database.
func (s *Store) Close() error {
	s.db.Sync()
	return s.db.Close()
}
