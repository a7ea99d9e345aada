// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package memstore implements an in-memory persist.PreferenceStore.
package memstore

import (
	"sync"

	"github.com/feedbactory/client/persist"
)

// Store is an in-memory preference store.  Values are held encoded so
// that decoding behaves as it does for a durable store.
type Store struct {
	sync.RWMutex

	values map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(key string, v any) (bool, error) {
	s.RLock()
	b, ok := s.values[key]
	s.RUnlock()
	if !ok {
		return false, nil
	}
	return true, persist.Unmarshal(b, v)
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

	s.Lock()
	defer s.Unlock()
	for k, b := range enc {
		s.values[k] = b
	}
	return nil
}

func (s *Store) Remove(keys ...string) error {
	s.Lock()
	defer s.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.values)
}
