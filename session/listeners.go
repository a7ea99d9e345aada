// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"sync"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/wire"
)

// AccountListener is notified of changes to the signed in account.
//
// Notifications are delivered synchronously while the Manager holds its
// lock, so implementations must not call back into the Manager.
type AccountListener interface {
	SignedIn(account.Details)
	AccountUpdated(account.Details)
	SignedOut(account.Details)
}

// MessageListener receives non empty server messages.
type MessageListener interface {
	Message(wire.Message)
}

// SessionErrorListener is notified when the server rejects the session or
// a response fails the replay check.
type SessionErrorListener interface {
	SessionError()
}

// Subscription is a registered listener.
type Subscription struct {
	set *listenerSet
	id  uint64
}

// Unsubscribe removes the listener.  It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.set.remove(s.id)
}

type listenerEntry struct {
	id uint64
	l  any
}

type listenerSet struct {
	sync.Mutex

	next    uint64
	entries []listenerEntry
}

func (s *listenerSet) add(l any) *Subscription {
	s.Lock()
	defer s.Unlock()
	s.next++
	s.entries = append(s.entries, listenerEntry{id: s.next, l: l})
	return &Subscription{set: s, id: s.next}
}

func (s *listenerSet) remove(id uint64) {
	s.Lock()
	defer s.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *listenerSet) snapshot() []listenerEntry {
	s.Lock()
	defer s.Unlock()
	return append([]listenerEntry(nil), s.entries...)
}

func (s *listenerSet) eachAccount(fn func(AccountListener)) {
	for _, e := range s.snapshot() {
		if l, ok := e.l.(AccountListener); ok {
			fn(l)
		}
	}
}

func (s *listenerSet) eachMessage(fn func(MessageListener)) {
	for _, e := range s.snapshot() {
		if l, ok := e.l.(MessageListener); ok {
			fn(l)
		}
	}
}

func (s *listenerSet) eachSessionError(fn func(SessionErrorListener)) {
	for _, e := range s.snapshot() {
		if l, ok := e.l.(SessionErrorListener); ok {
			fn(l)
		}
	}
}
