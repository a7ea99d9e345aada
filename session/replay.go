// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"fmt"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/feedbactory/client/internal/instrument"
)

// ReplayPolicy decides what happens to a session after a response carries
// an unexpected counter.
type ReplayPolicy int

const (
	// TolerateMismatch reports the exchange as consumed and keeps the
	// session, since a dropped response desynchronizes the counter too.
	TolerateMismatch ReplayPolicy = iota

	// SignOutOnMismatch tears the session down.
	SignOutOnMismatch
)

// ParseReplayPolicy parses "tolerate" or "signout".
func ParseReplayPolicy(s string) (ReplayPolicy, error) {
	switch strings.ToLower(s) {
	case "", "tolerate":
		return TolerateMismatch, nil
	case "signout":
		return SignOutOnMismatch, nil
	}
	return 0, fmt.Errorf("session: invalid replay policy %q", s)
}

func (p ReplayPolicy) String() string {
	if p == SignOutOnMismatch {
		return "signout"
	}
	return "tolerate"
}

// ReplayGuard checks the counter the server echoes in every encrypted
// response.
type ReplayGuard struct {
	log *logging.Logger
}

// NewReplayGuard returns a ReplayGuard logging to log.
func NewReplayGuard(log *logging.Logger) *ReplayGuard {
	return &ReplayGuard{log: log}
}

// ValidateAndAdvance accepts observed only if it is one more than the
// record's counter, in which case the counter moves past it to
// observed+1, the value the server expects on the next request.  On a
// mismatch the record is left untouched.
func (g *ReplayGuard) ValidateAndAdvance(r *Record, observed int32) bool {
	expected := r.Counter + 1
	if observed != expected {
		g.log.Warningf("Invalid server response security state: session counter is %d, expected %d.", observed, expected)
		instrument.ReplayMismatch()
		return false
	}
	r.Counter = observed + 1
	return true
}
