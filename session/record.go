// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"bytes"
	"fmt"
	"time"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/constants"
)

// Record is the client's single session.
type Record struct {
	// ID is the server issued session identifier.
	ID []byte

	// Key is the symmetric session key.  It only ever leaves the client
	// sealed under the server public key.
	Key []byte

	// Expiry is the instant after which the client abandons the session.
	Expiry time.Time

	// Counter is the number of encrypted exchanges completed.
	Counter int32

	// Persistent records are saved at shutdown and restored at start up.
	Persistent bool

	// Account is set once an exchange has confirmed the session.
	Account *account.Details
}

// Resolved returns true if the session is bound to an account.
func (r *Record) Resolved() bool {
	return r.Account != nil
}

// Expired returns true if now is at or after the expiry time.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.Expiry)
}

// Validate checks the field lengths and counter range.
func (r *Record) Validate() error {
	switch {
	case len(r.ID) != constants.SessionIDLength:
		return fmt.Errorf("session: record ID is %d bytes", len(r.ID))
	case len(r.Key) != constants.SessionKeyLength:
		return fmt.Errorf("session: record key is %d bytes", len(r.Key))
	case r.Counter < 0:
		return fmt.Errorf("session: record counter %d is negative", r.Counter)
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.ID = bytes.Clone(r.ID)
	c.Key = bytes.Clone(r.Key)
	if r.Account != nil {
		a := *r.Account
		c.Account = &a
	}
	return &c
}
