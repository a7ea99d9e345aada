// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package account holds the account details carried by the session
// protocol and the client side credential utilities.
package account

import (
	"time"

	"github.com/feedbactory/client/wire"
)

// Details are the account fields the server returns on sign in, resume
// and email changes.
type Details struct {
	Email           string
	PendingEmail    string
	Gender          wire.Gender
	DateOfBirth     time.Time
	SendEmailAlerts bool
}

// HasPendingEmail returns true if an email change awaits confirmation.
func (d Details) HasPendingEmail() bool {
	return d.PendingEmail != ""
}

// WithEmail returns a copy of d with the email fields replaced.
func (d Details) WithEmail(email, pendingEmail string) Details {
	d.Email = email
	d.PendingEmail = pendingEmail
	return d
}

// WithSendEmailAlerts returns a copy of d with the alert preference
// replaced.
func (d Details) WithSendEmailAlerts(v bool) Details {
	d.SendEmailAlerts = v
	return d
}

// ReadDetails decodes an account details block.  Decoding errors are left
// on r.
func ReadDetails(r *wire.Reader) Details {
	var d Details
	d.Email, _ = r.String("account email")
	d.PendingEmail, _ = r.String("account pending email")
	g, err := wire.ParseGender(r.Byte("account gender"))
	r.Check("account gender", err)
	d.Gender = g
	d.DateOfBirth = time.UnixMilli(r.Int64("account date of birth")).UTC()
	d.SendEmailAlerts = r.Bool("account email alerts")
	return d
}

// PutDetails encodes d as an account details block.  An empty pending
// email is written as the null string.
func PutDetails(w *wire.Writer, d Details) {
	w.PutString(d.Email)
	if d.PendingEmail == "" {
		w.PutNullString()
	} else {
		w.PutString(d.PendingEmail)
	}
	w.PutByte(byte(d.Gender))
	w.PutInt64(d.DateOfBirth.UnixMilli())
	w.PutBool(d.SendEmailAlerts)
}
