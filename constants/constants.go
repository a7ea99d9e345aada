// constants.go - Feedbactory session protocol constants.
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

// Package constants contains the constants for the Feedbactory session
// protocol.
package constants

import "time"

const (
	// SessionIDLength is the length of a server issued session identifier
	// in bytes.
	SessionIDLength = 32

	// SessionKeyLength is the length of the client generated symmetric
	// session key in bytes.
	SessionKeyLength = 16

	// IVLength is the length of the per direction initialization vector in
	// bytes.  Both supported payload ciphers use a 16 byte IV so that the
	// request framing stays fixed size.
	IVLength = 16

	// NonceLength is the length of the random nonce carried in the
	// session initiation header.
	NonceLength = 16

	// InitiationHeaderLength is the length of the encrypted session
	// initiation header: an 8 byte server time followed by the nonce.
	InitiationHeaderLength = 8 + NonceLength

	// CounterHeaderLength is the length of the encrypted session counter
	// header.
	CounterHeaderLength = 4

	// PasswordHashLength is the length of a client side password hash.
	PasswordHashLength = 32

	// EmailCodeLength is the length of both the email confirmation code
	// and the password reset code.
	EmailCodeLength = 12

	// MinEmailLength and MaxEmailLength bound an account email address.
	MinEmailLength = 4
	MaxEmailLength = 100

	// MaxRequestLength is the maximum length of a request body, excluding
	// the general request header.
	MaxRequestLength = 8192

	// ClientVersion is the version identifier sent in every general request
	// header and stored alongside a persisted session.
	ClientVersion int64 = 1462063315361

	// SessionDataVersion tags the layout of a persisted session.
	SessionDataVersion int64 = ClientVersion

	// DefaultRequestIdentifier is the magic value leading every request.
	DefaultRequestIdentifier int32 = 0x46426b74

	// DefaultServerAddress is the default application server address.
	DefaultServerAddress = "127.0.0.1:49300"

	// DefaultDialTimeout is the default connect and read timeout.
	DefaultDialTimeout = 12 * time.Second

	// DefaultClientExpiry is how long the client treats a new or resumed
	// session as usable.  It is shorter than the server's own expiry so the
	// client always gives up first.
	DefaultClientExpiry = 7 * 24 * time.Hour
)
