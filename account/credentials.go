// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package account

import (
	"crypto/sha1"
	"net/mail"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/feedbactory/client/constants"
)

const (
	passwordSaltPrefix     = "Feedbactory"
	passwordHashIterations = 10000
	minPasswordLength      = 8
)

// NormaliseEmail lowercases email using English casing rules, so the
// password salt never varies with the host locale.
func NormaliseEmail(email string) string {
	return cases.Lower(language.English).String(email)
}

// IsValidEmail returns true if email is a bare RFC 5322 address of
// acceptable length.
func IsValidEmail(email string) bool {
	n := utf8.RuneCountInString(email)
	if n < constants.MinEmailLength || n > constants.MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Name == "" && addr.Address == email
}

// IsValidPassword checks the password strength rules: at least 8
// characters, no surrounding whitespace, no control characters, and more
// than one letter and more than one other printable character.
func IsValidPassword(password string) bool {
	runes := []rune(password)
	if len(runes) < minPasswordLength {
		return false
	}
	if unicode.IsSpace(runes[0]) || unicode.IsSpace(runes[len(runes)-1]) {
		return false
	}
	letters, others := 0, 0
	for _, r := range runes {
		switch {
		case unicode.IsControl(r):
			return false
		case unicode.IsLetter(r):
			letters++
		case !unicode.IsSpace(r):
			others++
		}
	}
	return letters > 1 && others > 1
}

// IsValidEmailCode returns true if code has the length of an email
// confirmation or password reset code.
func IsValidEmailCode(code string) bool {
	return utf8.RuneCountInString(code) == constants.EmailCodeLength
}

// PasswordHash derives the client side password hash sent in place of the
// password.  The salt is bound to the normalised email address.
func PasswordHash(email, password string) []byte {
	salt := append([]byte(passwordSaltPrefix), NormaliseEmail(email)...)
	return pbkdf2.Key([]byte(password), salt, passwordHashIterations, constants.PasswordHashLength, sha1.New)
}
