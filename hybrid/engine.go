// engine.go - Hybrid session crypto engine.
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

// Package hybrid implements the client side of the session hybrid
// encryption scheme: a random symmetric session key, sealed once for the
// server under its public key, then used with explicit per direction IVs
// for every payload.
package hybrid

import (
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/hpqc/rand"

	"github.com/feedbactory/client/constants"
)

var (
	// ErrInvalidKeyLength is returned when a symmetric key is not
	// constants.SessionKeyLength bytes.
	ErrInvalidKeyLength = errors.New("hybrid: invalid session key length")

	// ErrInvalidIVLength is returned when an IV is not constants.IVLength
	// bytes.
	ErrInvalidIVLength = errors.New("hybrid: invalid IV length")

	// ErrDecrypt is returned when a ciphertext fails to decrypt.
	ErrDecrypt = errors.New("hybrid: decryption failed")

	// ErrUnknownAlgorithm is returned for an unrecognised sealer or cipher
	// name.
	ErrUnknownAlgorithm = errors.New("hybrid: unknown algorithm")
)

// KeySealer encrypts a session key so that only the server can recover it.
type KeySealer interface {
	// Name returns the algorithm identifier.
	Name() string

	// SealedSize returns the exact length of Seal's output.
	SealedSize() int

	// Seal encrypts key, drawing any randomness from r.
	Seal(r io.Reader, key []byte) ([]byte, error)
}

// PayloadCipher is the symmetric cipher applied to request and response
// payloads.
type PayloadCipher interface {
	// Name returns the algorithm identifier.
	Name() string

	Encrypt(key, iv, plaintext []byte) ([]byte, error)
	Decrypt(key, iv, ciphertext []byte) ([]byte, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.rand = r
	}
}

// Engine is the session crypto engine.  It is safe for concurrent use.
type Engine struct {
	sealer KeySealer
	cipher PayloadCipher
	rand   io.Reader
}

// NewEngine returns an Engine, after checking that the sealer and cipher
// round trip a session key.  A failure here means the client is
// misconfigured and no session can be established.
func NewEngine(sealer KeySealer, payloadCipher PayloadCipher, opts ...Option) (*Engine, error) {
	if sealer == nil || payloadCipher == nil {
		return nil, fmt.Errorf("hybrid: sealer and cipher are required")
	}
	e := &Engine{
		sealer: sealer,
		cipher: payloadCipher,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}

	key := make([]byte, constants.SessionKeyLength)
	iv := make([]byte, constants.IVLength)
	if _, err := io.ReadFull(e.rand, key); err != nil {
		return nil, fmt.Errorf("hybrid: entropy source failed: %w", err)
	}
	sealed, err := sealer.Seal(e.rand, key)
	if err != nil {
		return nil, fmt.Errorf("hybrid: %s: %w", sealer.Name(), err)
	}
	if len(sealed) != sealer.SealedSize() {
		return nil, fmt.Errorf("hybrid: %s: sealed %d bytes, expected %d", sealer.Name(), len(sealed), sealer.SealedSize())
	}
	ct, err := payloadCipher.Encrypt(key, iv, key)
	if err != nil {
		return nil, fmt.Errorf("hybrid: %s: %w", payloadCipher.Name(), err)
	}
	if _, err := payloadCipher.Decrypt(key, iv, ct); err != nil {
		return nil, fmt.Errorf("hybrid: %s: %w", payloadCipher.Name(), err)
	}
	return e, nil
}

// Sealer returns the engine's key sealer.
func (e *Engine) Sealer() KeySealer {
	return e.sealer
}

// Cipher returns the engine's payload cipher.
func (e *Engine) Cipher() PayloadCipher {
	return e.cipher
}

func (e *Engine) random(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(e.rand, b); err != nil {
		panic("hybrid: entropy source failed: " + err.Error())
	}
	return b
}

// GenerateSessionKey returns a fresh random session key.
func (e *Engine) GenerateSessionKey() []byte {
	return e.random(constants.SessionKeyLength)
}

// NewIV returns a fresh random IV.
func (e *Engine) NewIV() []byte {
	return e.random(constants.IVLength)
}

// NewNonce returns a fresh random initiation nonce.
func (e *Engine) NewNonce() []byte {
	return e.random(constants.NonceLength)
}

// SealKeyForServer encrypts key under the server public key.
func (e *Engine) SealKeyForServer(key []byte) []byte {
	if len(key) != constants.SessionKeyLength {
		panic(ErrInvalidKeyLength)
	}
	sealed, err := e.sealer.Seal(e.rand, key)
	if err != nil {
		panic("hybrid: " + e.sealer.Name() + ": " + err.Error())
	}
	return sealed
}

// EncryptPayload encrypts plaintext.  The key and IV lengths are part of
// the engine contract, so any failure here is a programming error.
func (e *Engine) EncryptPayload(key, iv, plaintext []byte) []byte {
	ct, err := e.cipher.Encrypt(key, iv, plaintext)
	if err != nil {
		panic("hybrid: " + e.cipher.Name() + ": " + err.Error())
	}
	return ct
}

// DecryptPayload decrypts ciphertext received from the server.  Errors are
// returned rather than raised since the input is untrusted.
func (e *Engine) DecryptPayload(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != constants.SessionKeyLength {
		panic(ErrInvalidKeyLength)
	}
	if len(iv) != constants.IVLength {
		panic(ErrInvalidIVLength)
	}
	return e.cipher.Decrypt(key, iv, ciphertext)
}

// NewSealer returns the key sealer with the given name for a PEM encoded
// server public key.  Any hpqc KEM scheme name is accepted alongside
// SealerRSA.
func NewSealer(name string, publicKeyPEM []byte) (KeySealer, error) {
	if name == SealerRSA {
		pub, err := ParseRSAPublicKey(publicKeyPEM)
		if err != nil {
			return nil, err
		}
		s, err := NewRSASealer(pub)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	pub, err := ParseKEMPublicKey(name, publicKeyPEM)
	if err != nil {
		return nil, err
	}
	s, err := NewKEMSealer(pub)
	if err != nil {
		return nil, err
	}
	return s, nil
}
