// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package hybrid

import (
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/chacha20poly1305"
	"github.com/katzenpost/hpqc/kem"
	kempem "github.com/katzenpost/hpqc/kem/pem"
	"github.com/katzenpost/hpqc/kem/schemes"
	"golang.org/x/crypto/blake2b"
)

const kemWrapContext = "feedbactory session key wrap v1"

// KEMSealer seals a session key with a KEM encapsulation followed by an
// AEAD wrap of the key under a secret derived from the shared secret.
//
// Output: KEM ciphertext || ChaCha20-Poly1305(wrapKey, 0, sessionKey).
type KEMSealer struct {
	scheme kem.Scheme
	pub    kem.PublicKey
}

// NewKEMSealer returns a KEMSealer for pub.
func NewKEMSealer(pub kem.PublicKey) (*KEMSealer, error) {
	if pub == nil {
		return nil, errors.New("hybrid: nil KEM public key")
	}
	return &KEMSealer{scheme: pub.Scheme(), pub: pub}, nil
}

// ParseKEMPublicKey parses a PEM encoded public key for the named hpqc KEM
// scheme.
func ParseKEMPublicKey(schemeName string, b []byte) (kem.PublicKey, error) {
	s := schemes.ByName(schemeName)
	if s == nil {
		return nil, fmt.Errorf("%w: KEM scheme %q", ErrUnknownAlgorithm, schemeName)
	}
	return kempem.FromPublicPEMBytes(b, s)
}

func (s *KEMSealer) Name() string { return s.scheme.Name() }

func (s *KEMSealer) SealedSize() int {
	return s.scheme.CiphertextSize() + 16 + chacha20poly1305.Overhead
}

// Seal ignores r; the hpqc schemes draw from their own entropy source.
func (s *KEMSealer) Seal(_ io.Reader, key []byte) ([]byte, error) {
	ct, ss, err := s.scheme.Encapsulate(s.pub)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(wrapKey(ct, ss))
	if err != nil {
		return nil, err
	}
	defer aead.Reset()
	nonce := make([]byte, aead.NonceSize())
	return aead.Seal(ct, nonce, key, nil), nil
}

// OpenKEM recovers a session key sealed by KEMSealer.
func OpenKEM(priv kem.PrivateKey, sealed []byte) ([]byte, error) {
	scheme := priv.Scheme()
	n := scheme.CiphertextSize()
	if len(sealed) <= n {
		return nil, fmt.Errorf("%w: sealed key too short", ErrDecrypt)
	}
	ct := sealed[:n]
	ss, err := scheme.Decapsulate(priv, ct)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(wrapKey(ct, ss))
	if err != nil {
		return nil, err
	}
	defer aead.Reset()
	nonce := make([]byte, aead.NonceSize())
	key, err := aead.Open(nil, nonce, sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return key, nil
}

func wrapKey(ct, ss []byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(kemWrapContext))
	h.Write(ct)
	h.Write(ss)
	return h.Sum(nil)
}
