// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package hybrid

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

// SealerRSA is RSA PKCS#1 v1.5 encryption of the session key, the scheme
// the deployed server expects.
const SealerRSA = "RSA-PKCS1v15"

// RSASealer seals a session key under an RSA public key.
type RSASealer struct {
	pub *rsa.PublicKey
}

// NewRSASealer returns an RSASealer for pub.
func NewRSASealer(pub *rsa.PublicKey) (*RSASealer, error) {
	if pub == nil {
		return nil, errors.New("hybrid: nil RSA public key")
	}
	if pub.Size() < 128 {
		return nil, fmt.Errorf("hybrid: RSA modulus of %d bits is too small", pub.N.BitLen())
	}
	return &RSASealer{pub: pub}, nil
}

func (s *RSASealer) Name() string { return SealerRSA }

func (s *RSASealer) SealedSize() int { return s.pub.Size() }

func (s *RSASealer) Seal(r io.Reader, key []byte) ([]byte, error) {
	return rsa.EncryptPKCS1v15(r, s.pub, key)
}

// ParseRSAPublicKey parses a PEM encoded PKIX ("PUBLIC KEY") or PKCS#1
// ("RSA PUBLIC KEY") RSA public key.
func ParseRSAPublicKey(b []byte) (*rsa.PublicKey, error) {
	blk, _ := pem.Decode(b)
	if blk == nil {
		return nil, errors.New("hybrid: no PEM block in RSA public key")
	}
	switch blk.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(blk.Bytes)
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(blk.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("hybrid: PEM public key is %T, not RSA", k)
		}
		return pub, nil
	}
	return nil, fmt.Errorf("hybrid: unexpected PEM block type %q", blk.Type)
}

// OpenRSA recovers a session key sealed by RSASealer.
func OpenRSA(priv *rsa.PrivateKey, sealed []byte) ([]byte, error) {
	return rsa.DecryptPKCS1v15(nil, priv, sealed)
}
