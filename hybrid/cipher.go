// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package hybrid

import (
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"gitlab.com/yawning/bsaes.git"

	"github.com/feedbactory/client/constants"
)

const (
	// CipherAESCBC is AES-128 in CBC mode with PKCS#7 padding, the cipher
	// the deployed server speaks.
	CipherAESCBC = "AES-128-CBC"

	// CipherAESGCM is AES-128-GCM using the 16 byte IV as the nonce.
	CipherAESGCM = "AES-128-GCM"
)

// CipherByName returns the payload cipher with the given name.
func CipherByName(name string) (PayloadCipher, error) {
	switch name {
	case CipherAESCBC:
		return CBC{}, nil
	case CipherAESGCM:
		return GCM{}, nil
	}
	return nil, fmt.Errorf("%w: payload cipher %q", ErrUnknownAlgorithm, name)
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != constants.SessionKeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(iv) != constants.IVLength {
		return nil, ErrInvalidIVLength
	}
	return bsaes.NewCipher(key)
}

// CBC is the AES-128-CBC payload cipher.
type CBC struct{}

func (CBC) Name() string { return CipherAESCBC }

func (CBC) Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	padLen := bs - len(plaintext)%bs
	out := make([]byte, len(plaintext)+padLen)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, out)
	return out, nil
}

func (CBC) Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrDecrypt, len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > bs {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	want := make([]byte, padLen)
	for i := range want {
		want[i] = byte(padLen)
	}
	if subtle.ConstantTimeCompare(out[len(out)-padLen:], want) != 1 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	return out[:len(out)-padLen], nil
}

// GCM is the AES-128-GCM payload cipher.
type GCM struct{}

func (GCM) Name() string { return CipherAESGCM }

func (GCM) aead(key, iv []byte) (cipher.AEAD, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, constants.IVLength)
}

func (g GCM) Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	aead, err := g.aead(key, iv)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

func (g GCM) Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := g.aead(key, iv)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return pt, nil
}
