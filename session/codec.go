// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"errors"
	"fmt"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/constants"
	"github.com/feedbactory/client/hybrid"
	"github.com/feedbactory/client/wire"
)

var errEmptyResponse = errors.New("empty response")

// Codec frames request bodies for each session mode and decodes the
// matching response bodies.
type Codec struct {
	engine *hybrid.Engine
}

// NewCodec returns a Codec using engine for all cryptography.
func NewCodec(engine *hybrid.Engine) *Codec {
	return &Codec{engine: engine}
}

// PendingInitiation holds the client side secrets of an initiation request
// until its response arrives.
type PendingInitiation struct {
	Key        []byte
	ResponseIV []byte
}

// NoSessionRequest frames payload as [0][payload].
func (c *Codec) NoSessionRequest(payload []byte) []byte {
	w := wire.NewWriter(1 + len(payload))
	w.PutByte(byte(wire.NoSession)).PutBytes(payload)
	return w.Bytes()
}

// RegularSessionRequest frames payload as [2][sessionID][payload].
func (c *Codec) RegularSessionRequest(id, payload []byte) []byte {
	w := wire.NewWriter(1 + len(id) + len(payload))
	w.PutByte(byte(wire.RegularSession)).PutBytes(id).PutBytes(payload)
	return w.Bytes()
}

// InitiationRequest generates a fresh session key and frames payload as
// [1][sealed key][request IV][response IV][ciphertext], where the
// ciphertext covers [server time][nonce][payload].
func (c *Codec) InitiationRequest(serverTime int64, payload []byte) ([]byte, *PendingInitiation) {
	key := c.engine.GenerateSessionKey()
	reqIV := c.engine.NewIV()
	respIV := c.engine.NewIV()

	pt := wire.NewWriter(constants.InitiationHeaderLength + len(payload))
	pt.PutInt64(serverTime).PutBytes(c.engine.NewNonce()).PutBytes(payload)

	sealed := c.engine.SealKeyForServer(key)
	ct := c.engine.EncryptPayload(key, reqIV, pt.Bytes())

	w := wire.NewWriter(1 + len(sealed) + 2*constants.IVLength + len(ct))
	w.PutByte(byte(wire.InitiateSession)).PutBytes(sealed).PutBytes(reqIV).PutBytes(respIV).PutBytes(ct)
	return w.Bytes(), &PendingInitiation{Key: key, ResponseIV: respIV}
}

// EncryptedRequest frames payload for one of the encrypted session tags
// as [tag][sessionID][request IV][response IV][ciphertext], where the
// ciphertext covers [counter][payload].  The response IV is returned for
// decoding the reply.
func (c *Codec) EncryptedRequest(tag wire.SessionRequestType, r *Record, payload []byte) ([]byte, []byte) {
	reqIV := c.engine.NewIV()
	respIV := c.engine.NewIV()

	pt := wire.NewWriter(constants.CounterHeaderLength + len(payload))
	pt.PutInt32(r.Counter).PutBytes(payload)
	ct := c.engine.EncryptPayload(r.Key, reqIV, pt.Bytes())

	w := wire.NewWriter(1 + len(r.ID) + 2*constants.IVLength + len(ct))
	w.PutByte(byte(tag)).PutBytes(r.ID).PutBytes(reqIV).PutBytes(respIV).PutBytes(ct)
	return w.Bytes(), respIV
}

// InitiationResponse is a decoded initiation response.  The remaining
// fields are only set when Status is wire.AuthSuccess.
type InitiationResponse struct {
	Status    wire.AuthenticationStatus
	SessionID []byte
	Message   wire.Message
	Account   account.Details
}

// ParseInitiationResponse decrypts and decodes an initiation response.
func (c *Codec) ParseInitiationResponse(p *PendingInitiation, body []byte) (*InitiationResponse, error) {
	pt, err := c.engine.DecryptPayload(p.Key, p.ResponseIV, body)
	if err != nil {
		return nil, err
	}
	r := wire.NewReader(pt)
	status, err := wire.ParseAuthenticationStatus(r.Byte("authentication status"))
	if r.Err() != nil {
		return nil, r.Err()
	}
	if err != nil {
		return nil, err
	}
	resp := &InitiationResponse{Status: status}
	if status != wire.AuthSuccess {
		return resp, nil
	}
	resp.SessionID = r.Bytes("session ID", constants.SessionIDLength)
	resp.Message = r.Message("message")
	resp.Account = account.ReadDetails(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// EncryptedResponse is a decoded encrypted session response.  Counter and
// Body are only set when Status is wire.AuthSuccess.
type EncryptedResponse struct {
	Status wire.AuthenticationStatus

	// Counter is the counter echoed by the server.
	Counter int32

	// Body is the decrypted remainder: the message block followed by the
	// operation payload.
	Body []byte
}

// ParseEncryptedResponse decodes [auth status][ciphertext] using the
// session key and the response IV of the matching request.
func (c *Codec) ParseEncryptedResponse(key, respIV, body []byte) (*EncryptedResponse, error) {
	if len(body) == 0 {
		return nil, errEmptyResponse
	}
	status, err := wire.ParseAuthenticationStatus(body[0])
	if err != nil {
		return nil, err
	}
	resp := &EncryptedResponse{Status: status}
	if status != wire.AuthSuccess {
		return resp, nil
	}
	pt, err := c.engine.DecryptPayload(key, respIV, body[1:])
	if err != nil {
		return nil, err
	}
	r := wire.NewReader(pt)
	resp.Counter = r.Int32("session counter")
	if err := r.Err(); err != nil {
		return nil, err
	}
	resp.Body = r.Rest()
	return resp, nil
}

// ParseRegularResponse decodes [auth status][message][rest].  The message
// and rest are only decoded on success.
func ParseRegularResponse(body []byte) (wire.AuthenticationStatus, wire.Message, []byte, error) {
	r := wire.NewReader(body)
	status, err := wire.ParseAuthenticationStatus(r.Byte("authentication status"))
	if r.Err() != nil {
		return 0, wire.Message{}, nil, r.Err()
	}
	if err != nil {
		return 0, wire.Message{}, nil, err
	}
	if status != wire.AuthSuccess {
		return status, wire.Message{}, nil, nil
	}
	msg := r.Message("message")
	if err := r.Err(); err != nil {
		return 0, wire.Message{}, nil, err
	}
	return status, msg, r.Rest(), nil
}

// readMessage splits a leading message block off body.
func readMessage(body []byte) (wire.Message, *wire.Reader, error) {
	r := wire.NewReader(body)
	msg := r.Message("message")
	if err := r.Err(); err != nil {
		return wire.Message{}, nil, fmt.Errorf("message block: %w", err)
	}
	return msg, r, nil
}
