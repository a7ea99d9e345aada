// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/constants"
	"github.com/feedbactory/client/core/log"
	"github.com/feedbactory/client/hybrid"
	"github.com/feedbactory/client/transport"
	"github.com/feedbactory/client/wire"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey

	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	testAccount = account.Details{
		Email:       "user@example.com",
		Gender:      wire.Female,
		DateOfBirth: time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
	}
)

func serverKey(t *testing.T) *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return testKey
}

func testEngine(t *testing.T) *hybrid.Engine {
	sealer, err := hybrid.NewRSASealer(&serverKey(t).PublicKey)
	require.NoError(t, err)
	e, err := hybrid.NewEngine(sealer, hybrid.CBC{})
	require.NoError(t, err)
	return e
}

func testHash(b byte) []byte {
	return bytes.Repeat([]byte{b}, constants.PasswordHashLength)
}

// stubServer is an in process Exchanger that plays the server side of the
// session protocol.
type stubServer struct {
	sync.Mutex

	t      *testing.T
	priv   *rsa.PrivateKey
	engine *hybrid.Engine

	handshake     transport.Status
	handshakeDone bool
	serverTime    int64

	// sendStatus short circuits every Send when not OK.
	sendStatus transport.Status

	// raw, if set, is returned verbatim as the response body.
	raw []byte

	initAuth    wire.AuthenticationStatus
	sessionAuth wire.AuthenticationStatus
	account     account.Details
	message     wire.Message

	// echo, if set, computes the counter returned for a received counter
	// without checking or advancing the server's own count.
	echo func(int32) int32

	// count is the counter the server expects on the next encrypted
	// request.  It restarts at zero with every new session.
	count int32

	// reply computes the operation payload returned for a request.
	reply func(payload []byte) []byte

	sessionID []byte
	key       []byte

	tags         []wire.SessionRequestType
	opts         []transport.SendOptions
	initTimes    []int64
	initPayloads [][]byte
	counters     []int32
	payloads     [][]byte
}

func newStubServer(t *testing.T) *stubServer {
	return &stubServer{
		t:          t,
		priv:       serverKey(t),
		engine:     testEngine(t),
		serverTime: testNow.UnixMilli(),
		account:    testAccount,
		sessionID:  bytes.Repeat([]byte{0xa5}, constants.SessionIDLength),
	}
}

func (s *stubServer) CheckHandshake() (transport.Status, error) {
	s.Lock()
	defer s.Unlock()
	if s.handshake == transport.StatusOK {
		s.handshakeDone = true
	}
	return s.handshake, nil
}

func (s *stubServer) ApproximateServerTime() (int64, error) {
	s.Lock()
	defer s.Unlock()
	if !s.handshakeDone {
		return 0, transport.ErrNoHandshake
	}
	return s.serverTime, nil
}

func (s *stubServer) Send(body []byte, opts transport.SendOptions) (transport.Status, []byte, error) {
	s.Lock()
	defer s.Unlock()

	r := wire.NewReader(body)
	tag := wire.SessionRequestType(r.Byte("tag"))
	s.tags = append(s.tags, tag)
	s.opts = append(s.opts, opts)

	if s.sendStatus != transport.StatusOK {
		return s.sendStatus, nil, nil
	}
	if s.raw != nil {
		return transport.StatusOK, s.raw, nil
	}

	switch tag {
	case wire.NoSession:
		return transport.StatusOK, s.replyFor(r.Rest()), nil
	case wire.InitiateSession:
		return transport.StatusOK, s.initiate(r), nil
	case wire.RegularSession:
		assert.Equal(s.t, s.sessionID, r.Bytes("session ID", constants.SessionIDLength))
		payload := r.Rest()
		w := wire.NewWriter(0)
		w.PutByte(byte(s.sessionAuth))
		if s.sessionAuth == wire.AuthSuccess {
			w.PutMessage(s.message).PutBytes(s.replyFor(payload))
		}
		return transport.StatusOK, w.Bytes(), nil
	default:
		return transport.StatusOK, s.encrypted(tag, r), nil
	}
}

func (s *stubServer) initiate(r *wire.Reader) []byte {
	key, err := hybrid.OpenRSA(s.priv, r.Bytes("sealed key", s.priv.Size()))
	assert.NoError(s.t, err)
	reqIV := r.Bytes("request IV", constants.IVLength)
	respIV := r.Bytes("response IV", constants.IVLength)
	ct := r.Rest()
	assert.NoError(s.t, r.Err())

	pt, err := s.engine.DecryptPayload(key, reqIV, ct)
	assert.NoError(s.t, err)
	pr := wire.NewReader(pt)
	s.initTimes = append(s.initTimes, pr.Int64("server time"))
	pr.Bytes("nonce", constants.NonceLength)
	s.initPayloads = append(s.initPayloads, pr.Rest())
	assert.NoError(s.t, pr.Err())

	w := wire.NewWriter(0)
	w.PutByte(byte(s.initAuth))
	if s.initAuth == wire.AuthSuccess {
		s.key = key
		s.count = 0
		w.PutBytes(s.sessionID).PutMessage(s.message)
		account.PutDetails(w, s.account)
	}
	return s.engine.EncryptPayload(key, respIV, w.Bytes())
}

func (s *stubServer) encrypted(tag wire.SessionRequestType, r *wire.Reader) []byte {
	assert.Equal(s.t, s.sessionID, r.Bytes("session ID", constants.SessionIDLength))
	reqIV := r.Bytes("request IV", constants.IVLength)
	respIV := r.Bytes("response IV", constants.IVLength)
	ct := r.Rest()
	assert.NoError(s.t, r.Err())

	pt, err := s.engine.DecryptPayload(s.key, reqIV, ct)
	assert.NoError(s.t, err)
	pr := wire.NewReader(pt)
	sent := pr.Int32("counter")
	payload := pr.Rest()
	s.counters = append(s.counters, sent)
	s.payloads = append(s.payloads, payload)

	w := wire.NewWriter(0)
	auth := s.sessionAuth
	if auth == wire.AuthSuccess && s.echo == nil && sent != s.count {
		auth = wire.AuthFailed
	}
	w.PutByte(byte(auth))
	if auth != wire.AuthSuccess {
		return w.Bytes()
	}

	var echo int32
	if s.echo != nil {
		echo = s.echo(sent)
	} else {
		// Echo count+1, then expect count+2 on the next request.
		echo = s.count + 1
		s.count += 2
	}
	inner := wire.NewWriter(0)
	inner.PutInt32(echo).PutMessage(s.message)
	switch tag {
	case wire.ResumeSession:
		account.PutDetails(inner, s.account)
	case wire.EncryptedSession:
		inner.PutBytes(s.replyFor(payload))
	}
	return w.PutBytes(s.engine.EncryptPayload(s.key, respIV, inner.Bytes())).Bytes()
}

func (s *stubServer) replyFor(payload []byte) []byte {
	if s.reply == nil {
		return nil
	}
	return s.reply(payload)
}

func (s *stubServer) set(fn func(s *stubServer)) {
	s.Lock()
	defer s.Unlock()
	fn(s)
}

func (s *stubServer) lastTag() wire.SessionRequestType {
	s.Lock()
	defer s.Unlock()
	return s.tags[len(s.tags)-1]
}

func (s *stubServer) lastPayload() []byte {
	s.Lock()
	defer s.Unlock()
	return s.payloads[len(s.payloads)-1]
}

type memPersister struct {
	sync.Mutex

	rec    *Record
	saves  int
	clears int
}

func (p *memPersister) Save(r *Record) error {
	p.Lock()
	defer p.Unlock()
	p.rec = r.Clone()
	p.saves++
	return nil
}

func (p *memPersister) Restore() (*Record, error) {
	p.Lock()
	defer p.Unlock()
	if p.rec == nil {
		return nil, nil
	}
	return p.rec.Clone(), nil
}

func (p *memPersister) Clear() error {
	p.Lock()
	defer p.Unlock()
	p.rec = nil
	p.clears++
	return nil
}

type recorder struct {
	sync.Mutex

	signedIn      []account.Details
	updated       []account.Details
	signedOut     []account.Details
	messages      []wire.Message
	sessionErrors int
}

func (r *recorder) SignedIn(d account.Details) {
	r.Lock()
	defer r.Unlock()
	r.signedIn = append(r.signedIn, d)
}

func (r *recorder) AccountUpdated(d account.Details) {
	r.Lock()
	defer r.Unlock()
	r.updated = append(r.updated, d)
}

func (r *recorder) SignedOut(d account.Details) {
	r.Lock()
	defer r.Unlock()
	r.signedOut = append(r.signedOut, d)
}

func (r *recorder) Message(m wire.Message) {
	r.Lock()
	defer r.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recorder) SessionError() {
	r.Lock()
	defer r.Unlock()
	r.sessionErrors++
}

type managerOption func(*Config)

func withPersister(p Persister) managerOption {
	return func(c *Config) { c.Persister = p }
}

func withPolicy(p ReplayPolicy) managerOption {
	return func(c *Config) { c.ReplayPolicy = p }
}

func newTestManager(t *testing.T, srv *stubServer, opts ...managerOption) (*Manager, *recorder) {
	backend, err := log.NewWithWriter(io.Discard, "DEBUG")
	require.NoError(t, err)

	cfg := &Config{
		Engine:    testEngine(t),
		Transport: srv,
		Logger:    backend.GetLogger("session"),
		Clock:     func() time.Time { return testNow },
	}
	for _, o := range opts {
		o(cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)

	rec := &recorder{}
	m.SubscribeAccount(rec)
	m.SubscribeMessages(rec)
	m.SubscribeSessionErrors(rec)
	return m, rec
}

func signIn(t *testing.T, m *Manager, persistent bool) {
	res, err := m.SignIn(testAccount.Email, testHash(1), persistent)
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, wire.AuthSuccess, res.Auth)
}
