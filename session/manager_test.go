// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/constants"
	"github.com/feedbactory/client/transport"
	"github.com/feedbactory/client/wire"
)

func TestSignInAndEncryptedExchange(t *testing.T) {
	srv := newStubServer(t)
	m, rec := newTestManager(t, srv)

	require.False(t, m.HasSession())
	signIn(t, m, false)

	require.True(t, m.HasSession())
	require.True(t, m.HasResolvedSession())
	require.False(t, m.HasPersistentSession())
	counter, ok := m.ReplayCounter()
	require.True(t, ok)
	require.Equal(t, int32(0), counter)
	expiry, ok := m.Expiry()
	require.True(t, ok)
	require.Equal(t, testNow.Add(constants.DefaultClientExpiry), expiry)
	acct, ok := m.SignedInAccount()
	require.True(t, ok)
	require.Equal(t, testAccount.Email, acct.Email)
	require.Len(t, rec.signedIn, 1)
	require.Equal(t, []int64{testNow.UnixMilli()}, srv.initTimes)

	srv.set(func(s *stubServer) {
		s.reply = func(p []byte) []byte { return append([]byte("re:"), p...) }
	})
	res, err := m.SendEncryptedSessionRequest([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, []byte("re:ping"), res.Body)
	counter, _ = m.ReplayCounter()
	require.Equal(t, int32(2), counter)
	require.Equal(t, []int32{0}, srv.counters)

	res, err = m.SendEncryptedSessionRequest([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	counter, _ = m.ReplayCounter()
	require.Equal(t, int32(4), counter)
	require.Equal(t, []int32{0, 2}, srv.counters)

	srv.set(func(s *stubServer) {
		s.echo = func(int32) int32 { return 5 }
	})
	res, err = m.SendEncryptedSessionRequest([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.Nil(t, res.Body)
	counter, _ = m.ReplayCounter()
	require.Equal(t, int32(4), counter)
	require.True(t, m.HasResolvedSession())
	require.Equal(t, 1, rec.sessionErrors)
	require.Empty(t, rec.signedOut)
}

func TestReplayMismatchOnFreshSession(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)
	signIn(t, m, false)

	srv.set(func(s *stubServer) {
		s.echo = func(int32) int32 { return 5 }
	})
	res, err := m.SendEncryptedSessionRequest(nil)
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	counter, _ := m.ReplayCounter()
	require.Equal(t, int32(0), counter)

	srv.set(func(s *stubServer) { s.echo = nil })
	res, err = m.SendEncryptedSessionRequest(nil)
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	counter, _ = m.ReplayCounter()
	require.Equal(t, int32(2), counter)
}

func TestReplayedResponseRejected(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)
	signIn(t, m, false)

	for range 3 {
		res, err := m.SendEncryptedSessionRequest(nil)
		require.NoError(t, err)
		require.Equal(t, StatusOK, res.Status)
	}

	// A response echoing an already consumed counter.
	srv.set(func(s *stubServer) {
		s.echo = func(sent int32) int32 { return sent }
	})
	res, err := m.SendEncryptedSessionRequest(nil)
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	counter, _ := m.ReplayCounter()
	require.Equal(t, int32(6), counter)
}

func TestCounterMonotonic(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)
	signIn(t, m, false)

	const n = 10
	for range n {
		res, err := m.SendEncryptedSessionRequest([]byte{1})
		require.NoError(t, err)
		require.Equal(t, StatusOK, res.Status)
	}
	require.True(t, m.HasResolvedSession())
	counter, _ := m.ReplayCounter()
	require.Equal(t, int32(2*n), counter)
	require.Len(t, srv.counters, n)
	for i, c := range srv.counters {
		require.Equal(t, int32(2*i), c)
	}
}

func TestConcurrentEncryptedRequests(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)
	signIn(t, m, false)

	const workers, each = 8, 10
	var wg sync.WaitGroup
	statuses := make(chan Status, workers*each)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				res, err := m.SendEncryptedSessionRequest(nil)
				if err == nil {
					statuses <- res.Status
				}
			}
		}()
	}
	wg.Wait()
	close(statuses)

	n := 0
	for st := range statuses {
		require.Equal(t, StatusOK, st)
		n++
	}
	require.Equal(t, workers*each, n)
	counter, _ := m.ReplayCounter()
	require.Equal(t, int32(2*workers*each), counter)
	for i, c := range srv.counters {
		require.Equal(t, int32(2*i), c)
	}
}

func TestReplayMismatchSignOutPolicy(t *testing.T) {
	srv := newStubServer(t)
	store := &memPersister{}
	m, rec := newTestManager(t, srv, withPolicy(SignOutOnMismatch), withPersister(store))
	signIn(t, m, true)
	require.NoError(t, m.Shutdown())
	require.NotNil(t, store.rec)

	srv.set(func(s *stubServer) {
		s.echo = func(int32) int32 { return 9 }
	})
	res, err := m.SendEncryptedSessionRequest(nil)
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.False(t, m.HasSession())
	require.Len(t, rec.signedOut, 1)
	require.Equal(t, 1, rec.sessionErrors)
	require.Nil(t, store.rec)
}

func TestSingleSession(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)
	signIn(t, m, false)

	_, err := m.SignIn("other@example.com", testHash(2), true)
	require.ErrorIs(t, err, ErrIllegalState)
	var ise *IllegalStateError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, "sign in", ise.Op)

	_, err = m.SignUp("other@example.com", wire.Male, testNow, false)
	require.ErrorIs(t, err, ErrIllegalState)

	require.Len(t, srv.initPayloads, 1)
	require.False(t, m.HasPersistentSession())
	acct, _ := m.SignedInAccount()
	require.Equal(t, testAccount.Email, acct.Email)
}

func TestInitiationHandshakeFailure(t *testing.T) {
	srv := newStubServer(t)
	srv.handshake = transport.StatusFailedNetworkOther
	m, _ := newTestManager(t, srv)

	res, err := m.SignIn(testAccount.Email, testHash(1), false)
	require.NoError(t, err)
	require.Equal(t, StatusFailedNetworkOther, res.Status)
	require.False(t, m.HasSession())
	require.Empty(t, srv.tags)
}

func TestInitiationTransportFailure(t *testing.T) {
	srv := newStubServer(t)
	srv.sendStatus = transport.StatusFailedTimeout
	m, _ := newTestManager(t, srv)

	res, err := m.SignIn(testAccount.Email, testHash(1), false)
	require.NoError(t, err)
	require.Equal(t, StatusFailedTimeout, res.Status)
	require.False(t, m.HasSession())
}

func TestInitiationAuthFailure(t *testing.T) {
	for _, auth := range []wire.AuthenticationStatus{
		wire.AuthSuccessAccountNotActivated,
		wire.AuthFailed,
		wire.AuthFailedTooManyAttempts,
		wire.AuthFailedCapacityReached,
	} {
		t.Run(auth.String(), func(t *testing.T) {
			srv := newStubServer(t)
			srv.initAuth = auth
			m, rec := newTestManager(t, srv)

			res, err := m.SignIn(testAccount.Email, testHash(1), true)
			require.NoError(t, err)
			require.Equal(t, StatusOK, res.Status)
			require.Equal(t, auth, res.Auth)
			require.False(t, m.HasSession())
			require.Empty(t, rec.signedIn)
		})
	}
}

func TestInitiationPayloads(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)
	dob := time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := m.SignUp("new@example.com", wire.Male, dob, true)
	require.NoError(t, err)
	r := wire.NewReader(srv.initPayloads[0])
	require.Equal(t, byte(wire.InitiateSignUp), r.Byte("type"))
	email, ok := r.String("email")
	require.True(t, ok)
	require.Equal(t, "new@example.com", email)
	require.Equal(t, byte(wire.Male), r.Byte("gender"))
	require.Equal(t, dob.UnixMilli(), r.Int64("dob"))
	require.True(t, r.Bool("alerts"))
	require.NoError(t, r.Err())
	require.Zero(t, r.Remaining())
	require.False(t, m.HasPersistentSession())

	_, err = m.SignOut()
	require.NoError(t, err)

	_, err = m.ActivateAccount("new@example.com", "ABCDEFGHIJKL", testHash(3))
	require.NoError(t, err)
	r = wire.NewReader(srv.initPayloads[1])
	require.Equal(t, byte(wire.InitiateActivateAccount), r.Byte("type"))
	r.String("email")
	code, _ := r.String("code")
	require.Equal(t, "ABCDEFGHIJKL", code)
	require.Equal(t, testHash(3), r.Bytes("hash", constants.PasswordHashLength))
	require.NoError(t, r.Err())
	require.False(t, m.HasPersistentSession())

	_, err = m.SignOut()
	require.NoError(t, err)

	_, err = m.ResetPassword("new@example.com", "LKJIHGFEDCBA", testHash(4))
	require.NoError(t, err)
	r = wire.NewReader(srv.initPayloads[2])
	require.Equal(t, byte(wire.InitiateResetPassword), r.Byte("type"))
	r.String("email")
	r.String("code")
	require.Equal(t, testHash(4), r.Bytes("hash", constants.PasswordHashLength))
	require.NoError(t, r.Err())
	require.False(t, m.HasPersistentSession())

	_, err = m.SignOut()
	require.NoError(t, err)

	signIn(t, m, true)
	r = wire.NewReader(srv.initPayloads[3])
	require.Equal(t, byte(wire.InitiateEmailSignIn), r.Byte("type"))
	email, _ = r.String("email")
	require.Equal(t, testAccount.Email, email)
	require.Equal(t, testHash(1), r.Bytes("hash", constants.PasswordHashLength))
	require.True(t, m.HasPersistentSession())
}

func TestInvalidPasswordHash(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)

	_, err := m.SignIn(testAccount.Email, []byte{1, 2, 3}, false)
	require.ErrorIs(t, err, ErrInvalidPasswordHash)
	_, err = m.ActivateAccount(testAccount.Email, "code", nil)
	require.ErrorIs(t, err, ErrInvalidPasswordHash)
	_, err = m.ResetPassword(testAccount.Email, "code", testHash(1)[:31])
	require.ErrorIs(t, err, ErrInvalidPasswordHash)
	require.Empty(t, srv.tags)
}

func TestSignOutAlwaysClears(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(s *stubServer)
		status Status
	}{
		{"ok", func(*stubServer) {}, StatusOK},
		{"timeout", func(s *stubServer) { s.sendStatus = transport.StatusFailedTimeout }, StatusFailedTimeout},
		{"network", func(s *stubServer) { s.sendStatus = transport.StatusFailedNetworkOther }, StatusFailedNetworkOther},
		{"consumed", func(s *stubServer) { s.sendStatus = transport.StatusConsumed }, StatusConsumed},
		{"rejected", func(s *stubServer) { s.sessionAuth = wire.AuthFailed }, StatusConsumed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newStubServer(t)
			store := &memPersister{}
			m, rec := newTestManager(t, srv, withPersister(store))
			signIn(t, m, true)
			require.NoError(t, m.Shutdown())

			srv.set(tc.setup)
			res, err := m.SignOut()
			require.NoError(t, err)
			require.Equal(t, tc.status, res.Status)
			require.Equal(t, wire.EndSession, srv.lastTag())
			require.False(t, m.HasSession())
			require.Nil(t, store.rec)
			require.Len(t, rec.signedOut, 1)
		})
	}
}

func TestSignOutRequiresSession(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)

	_, err := m.SignOut()
	require.ErrorIs(t, err, ErrIllegalState)
	_, err = m.SignOutForShutdown(time.Second)
	require.ErrorIs(t, err, ErrIllegalState)
}

func TestSignOutForShutdown(t *testing.T) {
	srv := newStubServer(t)
	m, rec := newTestManager(t, srv)
	signIn(t, m, false)

	srv.set(func(s *stubServer) { s.sessionAuth = wire.AuthFailed })
	res, err := m.SignOutForShutdown(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.False(t, m.HasSession())
	require.Zero(t, rec.sessionErrors)

	last := srv.opts[len(srv.opts)-1]
	require.True(t, last.Priority)
	require.Equal(t, 2*time.Second, last.Timeout)
}

func TestSessionRejected(t *testing.T) {
	srv := newStubServer(t)
	store := &memPersister{}
	m, rec := newTestManager(t, srv, withPersister(store))
	signIn(t, m, true)
	require.NoError(t, m.Shutdown())

	srv.set(func(s *stubServer) { s.sessionAuth = wire.AuthFailed })
	res, err := m.SendEncryptedSessionRequest([]byte{1})
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.False(t, m.HasSession())
	require.Len(t, rec.signedOut, 1)
	require.Equal(t, testAccount.Email, rec.signedOut[0].Email)
	require.Equal(t, 1, rec.sessionErrors)
	require.Nil(t, store.rec)

	_, err = m.SendEncryptedSessionRequest([]byte{1})
	require.ErrorIs(t, err, ErrIllegalState)
}

func TestRegularSessionRejected(t *testing.T) {
	srv := newStubServer(t)
	m, rec := newTestManager(t, srv)
	signIn(t, m, false)

	srv.set(func(s *stubServer) {
		s.reply = func(p []byte) []byte { return p }
	})
	res, err := m.SendRegularSessionRequest([]byte("plain"))
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, []byte("plain"), res.Body)

	srv.set(func(s *stubServer) { s.sessionAuth = wire.AuthFailedTooManyAttempts })
	res, err = m.SendRegularSessionRequest([]byte("plain"))
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.False(t, m.HasSession())
	require.Len(t, rec.signedOut, 1)
	require.Equal(t, 1, rec.sessionErrors)
}

func TestProtocolFaults(t *testing.T) {
	for _, raw := range [][]byte{
		{99},
		{byte(wire.AuthSuccess), 1, 2, 3},
		{},
	} {
		srv := newStubServer(t)
		m, _ := newTestManager(t, srv)
		signIn(t, m, false)

		srv.set(func(s *stubServer) { s.raw = raw })
		_, err := m.SendEncryptedSessionRequest(nil)
		require.ErrorIs(t, err, ErrProtocol)
		var pe *ProtocolError
		require.ErrorAs(t, err, &pe)
		require.True(t, m.HasSession())
		counter, _ := m.ReplayCounter()
		require.Zero(t, counter)
	}
}

func TestInitiationProtocolFault(t *testing.T) {
	srv := newStubServer(t)
	srv.raw = []byte{1, 2, 3}
	m, _ := newTestManager(t, srv)

	_, err := m.SignIn(testAccount.Email, testHash(1), false)
	require.ErrorIs(t, err, ErrProtocol)
	require.False(t, m.HasSession())
}

func TestPersistentResume(t *testing.T) {
	srv := newStubServer(t)
	store := &memPersister{}
	m, _ := newTestManager(t, srv, withPersister(store))
	signIn(t, m, true)
	for range 2 {
		_, err := m.SendEncryptedSessionRequest(nil)
		require.NoError(t, err)
	}
	require.NoError(t, m.Shutdown())
	require.Equal(t, 1, store.saves)
	require.Equal(t, int32(4), store.rec.Counter)

	later := testNow.Add(time.Hour)
	m2, rec := newTestManager(t, srv, withPersister(store), func(c *Config) {
		c.Clock = func() time.Time { return later }
	})
	require.True(t, m2.HasSession())
	require.True(t, m2.HasPersistentSession())
	require.False(t, m2.HasResolvedSession())
	_, ok := m2.SignedInAccount()
	require.False(t, ok)

	res, err := m2.ResumePersistentSession()
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, wire.OperationOK, res.Operation)
	require.Equal(t, wire.ResumeSession, srv.lastTag())
	require.True(t, m2.HasResolvedSession())
	require.Len(t, rec.signedIn, 1)
	counter, _ := m2.ReplayCounter()
	require.Equal(t, int32(6), counter)
	expiry, _ := m2.Expiry()
	require.Equal(t, later.Add(constants.DefaultClientExpiry), expiry)

	srv.set(func(s *stubServer) {
		s.reply = func([]byte) []byte { return []byte{byte(wire.OperationOK)} }
	})
	basic, err := m2.UpdateSendEmailAlerts(true)
	require.NoError(t, err)
	require.Equal(t, wire.OperationOK, basic.Operation)
}

func TestResumeFailureIsQuiet(t *testing.T) {
	srv := newStubServer(t)
	store := &memPersister{}
	m, _ := newTestManager(t, srv, withPersister(store))
	signIn(t, m, true)
	require.NoError(t, m.Shutdown())

	m2, rec := newTestManager(t, srv, withPersister(store))
	srv.set(func(s *stubServer) { s.sessionAuth = wire.AuthFailed })
	res, err := m2.ResumePersistentSession()
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.False(t, m2.HasSession())
	require.Zero(t, rec.sessionErrors)
	require.Empty(t, rec.signedOut)
	require.Nil(t, store.rec)
}

func TestResumeRequiresPersistentSession(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)

	_, err := m.ResumePersistentSession()
	require.ErrorIs(t, err, ErrIllegalState)

	signIn(t, m, false)
	_, err = m.ResumePersistentSession()
	require.ErrorIs(t, err, ErrIllegalState)
}

func TestShutdownSkipsNonPersistent(t *testing.T) {
	srv := newStubServer(t)
	store := &memPersister{}
	m, _ := newTestManager(t, srv, withPersister(store))

	require.NoError(t, m.Shutdown())
	signIn(t, m, false)
	require.NoError(t, m.Shutdown())
	require.Zero(t, store.saves)
}

func TestAccountOperations(t *testing.T) {
	srv := newStubServer(t)
	m, rec := newTestManager(t, srv)
	signIn(t, m, false)

	reply := func(b []byte) {
		srv.set(func(s *stubServer) {
			s.reply = func([]byte) []byte { return b }
		})
	}

	w := wire.NewWriter(0)
	w.PutByte(byte(wire.OperationOK)).PutString(testAccount.Email).PutString("new@example.com")
	reply(w.Bytes())
	basic, err := m.UpdateEmail("new@example.com")
	require.NoError(t, err)
	require.Equal(t, wire.OperationOK, basic.Operation)
	acct, _ := m.SignedInAccount()
	require.Equal(t, "new@example.com", acct.PendingEmail)
	require.True(t, acct.HasPendingEmail())
	require.Len(t, rec.updated, 1)
	p := wire.NewReader(srv.lastPayload())
	require.Equal(t, byte(wire.AccountGateway), p.Byte("gateway"))
	require.Equal(t, byte(wire.UpdateEmail), p.Byte("op"))

	reply([]byte{byte(wire.OperationFailed)})
	basic, err = m.ResendEmailChangeCode()
	require.NoError(t, err)
	require.Equal(t, wire.OperationFailed, basic.Operation)
	require.Equal(t, []byte{byte(wire.AccountGateway), byte(wire.ResendNewEmailCode)}, srv.lastPayload())

	w = wire.NewWriter(0)
	w.PutByte(byte(wire.AuthSuccess)).PutString("new@example.com").PutNullString()
	reply(w.Bytes())
	auth, err := m.ConfirmEmailChange("ABCDEFGHIJKL", testHash(1), testHash(5))
	require.NoError(t, err)
	require.Equal(t, wire.AuthSuccess, auth.Auth)
	acct, _ = m.SignedInAccount()
	require.Equal(t, "new@example.com", acct.Email)
	require.False(t, acct.HasPendingEmail())
	require.Len(t, rec.updated, 2)

	reply([]byte{byte(wire.AuthFailed)})
	auth, err = m.UpdatePasswordHash(testHash(1), testHash(6))
	require.NoError(t, err)
	require.Equal(t, StatusOK, auth.Status)
	require.Equal(t, wire.AuthFailed, auth.Auth)
	require.True(t, m.HasResolvedSession())
	p = wire.NewReader(srv.lastPayload())
	p.Bytes("prefix", 2)
	require.Equal(t, testHash(1), p.Bytes("existing", constants.PasswordHashLength))
	require.Equal(t, testHash(6), p.Bytes("new", constants.PasswordHashLength))

	reply([]byte{byte(wire.OperationOK)})
	basic, err = m.UpdateSendEmailAlerts(true)
	require.NoError(t, err)
	require.Equal(t, wire.OperationOK, basic.Operation)
	acct, _ = m.SignedInAccount()
	require.True(t, acct.SendEmailAlerts)
	require.Len(t, rec.updated, 3)

	reply([]byte{byte(wire.OperationFailed)})
	_, err = m.UpdateSendEmailAlerts(false)
	require.NoError(t, err)
	acct, _ = m.SignedInAccount()
	require.True(t, acct.SendEmailAlerts)
	require.Len(t, rec.updated, 3)

	reply([]byte{7})
	_, err = m.UpdateSendEmailAlerts(false)
	require.ErrorIs(t, err, ErrProtocol)

	counter, _ := m.ReplayCounter()
	require.Equal(t, int32(14), counter)
}

func TestAccountOperationsRequireResolvedSession(t *testing.T) {
	srv := newStubServer(t)
	store := &memPersister{}
	m, _ := newTestManager(t, srv)

	_, err := m.UpdateEmail("new@example.com")
	require.ErrorIs(t, err, ErrIllegalState)
	_, err = m.ResendEmailChangeCode()
	require.ErrorIs(t, err, ErrIllegalState)
	_, err = m.UpdateSendEmailAlerts(true)
	require.ErrorIs(t, err, ErrIllegalState)

	m1, _ := newTestManager(t, srv, withPersister(store))
	signIn(t, m1, true)
	require.NoError(t, m1.Shutdown())

	restored, _ := newTestManager(t, srv, withPersister(store))
	require.True(t, restored.HasSession())
	_, err = restored.UpdatePasswordHash(testHash(1), testHash(2))
	require.ErrorIs(t, err, ErrIllegalState)
	_, err = restored.ConfirmEmailChange("code", testHash(1), testHash(2))
	require.ErrorIs(t, err, ErrIllegalState)
}

func TestNoSessionOperations(t *testing.T) {
	srv := newStubServer(t)
	srv.reply = func([]byte) []byte { return []byte{byte(wire.OperationOK)} }
	m, _ := newTestManager(t, srv)

	res, err := m.ResendActivationCode("user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, wire.OperationOK, res.Operation)
	require.Equal(t, wire.NoSession, srv.lastTag())

	res, err = m.SendPasswordResetEmail("user@example.com")
	require.NoError(t, err)
	require.Equal(t, wire.OperationOK, res.Operation)

	srv.set(func(s *stubServer) { s.sendStatus = transport.StatusFailedTimeout })
	res, err = m.ResendActivationCode("user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusFailedTimeout, res.Status)
}

func TestCurrentSessionStateRequest(t *testing.T) {
	srv := newStubServer(t)
	srv.reply = func(p []byte) []byte { return p }
	m, _ := newTestManager(t, srv)

	res, err := m.SendCurrentSessionStateRequest([]byte("state"))
	require.NoError(t, err)
	require.Equal(t, []byte("state"), res.Body)
	require.Equal(t, wire.NoSession, srv.lastTag())

	signIn(t, m, false)
	res, err = m.SendCurrentSessionStateRequest([]byte("state"))
	require.NoError(t, err)
	require.Equal(t, []byte("state"), res.Body)
	require.Equal(t, wire.RegularSession, srv.lastTag())

	_, err = m.SendRegularSessionRequest(nil)
	require.NoError(t, err)
}

func TestMessagesAndUnsubscribe(t *testing.T) {
	srv := newStubServer(t)
	msg := wire.Message{Type: wire.WarningMessage, Text: "check your email"}
	srv.message = msg
	m, rec := newTestManager(t, srv)

	other := &recorder{}
	sub := m.SubscribeMessages(other)

	signIn(t, m, false)
	require.Equal(t, []wire.Message{msg}, rec.messages)
	require.Equal(t, []wire.Message{msg}, other.messages)

	sub.Unsubscribe()
	sub.Unsubscribe()
	_, err := m.SendEncryptedSessionRequest(nil)
	require.NoError(t, err)
	require.Len(t, rec.messages, 2)
	require.Len(t, other.messages, 1)
}

func TestNewValidation(t *testing.T) {
	_, err := New(&Config{Transport: newStubServer(t)})
	require.Error(t, err)
	_, err = New(&Config{Engine: testEngine(t)})
	require.Error(t, err)
}

func TestSignedOutCarriesAccount(t *testing.T) {
	srv := newStubServer(t)
	srv.account = account.Details{Email: "carried@example.com", Gender: wire.Male}
	m, rec := newTestManager(t, srv)
	signIn(t, m, false)

	_, err := m.SignOut()
	require.NoError(t, err)
	require.Equal(t, "carried@example.com", rec.signedOut[0].Email)
}

func TestExpiredSessionNotUsed(t *testing.T) {
	srv := newStubServer(t)
	store := &memPersister{}
	now := testNow
	m, rec := newTestManager(t, srv, withPersister(store), func(c *Config) {
		c.Clock = func() time.Time { return now }
	})
	signIn(t, m, true)
	require.NoError(t, m.Shutdown())
	require.NotNil(t, store.rec)

	expiry, _ := m.Expiry()
	now = expiry.Add(-time.Second)
	res, err := m.SendEncryptedSessionRequest(nil)
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)

	now = expiry
	sent := len(srv.tags)
	res, err = m.SendEncryptedSessionRequest(nil)
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.Len(t, srv.tags, sent)
	require.False(t, m.HasSession())
	require.Len(t, rec.signedOut, 1)
	require.Equal(t, 1, rec.sessionErrors)
	require.Nil(t, store.rec)

	now = testNow
	signIn(t, m, false)
	now = testNow.Add(30 * 24 * time.Hour)
	sent = len(srv.tags)
	res, err = m.SendRegularSessionRequest([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, res.Status)
	require.Len(t, srv.tags, sent)
	require.False(t, m.HasSession())
	require.Len(t, rec.signedOut, 2)
}

func TestInvalidUTF8Arguments(t *testing.T) {
	srv := newStubServer(t)
	m, _ := newTestManager(t, srv)

	_, err := m.SignIn("us\xffer@example.com", testHash(1), false)
	require.ErrorIs(t, err, wire.ErrInvalidUTF8)
	_, err = m.ResetPassword(testAccount.Email, "ABCDEFGHIJK\xff", testHash(1))
	require.ErrorIs(t, err, wire.ErrInvalidUTF8)
	_, err = m.ResendActivationCode("\xff")
	require.ErrorIs(t, err, wire.ErrInvalidUTF8)
	require.Empty(t, srv.tags)
	require.False(t, m.HasSession())

	signIn(t, m, false)
	sent := len(srv.tags)
	_, err = m.UpdateEmail("new\xff@example.com")
	require.ErrorIs(t, err, wire.ErrInvalidUTF8)
	_, err = m.ConfirmEmailChange("\xff", testHash(1), testHash(2))
	require.ErrorIs(t, err, wire.ErrInvalidUTF8)
	require.Len(t, srv.tags, sent)
	require.True(t, m.HasResolvedSession())
}
