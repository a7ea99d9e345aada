// manager.go - Feedbactory session lifecycle manager.
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

// Package session implements the client side of the Feedbactory
// authenticated session protocol: session initiation, encrypted exchanges
// guarded by a replay counter, resumption of persisted sessions and
// sign out.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/constants"
	"github.com/feedbactory/client/hybrid"
	"github.com/feedbactory/client/internal/instrument"
	"github.com/feedbactory/client/transport"
	"github.com/feedbactory/client/wire"
)

// Exchanger is the request transport used by the Manager.
type Exchanger interface {
	// CheckHandshake performs the clock sync handshake if it has not
	// already succeeded.
	CheckHandshake() (transport.Status, error)

	// ApproximateServerTime returns the estimated server time in
	// milliseconds since the epoch.
	ApproximateServerTime() (int64, error)

	// Send delivers a request body and returns the response body.
	Send(body []byte, opts transport.SendOptions) (transport.Status, []byte, error)
}

// Persister saves the persistent session across client restarts.
type Persister interface {
	// Save writes the record.
	Save(*Record) error

	// Restore returns the saved record, or nil if there is no valid
	// saved record.
	Restore() (*Record, error)

	// Clear removes any saved record.
	Clear() error
}

// BasicResult is the outcome of an operation answered with a basic status.
type BasicResult struct {
	Status    Status
	Operation wire.BasicOperationStatus
}

// AuthResult is the outcome of an operation answered with an
// authentication status.
type AuthResult struct {
	Status Status
	Auth   wire.AuthenticationStatus
}

// BufferResult is the outcome of a generic request.  Body holds the
// response payload after all session framing has been removed.
type BufferResult struct {
	Status Status
	Body   []byte
}

// Config is the Manager configuration.
type Config struct {
	// Engine performs all cryptography.
	Engine *hybrid.Engine

	// Transport delivers requests.
	Transport Exchanger

	// Persister stores the persistent session, if set.
	Persister Persister

	// Logger is the Manager logger.
	Logger *logging.Logger

	// ReplayPolicy decides the fate of a session after a counter mismatch.
	ReplayPolicy ReplayPolicy

	// ClientExpiry is the lifetime granted to a session on creation and
	// on resumption.
	ClientExpiry time.Duration

	// Clock returns the current time.
	Clock func() time.Time
}

// Manager owns the client's single session.  All session bearing
// operations are serialized.
type Manager struct {
	sync.Mutex

	rec *Record

	codec  *Codec
	tr     Exchanger
	store  Persister
	guard  *ReplayGuard
	policy ReplayPolicy
	expiry time.Duration
	now    func() time.Time
	log    *logging.Logger

	accountListeners listenerSet
	messageListeners listenerSet
	errorListeners   listenerSet
}

// New returns a Manager, restoring any saved persistent session.
func New(cfg *Config) (*Manager, error) {
	if cfg.Engine == nil {
		return nil, errors.New("session: no crypto engine")
	}
	if cfg.Transport == nil {
		return nil, errors.New("session: no transport")
	}
	m := &Manager{
		codec:  NewCodec(cfg.Engine),
		tr:     cfg.Transport,
		store:  cfg.Persister,
		policy: cfg.ReplayPolicy,
		expiry: cfg.ClientExpiry,
		now:    cfg.Clock,
		log:    cfg.Logger,
	}
	if m.log == nil {
		m.log = logging.MustGetLogger("session")
	}
	if m.expiry <= 0 {
		m.expiry = constants.DefaultClientExpiry
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.guard = NewReplayGuard(m.log)

	if m.store != nil {
		rec, err := m.store.Restore()
		switch {
		case err != nil:
			m.log.Errorf("Failed to restore persistent session: %v", err)
		case rec != nil:
			rec.Persistent = true
			rec.Account = nil
			m.rec = rec
			m.log.Debugf("Restored persistent session, counter %d.", rec.Counter)
		}
	}
	return m, nil
}

// SubscribeAccount registers an AccountListener.
func (m *Manager) SubscribeAccount(l AccountListener) *Subscription {
	return m.accountListeners.add(l)
}

// SubscribeMessages registers a MessageListener.
func (m *Manager) SubscribeMessages(l MessageListener) *Subscription {
	return m.messageListeners.add(l)
}

// SubscribeSessionErrors registers a SessionErrorListener.
func (m *Manager) SubscribeSessionErrors(l SessionErrorListener) *Subscription {
	return m.errorListeners.add(l)
}

// HasSession returns true if a session exists, resolved or not.
func (m *Manager) HasSession() bool {
	m.Lock()
	defer m.Unlock()
	return m.rec != nil
}

// HasResolvedSession returns true if the session is bound to an account.
func (m *Manager) HasResolvedSession() bool {
	m.Lock()
	defer m.Unlock()
	return m.rec != nil && m.rec.Resolved()
}

// HasPersistentSession returns true if the session is persistent.
func (m *Manager) HasPersistentSession() bool {
	m.Lock()
	defer m.Unlock()
	return m.rec != nil && m.rec.Persistent
}

// SignedInAccount returns the account bound to the session.
func (m *Manager) SignedInAccount() (account.Details, bool) {
	m.Lock()
	defer m.Unlock()
	if m.rec == nil || !m.rec.Resolved() {
		return account.Details{}, false
	}
	return *m.rec.Account, true
}

// ReplayCounter returns the session's encrypted exchange counter.
func (m *Manager) ReplayCounter() (int32, bool) {
	m.Lock()
	defer m.Unlock()
	if m.rec == nil {
		return 0, false
	}
	return m.rec.Counter, true
}

// Expiry returns the session's client side expiry time.
func (m *Manager) Expiry() (time.Time, bool) {
	m.Lock()
	defer m.Unlock()
	if m.rec == nil {
		return time.Time{}, false
	}
	return m.rec.Expiry, true
}

// SignUp initiates a session by registering a new account.
func (m *Manager) SignUp(email string, gender wire.Gender, dateOfBirth time.Time, sendEmailAlerts bool) (AuthResult, error) {
	w := wire.NewWriter(0)
	w.PutByte(byte(wire.InitiateSignUp)).PutString(email).PutByte(byte(gender))
	w.PutInt64(dateOfBirth.UnixMilli()).PutBool(sendEmailAlerts)
	payload, err := requestBody("sign up", w)
	if err != nil {
		return AuthResult{}, err
	}

	m.Lock()
	defer m.Unlock()
	return m.initiate("sign up", payload, false)
}

// ActivateAccount initiates a session by activating an account with the
// emailed activation code and the initial password hash.
func (m *Manager) ActivateAccount(email, code string, passwordHash []byte) (AuthResult, error) {
	if len(passwordHash) != constants.PasswordHashLength {
		return AuthResult{}, ErrInvalidPasswordHash
	}
	w := wire.NewWriter(0)
	w.PutByte(byte(wire.InitiateActivateAccount)).PutString(email).PutString(code).PutBytes(passwordHash)
	payload, err := requestBody("activate account", w)
	if err != nil {
		return AuthResult{}, err
	}

	m.Lock()
	defer m.Unlock()
	return m.initiate("activate account", payload, false)
}

// SignIn initiates a session with email and password hash.  A persistent
// session is saved at shutdown and may be resumed by the next client.
func (m *Manager) SignIn(email string, passwordHash []byte, persistent bool) (AuthResult, error) {
	if len(passwordHash) != constants.PasswordHashLength {
		return AuthResult{}, ErrInvalidPasswordHash
	}
	w := wire.NewWriter(0)
	w.PutByte(byte(wire.InitiateEmailSignIn)).PutString(email).PutBytes(passwordHash)
	payload, err := requestBody("sign in", w)
	if err != nil {
		return AuthResult{}, err
	}

	m.Lock()
	defer m.Unlock()
	return m.initiate("sign in", payload, persistent)
}

// ResetPassword initiates a session by resetting the password with the
// emailed reset code.
func (m *Manager) ResetPassword(email, code string, newPasswordHash []byte) (AuthResult, error) {
	if len(newPasswordHash) != constants.PasswordHashLength {
		return AuthResult{}, ErrInvalidPasswordHash
	}
	w := wire.NewWriter(0)
	w.PutByte(byte(wire.InitiateResetPassword)).PutString(email).PutString(code).PutBytes(newPasswordHash)
	payload, err := requestBody("reset password", w)
	if err != nil {
		return AuthResult{}, err
	}

	m.Lock()
	defer m.Unlock()
	return m.initiate("reset password", payload, false)
}

// ResumePersistentSession re-establishes a restored persistent session.
// Failures are quiet: no session error is reported.
func (m *Manager) ResumePersistentSession() (BasicResult, error) {
	const op = "resume session"

	m.Lock()
	defer m.Unlock()
	if m.rec == nil || !m.rec.Persistent {
		return BasicResult{}, illegalState(op, "no persistent session")
	}
	res, err := m.exchangeEncrypted(op, wire.ResumeSession, nil, transport.SendOptions{}, false)
	if err != nil || res.Status != StatusOK {
		return BasicResult{Status: res.Status}, err
	}
	r := wire.NewReader(res.Body)
	d := account.ReadDetails(r)
	if err := r.Err(); err != nil {
		return BasicResult{}, protocolFault(op, err)
	}
	m.rec.Expiry = m.now().Add(m.expiry)
	m.bind(d)
	return BasicResult{Status: StatusOK, Operation: wire.OperationOK}, nil
}

// SignOut ends the session.  The local session is cleared whatever the
// outcome of the exchange.
func (m *Manager) SignOut() (BasicResult, error) {
	return m.signOut("sign out", transport.SendOptions{}, true)
}

// SignOutForShutdown ends the session as a priority request bounded by
// timeout, without reporting session errors.
func (m *Manager) SignOutForShutdown(timeout time.Duration) (BasicResult, error) {
	return m.signOut("sign out for shutdown", transport.SendOptions{Timeout: timeout, Priority: true}, false)
}

func (m *Manager) signOut(op string, opts transport.SendOptions, notifyOnError bool) (BasicResult, error) {
	m.Lock()
	defer m.Unlock()
	if m.rec == nil {
		return BasicResult{}, illegalState(op, "no session")
	}
	res, err := m.exchangeEncrypted(op, wire.EndSession, nil, opts, notifyOnError)
	if m.rec != nil {
		m.tearDown()
	}
	if err != nil {
		return BasicResult{}, err
	}
	return BasicResult{Status: res.Status, Operation: wire.OperationOK}, nil
}

// ResendActivationCode asks the server to email the account activation
// code again.  It requires no session.
func (m *Manager) ResendActivationCode(email string) (BasicResult, error) {
	return m.sendEmailCode("resend activation code", wire.ResendActivationCode, email)
}

// SendPasswordResetEmail asks the server to email a password reset code.
// It requires no session.
func (m *Manager) SendPasswordResetEmail(email string) (BasicResult, error) {
	return m.sendEmailCode("send password reset email", wire.SendPasswordResetCode, email)
}

func (m *Manager) sendEmailCode(op string, aop wire.AccountOperation, email string) (BasicResult, error) {
	w := wire.NewWriter(0)
	w.PutByte(byte(wire.AccountGateway)).PutByte(byte(aop)).PutString(email)
	payload, err := requestBody(op, w)
	if err != nil {
		return BasicResult{}, err
	}
	res, err := m.SendNoSessionRequest(payload)
	if err != nil || res.Status != StatusOK {
		return BasicResult{Status: res.Status}, err
	}
	r := wire.NewReader(res.Body)
	st := m.readBasicStatus(r)
	if err := r.Err(); err != nil {
		return BasicResult{}, protocolFault(op, err)
	}
	return BasicResult{Status: StatusOK, Operation: st}, nil
}

// UpdateEmail requests a change of the account email.  The new address
// is pending until confirmed.
func (m *Manager) UpdateEmail(newEmail string) (BasicResult, error) {
	const op = "update email"

	w := wire.NewWriter(0)
	w.PutByte(byte(wire.AccountGateway)).PutByte(byte(wire.UpdateEmail)).PutString(newEmail)
	payload, err := requestBody(op, w)
	if err != nil {
		return BasicResult{}, err
	}

	m.Lock()
	defer m.Unlock()
	r, res, err := m.accountExchange(op, payload)
	if err != nil || res.Status != StatusOK {
		return BasicResult{Status: res.Status}, err
	}
	st := m.readBasicStatus(r)
	if st == wire.OperationOK {
		email, _ := r.String("email")
		pending, _ := r.String("pending email")
		if err := r.Err(); err != nil {
			return BasicResult{}, protocolFault(op, err)
		}
		m.update(m.rec.Account.WithEmail(email, pending))
	}
	if err := r.Err(); err != nil {
		return BasicResult{}, protocolFault(op, err)
	}
	return BasicResult{Status: StatusOK, Operation: st}, nil
}

// UpdatePasswordHash replaces the account password hash.
func (m *Manager) UpdatePasswordHash(existingHash, newHash []byte) (AuthResult, error) {
	const op = "update password hash"

	if len(existingHash) != constants.PasswordHashLength || len(newHash) != constants.PasswordHashLength {
		return AuthResult{}, ErrInvalidPasswordHash
	}
	w := wire.NewWriter(0)
	w.PutByte(byte(wire.AccountGateway)).PutByte(byte(wire.UpdatePasswordHash)).PutBytes(existingHash).PutBytes(newHash)

	m.Lock()
	defer m.Unlock()
	r, res, err := m.accountExchange(op, w.Bytes())
	if err != nil || res.Status != StatusOK {
		return AuthResult{Status: res.Status}, err
	}
	auth := m.readAuthStatus(r)
	if err := r.Err(); err != nil {
		return AuthResult{}, protocolFault(op, err)
	}
	return AuthResult{Status: StatusOK, Auth: auth}, nil
}

// ConfirmEmailChange confirms a pending email change with the code sent
// to the new address.
func (m *Manager) ConfirmEmailChange(code string, passwordHash, newEmailPasswordHash []byte) (AuthResult, error) {
	const op = "confirm email change"

	if len(passwordHash) != constants.PasswordHashLength || len(newEmailPasswordHash) != constants.PasswordHashLength {
		return AuthResult{}, ErrInvalidPasswordHash
	}
	w := wire.NewWriter(0)
	w.PutByte(byte(wire.AccountGateway)).PutByte(byte(wire.ConfirmNewEmail)).PutString(code)
	w.PutBytes(passwordHash).PutBytes(newEmailPasswordHash)
	payload, err := requestBody(op, w)
	if err != nil {
		return AuthResult{}, err
	}

	m.Lock()
	defer m.Unlock()
	r, res, err := m.accountExchange(op, payload)
	if err != nil || res.Status != StatusOK {
		return AuthResult{Status: res.Status}, err
	}
	auth := m.readAuthStatus(r)
	if auth == wire.AuthSuccess {
		email, _ := r.String("email")
		pending, _ := r.String("pending email")
		if err := r.Err(); err != nil {
			return AuthResult{}, protocolFault(op, err)
		}
		m.update(m.rec.Account.WithEmail(email, pending))
	}
	if err := r.Err(); err != nil {
		return AuthResult{}, protocolFault(op, err)
	}
	return AuthResult{Status: StatusOK, Auth: auth}, nil
}

// ResendEmailChangeCode asks the server to email the pending email
// confirmation code again.
func (m *Manager) ResendEmailChangeCode() (BasicResult, error) {
	const op = "resend email change code"

	w := wire.NewWriter(2)
	w.PutByte(byte(wire.AccountGateway)).PutByte(byte(wire.ResendNewEmailCode))

	m.Lock()
	defer m.Unlock()
	r, res, err := m.accountExchange(op, w.Bytes())
	if err != nil || res.Status != StatusOK {
		return BasicResult{Status: res.Status}, err
	}
	st := m.readBasicStatus(r)
	if err := r.Err(); err != nil {
		return BasicResult{}, protocolFault(op, err)
	}
	return BasicResult{Status: StatusOK, Operation: st}, nil
}

// UpdateSendEmailAlerts sets the account's email alert preference.
func (m *Manager) UpdateSendEmailAlerts(sendEmailAlerts bool) (BasicResult, error) {
	const op = "update email alerts"

	w := wire.NewWriter(3)
	w.PutByte(byte(wire.AccountGateway)).PutByte(byte(wire.UpdateSendEmailAlerts)).PutBool(sendEmailAlerts)

	m.Lock()
	defer m.Unlock()
	r, res, err := m.accountExchange(op, w.Bytes())
	if err != nil || res.Status != StatusOK {
		return BasicResult{Status: res.Status}, err
	}
	st := m.readBasicStatus(r)
	if err := r.Err(); err != nil {
		return BasicResult{}, protocolFault(op, err)
	}
	if st == wire.OperationOK {
		m.update(m.rec.Account.WithSendEmailAlerts(sendEmailAlerts))
	}
	return BasicResult{Status: StatusOK, Operation: st}, nil
}

// SendNoSessionRequest sends payload outside of any session.
func (m *Manager) SendNoSessionRequest(payload []byte) (BufferResult, error) {
	return m.exchangeNoSession(payload, transport.SendOptions{})
}

// SendRegularSessionRequest sends payload under the session identifier
// without encryption.
func (m *Manager) SendRegularSessionRequest(payload []byte) (BufferResult, error) {
	const op = "regular session request"

	m.Lock()
	defer m.Unlock()
	if m.rec == nil {
		return BufferResult{}, illegalState(op, "no session")
	}
	return m.exchangeRegular(op, payload)
}

// SendEncryptedSessionRequest sends payload encrypted under the session
// key.
func (m *Manager) SendEncryptedSessionRequest(payload []byte) (BufferResult, error) {
	const op = "encrypted session request"

	m.Lock()
	defer m.Unlock()
	if m.rec == nil {
		return BufferResult{}, illegalState(op, "no session")
	}
	return m.exchangeEncrypted(op, wire.EncryptedSession, payload, transport.SendOptions{}, true)
}

// SendCurrentSessionStateRequest sends payload as a regular session
// request if a session exists, otherwise as a no session request.
func (m *Manager) SendCurrentSessionStateRequest(payload []byte) (BufferResult, error) {
	m.Lock()
	defer m.Unlock()
	if m.rec != nil {
		return m.exchangeRegular("current session state request", payload)
	}
	return m.exchangeNoSession(payload, transport.SendOptions{})
}

// Shutdown saves the session if it is persistent.
func (m *Manager) Shutdown() error {
	m.Lock()
	defer m.Unlock()
	if m.rec == nil || !m.rec.Persistent || m.store == nil {
		return nil
	}
	if err := m.store.Save(m.rec.Clone()); err != nil {
		m.log.Errorf("Failed to save persistent session: %v", err)
		return err
	}
	m.log.Debugf("Saved persistent session, counter %d.", m.rec.Counter)
	return nil
}

// requestBody returns the payload built by w, or the first string that
// could not be encoded.
func requestBody(op string, w *wire.Writer) ([]byte, error) {
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return w.Bytes(), nil
}

func (m *Manager) initiate(op string, payload []byte, persistent bool) (AuthResult, error) {
	st, err := m.tr.CheckHandshake()
	if err != nil {
		return AuthResult{}, protocolFault(op, err)
	}
	if st != StatusOK {
		return AuthResult{Status: st}, nil
	}
	if m.rec != nil {
		return AuthResult{}, illegalState(op, "a session already exists")
	}
	serverTime, err := m.tr.ApproximateServerTime()
	if err != nil {
		return AuthResult{}, illegalState(op, err.Error())
	}

	req, pending := m.codec.InitiationRequest(serverTime, payload)
	st, body, err := m.tr.Send(req, transport.SendOptions{})
	instrument.Exchange("initiation", st.String())
	if err != nil {
		return AuthResult{}, protocolFault(op, err)
	}
	if st != StatusOK {
		return AuthResult{Status: st}, nil
	}
	resp, err := m.codec.ParseInitiationResponse(pending, body)
	if err != nil {
		return AuthResult{}, protocolFault(op, err)
	}
	if resp.Status != wire.AuthSuccess {
		m.log.Debugf("%s: authentication status %v.", op, resp.Status)
		return AuthResult{Status: StatusOK, Auth: resp.Status}, nil
	}

	m.rec = &Record{
		ID:         resp.SessionID,
		Key:        pending.Key,
		Expiry:     m.now().Add(m.expiry),
		Persistent: persistent,
	}
	m.deliver(resp.Message)
	m.bind(resp.Account)
	m.log.Noticef("Session initiated for %s, persistent: %v.", resp.Account.Email, persistent)
	return AuthResult{Status: StatusOK, Auth: wire.AuthSuccess}, nil
}

func (m *Manager) exchangeNoSession(payload []byte, opts transport.SendOptions) (BufferResult, error) {
	st, body, err := m.tr.Send(m.codec.NoSessionRequest(payload), opts)
	instrument.Exchange("no-session", st.String())
	if err != nil {
		return BufferResult{}, protocolFault("no session request", err)
	}
	if st != StatusOK {
		return BufferResult{Status: st}, nil
	}
	return BufferResult{Status: StatusOK, Body: body}, nil
}

func (m *Manager) exchangeRegular(op string, payload []byte) (BufferResult, error) {
	if m.expired(op, true) {
		return BufferResult{Status: StatusConsumed}, nil
	}
	st, body, err := m.tr.Send(m.codec.RegularSessionRequest(m.rec.ID, payload), transport.SendOptions{})
	instrument.Exchange("regular", st.String())
	if err != nil {
		return BufferResult{}, protocolFault(op, err)
	}
	if st != StatusOK {
		return BufferResult{Status: st}, nil
	}
	auth, msg, rest, err := ParseRegularResponse(body)
	if err != nil {
		return BufferResult{}, protocolFault(op, err)
	}
	if auth != wire.AuthSuccess {
		m.forcedSignOut(op, auth, true)
		return BufferResult{Status: StatusConsumed}, nil
	}
	m.deliver(msg)
	return BufferResult{Status: StatusOK, Body: rest}, nil
}

// exchangeEncrypted performs one encrypted exchange.  The caller holds the
// lock and has checked that a session exists.
func (m *Manager) exchangeEncrypted(op string, tag wire.SessionRequestType, payload []byte, opts transport.SendOptions, notifyOnError bool) (BufferResult, error) {
	if m.expired(op, notifyOnError) {
		return BufferResult{Status: StatusConsumed}, nil
	}
	req, respIV := m.codec.EncryptedRequest(tag, m.rec, payload)
	st, body, err := m.tr.Send(req, opts)
	instrument.Exchange("encrypted", st.String())
	if err != nil {
		return BufferResult{}, protocolFault(op, err)
	}
	if st != StatusOK {
		return BufferResult{Status: st}, nil
	}
	resp, err := m.codec.ParseEncryptedResponse(m.rec.Key, respIV, body)
	if err != nil {
		return BufferResult{}, protocolFault(op, err)
	}
	if resp.Status != wire.AuthSuccess {
		m.forcedSignOut(op, resp.Status, notifyOnError)
		return BufferResult{Status: StatusConsumed}, nil
	}
	if !m.guard.ValidateAndAdvance(m.rec, resp.Counter) {
		if notifyOnError {
			m.notifySessionError()
		}
		if m.policy == SignOutOnMismatch {
			m.log.Noticef("%s: signing out after replay counter mismatch.", op)
			instrument.ForcedSignOut()
			m.tearDown()
		}
		return BufferResult{Status: StatusConsumed}, nil
	}
	msg, r, err := readMessage(resp.Body)
	if err != nil {
		return BufferResult{}, protocolFault(op, err)
	}
	m.deliver(msg)
	return BufferResult{Status: StatusOK, Body: r.Rest()}, nil
}

// accountExchange sends an account gateway payload over the encrypted
// channel of a resolved session.
func (m *Manager) accountExchange(op string, payload []byte) (*wire.Reader, BufferResult, error) {
	if m.rec == nil || !m.rec.Resolved() {
		return nil, BufferResult{}, illegalState(op, "no signed in account")
	}
	res, err := m.exchangeEncrypted(op, wire.EncryptedSession, payload, transport.SendOptions{}, true)
	if err != nil || res.Status != StatusOK {
		return nil, res, err
	}
	return wire.NewReader(res.Body), res, nil
}

func (m *Manager) readBasicStatus(r *wire.Reader) wire.BasicOperationStatus {
	st, err := wire.ParseBasicOperationStatus(r.Byte("operation status"))
	r.Check("operation status", err)
	return st
}

func (m *Manager) readAuthStatus(r *wire.Reader) wire.AuthenticationStatus {
	st, err := wire.ParseAuthenticationStatus(r.Byte("authentication status"))
	r.Check("authentication status", err)
	return st
}

func (m *Manager) forcedSignOut(op string, auth wire.AuthenticationStatus, notifyOnError bool) {
	m.log.Noticef("%s: session rejected by server: %v.", op, auth)
	instrument.ForcedSignOut()
	m.tearDown()
	if notifyOnError {
		m.notifySessionError()
	}
}

// expired tears down a session whose client expiry has passed, before
// anything is sent under it.
func (m *Manager) expired(op string, notifyOnError bool) bool {
	if !m.rec.Expired(m.now()) {
		return false
	}
	m.log.Noticef("%s: session expired at %v, signing out.", op, m.rec.Expiry)
	instrument.ForcedSignOut()
	m.tearDown()
	if notifyOnError {
		m.notifySessionError()
	}
	return true
}

// tearDown discards the session, clearing any persisted copy and
// notifying a sign out if an account was bound.
func (m *Manager) tearDown() {
	rec := m.rec
	m.rec = nil
	if rec.Persistent && m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.log.Errorf("Failed to clear persistent session: %v", err)
		}
	}
	if rec.Account != nil {
		d := *rec.Account
		m.accountListeners.eachAccount(func(l AccountListener) { l.SignedOut(d) })
	}
}

func (m *Manager) bind(d account.Details) {
	m.rec.Account = &d
	m.accountListeners.eachAccount(func(l AccountListener) { l.SignedIn(d) })
}

func (m *Manager) update(d account.Details) {
	m.rec.Account = &d
	m.accountListeners.eachAccount(func(l AccountListener) { l.AccountUpdated(d) })
}

func (m *Manager) deliver(msg wire.Message) {
	if msg.IsEmpty() {
		return
	}
	m.messageListeners.eachMessage(func(l MessageListener) { l.Message(msg) })
}

func (m *Manager) notifySessionError() {
	m.errorListeners.eachSessionError(func(l SessionErrorListener) { l.SessionError() })
}
