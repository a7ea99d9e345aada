// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"gopkg.in/op/go-logging.v1"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/common"
	"github.com/feedbactory/client/config"
	"github.com/feedbactory/client/core/log"
	"github.com/feedbactory/client/internal/instrument"
	"github.com/feedbactory/client/persist"
	"github.com/feedbactory/client/persist/boltstore"
	"github.com/feedbactory/client/session"
	"github.com/feedbactory/client/transport"
	"github.com/feedbactory/client/wire"
)

var errOperationFailed = errors.New("operation failed")

// app is one invocation's worth of wired components.
type app struct {
	cfg     *config.Config
	backend *log.Backend
	log     *logging.Logger
	metrics *http.Server
	store   *boltstore.Store
	tr      *transport.Client
	mgr     *session.Manager
	out     *common.ResultWriter
}

func newApp(configFile string, w io.Writer) (a *app, err error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}

	a = &app{cfg: cfg, out: common.NewResultWriter(w)}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	if a.backend, err = log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable); err != nil {
		return a, fmt.Errorf("failed to initialize logging: %v", err)
	}
	a.log = a.backend.GetLogger("fbsession")
	if a.metrics, err = instrument.Init(cfg.Metrics.Address); err != nil {
		return a, err
	}

	engine, err := cfg.Crypto.Engine()
	if err != nil {
		return a, err
	}
	a.log.Debugf("Crypto: %s sealing, %s payloads.", engine.Sealer().Name(), engine.Cipher().Name())

	if a.store, err = boltstore.New(cfg.Session.StateFile); err != nil {
		return a, fmt.Errorf("failed to open state file: %v", err)
	}

	tcfg := transport.DefaultConfig()
	tcfg.Address = cfg.Server.Address
	tcfg.RequestIdentifier = cfg.Server.RequestIdentifier
	tcfg.Timeout = cfg.Server.Timeout()
	tcfg.UpstreamProxy = cfg.Server.UpstreamProxy
	tcfg.Logger = a.backend.GetLogger("transport")
	tcfg.Observer = a
	if a.tr, err = transport.New(tcfg); err != nil {
		return a, err
	}

	a.mgr, err = session.New(&session.Config{
		Engine:       engine,
		Transport:    a.tr,
		Persister:    persist.NewAdapter(a.store, a.backend.GetLogger("persist"), nil),
		Logger:       a.backend.GetLogger("session"),
		ReplayPolicy: cfg.Session.ReplayPolicy(),
		ClientExpiry: cfg.Session.ClientExpiry(),
	})
	if err != nil {
		return a, err
	}
	a.mgr.SubscribeAccount(a)
	a.mgr.SubscribeMessages(a)
	a.mgr.SubscribeSessionErrors(a)
	return a, nil
}

// Close saves a persistent session and releases everything.
func (a *app) Close() error {
	var err error
	if a.mgr != nil {
		err = a.mgr.Shutdown()
	}
	a.close()
	return err
}

func (a *app) close() {
	if a.tr != nil {
		a.tr.Shutdown()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.log != nil {
			a.log.Errorf("Failed to close state file: %v", err)
		}
	}
	if a.metrics != nil {
		a.metrics.Close()
	}
	if a.backend != nil {
		a.backend.Close()
	}
}

// ensureResolved resumes a restored persistent session.
func (a *app) ensureResolved() error {
	if a.mgr.HasResolvedSession() {
		return nil
	}
	if !a.mgr.HasPersistentSession() {
		return errors.New("not signed in")
	}
	res, err := a.mgr.ResumePersistentSession()
	if err != nil {
		return err
	}
	if res.Status != session.StatusOK {
		a.out.Outcome(false, "resume session: %v", res.Status)
		return errOperationFailed
	}
	return nil
}

func (a *app) reportAuth(op string, res session.AuthResult) error {
	if res.Status != session.StatusOK {
		a.out.Outcome(false, "%s: %v", op, res.Status)
		return errOperationFailed
	}
	ok := res.Auth == wire.AuthSuccess
	a.out.Outcome(ok, "%s: %v", op, res.Auth)
	if !ok {
		return errOperationFailed
	}
	return nil
}

func (a *app) reportBasic(op string, res session.BasicResult) error {
	if res.Status != session.StatusOK {
		a.out.Outcome(false, "%s: %v", op, res.Status)
		return errOperationFailed
	}
	ok := res.Operation == wire.OperationOK
	a.out.Outcome(ok, "%s: %v", op, res.Operation)
	if !ok {
		return errOperationFailed
	}
	return nil
}

func (a *app) printAccount(d account.Details) {
	a.out.Field("email", d.Email)
	if d.HasPendingEmail() {
		a.out.Field("pending email", d.PendingEmail)
	}
	a.out.Field("gender", d.Gender)
	a.out.Field("date of birth", d.DateOfBirth.Format("2006-01-02"))
	a.out.Field("email alerts", d.SendEmailAlerts)
}

func (a *app) SignedIn(d account.Details) {
	a.log.Noticef("Signed in as %s.", d.Email)
}

func (a *app) AccountUpdated(d account.Details) {
	a.log.Infof("Account %s updated.", d.Email)
}

func (a *app) SignedOut(d account.Details) {
	a.log.Noticef("Signed out of %s.", d.Email)
}

func (a *app) Message(m wire.Message) {
	a.out.Outcome(m.Type != wire.ErrorMessage, "server %v: %s", m.Type, m.Text)
}

func (a *app) SessionError() {
	a.out.Outcome(false, "the server ended the session")
}

func (a *app) AddressStanding(s wire.IPAddressStanding) {
	a.out.Outcome(false, "server refused this address: %v", s)
}

func (a *app) ServerStatus(s wire.ServerStatus, m wire.Message) {
	if s == wire.ServerAvailable {
		return
	}
	a.out.Outcome(false, "server %v", s)
	if !m.IsEmpty() {
		a.Message(m)
	}
}

func (a *app) Compatibility(c wire.Compatibility) {
	if c != wire.UpToDate {
		a.out.Outcome(c == wire.UpdateAvailable, "client compatibility: %v", c)
	}
}

func (a *app) BroadcastMessage(m wire.Message) {
	a.Message(m)
}

func (a *app) NetworkFailure(s transport.Status) {
	a.log.Warningf("Network failure: %v", s)
}
