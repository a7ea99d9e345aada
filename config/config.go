// config.go - Feedbactory client configuration.
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

// Package config provides the Feedbactory client configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/feedbactory/client/constants"
	"github.com/feedbactory/client/hybrid"
	"github.com/feedbactory/client/session"
)

const (
	defaultLogLevel  = "NOTICE"
	defaultStateFile = "session.db"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Server is the Feedbactory server connection configuration.
type Server struct {
	// Address is the host:port of the server.
	Address string

	// RequestIdentifier is the magic number leading every request.
	RequestIdentifier int32

	// DialTimeout is the per request timeout in seconds.
	DialTimeout int

	// UpstreamProxy is an optional socks5 proxy URL.
	UpstreamProxy string
}

func (sCfg *Server) applyDefaults() {
	if sCfg.Address == "" {
		sCfg.Address = constants.DefaultServerAddress
	}
	if sCfg.RequestIdentifier == 0 {
		sCfg.RequestIdentifier = constants.DefaultRequestIdentifier
	}
	if sCfg.DialTimeout == 0 {
		sCfg.DialTimeout = int(constants.DefaultDialTimeout / time.Second)
	}
}

func (sCfg *Server) validate() error {
	if _, _, err := net.SplitHostPort(sCfg.Address); err != nil {
		return fmt.Errorf("config: Server: Address '%v' is invalid: %v", sCfg.Address, err)
	}
	if sCfg.DialTimeout < 0 {
		return fmt.Errorf("config: Server: DialTimeout %v is negative", sCfg.DialTimeout)
	}
	if sCfg.UpstreamProxy != "" {
		u, err := url.Parse(sCfg.UpstreamProxy)
		if err != nil {
			return fmt.Errorf("config: Server: UpstreamProxy is invalid: %v", err)
		}
		if u.Scheme != "socks5" {
			return fmt.Errorf("config: Server: UpstreamProxy scheme '%v' is not supported", u.Scheme)
		}
	}
	return nil
}

// Timeout returns the request timeout.
func (sCfg *Server) Timeout() time.Duration {
	return time.Duration(sCfg.DialTimeout) * time.Second
}

// Crypto is the session cryptography configuration.
type Crypto struct {
	// KeySealScheme is hybrid.SealerRSA or a KEM scheme name.
	KeySealScheme string

	// PayloadCipher is hybrid.CipherAESCBC or hybrid.CipherAESGCM.
	PayloadCipher string

	// ServerPublicKey is the PEM encoded server public key.
	ServerPublicKey string

	// ServerPublicKeyFile is read into ServerPublicKey if that is empty.
	ServerPublicKeyFile string
}

func (cCfg *Crypto) applyDefaults() {
	if cCfg.KeySealScheme == "" {
		cCfg.KeySealScheme = hybrid.SealerRSA
	}
	if cCfg.PayloadCipher == "" {
		cCfg.PayloadCipher = hybrid.CipherAESCBC
	}
}

func (cCfg *Crypto) validate() error {
	if cCfg.ServerPublicKey == "" {
		if cCfg.ServerPublicKeyFile == "" {
			return errors.New("config: Crypto: ServerPublicKey is not set")
		}
		b, err := os.ReadFile(cCfg.ServerPublicKeyFile)
		if err != nil {
			return fmt.Errorf("config: Crypto: %v", err)
		}
		cCfg.ServerPublicKey = string(b)
	}
	if _, err := hybrid.NewSealer(cCfg.KeySealScheme, []byte(cCfg.ServerPublicKey)); err != nil {
		return fmt.Errorf("config: Crypto: %v", err)
	}
	if _, err := hybrid.CipherByName(cCfg.PayloadCipher); err != nil {
		return fmt.Errorf("config: Crypto: %v", err)
	}
	return nil
}

// Engine returns the crypto engine described by the configuration.
func (cCfg *Crypto) Engine() (*hybrid.Engine, error) {
	sealer, err := hybrid.NewSealer(cCfg.KeySealScheme, []byte(cCfg.ServerPublicKey))
	if err != nil {
		return nil, err
	}
	c, err := hybrid.CipherByName(cCfg.PayloadCipher)
	if err != nil {
		return nil, err
	}
	return hybrid.NewEngine(sealer, c)
}

// Session is the session lifecycle configuration.
type Session struct {
	// ClientExpiryHours is the lifetime granted to a session on creation
	// and on resumption.
	ClientExpiryHours int

	// ReplayMismatchPolicy is "tolerate" or "signout".
	ReplayMismatchPolicy string

	// StateFile is the bolt database holding the persistent session.
	StateFile string

	policy session.ReplayPolicy
}

func (sCfg *Session) applyDefaults() {
	if sCfg.ClientExpiryHours == 0 {
		sCfg.ClientExpiryHours = int(constants.DefaultClientExpiry / time.Hour)
	}
	if sCfg.StateFile == "" {
		sCfg.StateFile = defaultStateFile
	}
}

func (sCfg *Session) validate() error {
	if sCfg.ClientExpiryHours < 0 {
		return fmt.Errorf("config: Session: ClientExpiryHours %v is negative", sCfg.ClientExpiryHours)
	}
	p, err := session.ParseReplayPolicy(sCfg.ReplayMismatchPolicy)
	if err != nil {
		return fmt.Errorf("config: Session: %v", err)
	}
	sCfg.policy = p
	return nil
}

// ClientExpiry returns the session lifetime.
func (sCfg *Session) ClientExpiry() time.Duration {
	return time.Duration(sCfg.ClientExpiryHours) * time.Hour
}

// ReplayPolicy returns the parsed replay mismatch policy.
func (sCfg *Session) ReplayPolicy() session.ReplayPolicy {
	return sCfg.policy
}

// Logging is the Feedbactory client logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stderr will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Metrics is the prometheus endpoint configuration.
type Metrics struct {
	// Address is the listen address, an empty address disables metrics.
	Address string
}

// Config is the top level Feedbactory client configuration.
type Config struct {
	Server  *Server
	Crypto  *Crypto
	Session *Session
	Logging *Logging
	Metrics *Metrics
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Crypto == nil {
		return errors.New("config: No Crypto block was present")
	}

	// Handle missing sections if possible.
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Session == nil {
		cfg.Session = &Session{}
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	cfg.Server.applyDefaults()
	cfg.Crypto.applyDefaults()
	cfg.Session.applyDefaults()

	// Validate the various sections.
	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Crypto.validate(); err != nil {
		return err
	}
	if err := cfg.Session.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: No configuration provided")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
