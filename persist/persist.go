// persist.go - Persistent session storage.
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

// Package persist saves and restores the persistent session through a
// small typed preference store.
package persist

import (
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/op/go-logging.v1"

	"github.com/feedbactory/client/constants"
	"github.com/feedbactory/client/internal/instrument"
	"github.com/feedbactory/client/session"
)

// Preference keys.
const (
	KeyClientVersion = "SessionDataClientVersion"
	KeySessionID     = "SessionID"
	KeyExpiry        = "SessionExpiryTime"
	KeySessionKey    = "SessionEncryptionKey"
	KeyCounter       = "SessionEncryptionCounter"
)

var sessionKeys = []string{KeyClientVersion, KeySessionID, KeyExpiry, KeySessionKey, KeyCounter}

// ErrMalformed is returned by a PreferenceStore when a stored value cannot
// be decoded into the requested type.
var ErrMalformed = errors.New("persist: malformed value")

// PreferenceStore is a durable store of small typed values.
type PreferenceStore interface {
	// Get decodes the value stored under key into v.  It returns false if
	// there is no such key.
	Get(key string, v any) (bool, error)

	// Put atomically stores all of values.
	Put(values map[string]any) error

	// Remove atomically deletes keys.  Missing keys are ignored.
	Remove(keys ...string) error
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

// Marshal encodes a preference value.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a preference value, wrapping decoding failures with
// ErrMalformed.
func Unmarshal(b []byte, v any) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return errors.Join(ErrMalformed, err)
	}
	return nil
}

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Adapter implements session.Persister over a PreferenceStore.
type Adapter struct {
	store PreferenceStore
	now   func() time.Time
	log   *logging.Logger
}

// NewAdapter returns an Adapter.  A nil clock means time.Now.
func NewAdapter(store PreferenceStore, log *logging.Logger, clock func() time.Time) *Adapter {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logging.MustGetLogger("persist")
	}
	return &Adapter{store: store, now: clock, log: log}
}

// Save writes r.
func (a *Adapter) Save(r *session.Record) error {
	return a.store.Put(map[string]any{
		KeyClientVersion: constants.SessionDataVersion,
		KeySessionID:     r.ID,
		KeyExpiry:        r.Expiry.UnixMilli(),
		KeySessionKey:    r.Key,
		KeyCounter:       r.Counter,
	})
}

// Restore reads the saved record.  Missing, malformed or expired data
// yields no record and is cleared.
func (a *Adapter) Restore() (*session.Record, error) {
	var (
		version, expiry int64
		counter         int32
		r               session.Record
	)
	fields := []struct {
		key string
		v   any
	}{
		{KeyClientVersion, &version},
		{KeySessionID, &r.ID},
		{KeyExpiry, &expiry},
		{KeySessionKey, &r.Key},
		{KeyCounter, &counter},
	}

	missing := 0
	for _, f := range fields {
		ok, err := a.store.Get(f.key, f.v)
		switch {
		case errors.Is(err, ErrMalformed):
			return nil, a.reject("malformed", "%s: %v", f.key, err)
		case err != nil:
			instrument.Restore("error")
			return nil, err
		case !ok:
			missing++
		}
	}
	if missing == len(fields) {
		instrument.Restore("absent")
		return nil, nil
	}
	if missing != 0 {
		return nil, a.reject("incomplete", "%d of %d fields missing", missing, len(fields))
	}
	if version != constants.SessionDataVersion {
		return nil, a.reject("version", "data version %d", version)
	}

	r.Expiry = time.UnixMilli(expiry)
	r.Counter = counter
	if err := r.Validate(); err != nil {
		return nil, a.reject("malformed", "%v", err)
	}
	if r.Expired(a.now()) {
		return nil, a.reject("expired", "expired at %v", r.Expiry)
	}

	r.Persistent = true
	instrument.Restore("restored")
	return &r, nil
}

// Clear erases the saved record.
func (a *Adapter) Clear() error {
	return a.store.Remove(sessionKeys...)
}

func (a *Adapter) reject(outcome, format string, args ...any) error {
	a.log.Debugf("Discarding persisted session ("+outcome+"): "+format, args...)
	instrument.Restore(outcome)
	if err := a.Clear(); err != nil {
		a.log.Errorf("Failed to clear persisted session: %v", err)
		return err
	}
	return nil
}
