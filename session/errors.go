// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"errors"
	"fmt"

	"github.com/feedbactory/client/transport"
)

// Status is the transport outcome of an operation.
type Status = transport.Status

const (
	StatusOK                 = transport.StatusOK
	StatusConsumed           = transport.StatusConsumed
	StatusFailedTimeout      = transport.StatusFailedTimeout
	StatusFailedNetworkOther = transport.StatusFailedNetworkOther
)

var (
	// ErrIllegalState is the contract violation signal: an operation was
	// called in a session state that correct callers never produce.
	ErrIllegalState = errors.New("session: illegal state")

	// ErrProtocol is the malformed or unrecognised wire value signal.
	ErrProtocol = errors.New("session: protocol fault")

	// ErrInvalidPasswordHash is returned for a password hash of the wrong
	// length.
	ErrInvalidPasswordHash = errors.New("session: invalid password hash length")
)

// IllegalStateError names the operation that was called out of sequence.
type IllegalStateError struct {
	Op     string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("session: %s: illegal state: %s", e.Op, e.Reason)
}

func (e *IllegalStateError) Unwrap() error {
	return ErrIllegalState
}

// ProtocolError is returned when a response cannot be decoded or carries
// a value outside its enumeration.  It is never retried.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("session: %s: protocol fault: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func illegalState(op, reason string) error {
	return &IllegalStateError{Op: op, Reason: reason}
}

func protocolFault(op string, err error) error {
	return &ProtocolError{Op: op, Err: err}
}
