// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a read runs past the end of a buffer.
	ErrTruncated = errors.New("wire: buffer truncated")

	// ErrInvalidUTF8 is returned for a string that is not valid UTF-8,
	// whether read from a response or passed to Writer.PutString.
	ErrInvalidUTF8 = errors.New("wire: invalid UTF-8")
)

// InvalidValueError is returned when a byte on the wire does not map to a
// known enumeration value.
type InvalidValueError struct {
	Field string
	Value byte
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("wire: invalid %s value %d", e.Field, e.Value)
}

// FieldError wraps a decoding failure with the name of the field being
// decoded and the offset at which decoding failed.
type FieldError struct {
	Field  string
	Offset int
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("wire: decoding %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
