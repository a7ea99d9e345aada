// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

const nullStringLength = -1

// Writer accumulates a big endian request body.  Like Reader, the first
// failed write is sticky and reported by Err.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns a Writer with capacity for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated bytes.  The slice aliases the Writer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) PutByte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

func (w *Writer) PutBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) PutBool(v bool) *Writer {
	if v {
		return w.PutByte(1)
	}
	return w.PutByte(0)
}

func (w *Writer) PutInt32(v int32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	return w
}

func (w *Writer) PutInt64(v int64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
	return w
}

// PutString writes s as an int32 byte length followed by its UTF-8 bytes.
// A string that is not valid UTF-8 is not written and sets Err.
func (w *Writer) PutString(s string) *Writer {
	if !utf8.ValidString(s) {
		if w.err == nil {
			w.err = fmt.Errorf("%w: string at offset %d", ErrInvalidUTF8, len(w.buf))
		}
		return w
	}
	w.PutInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// PutNullString writes the null string marker.
func (w *Writer) PutNullString() *Writer {
	return w.PutInt32(nullStringLength)
}

// Reader consumes a big endian response body.  The first failed read is
// sticky: every subsequent read returns the same error.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Rest returns the unread bytes and advances to the end of the buffer.
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

func (r *Reader) fail(field string, err error) {
	if r.err == nil {
		r.err = &FieldError{Field: field, Offset: r.off, Err: err}
	}
}

func (r *Reader) take(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(field, ErrTruncated)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Byte reads a single byte.
func (r *Reader) Byte(field string) byte {
	b := r.take(field, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bytes reads n bytes into a fresh slice.
func (r *Reader) Bytes(field string, n int) []byte {
	b := r.take(field, n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Bool reads a boolean, rejecting any byte other than 0 or 1.
func (r *Reader) Bool(field string) bool {
	b := r.take(field, 1)
	if b == nil {
		return false
	}
	switch b[0] {
	case 0:
		return false
	case 1:
		return true
	}
	r.off--
	r.fail(field, &InvalidValueError{Field: field, Value: b[0]})
	return false
}

func (r *Reader) Int32(field string) int32 {
	b := r.take(field, 4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) Int64(field string) int64 {
	b := r.take(field, 8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// String reads a length prefixed string.  The null marker decodes to the
// empty string with ok set to false.
func (r *Reader) String(field string) (s string, ok bool) {
	n := r.Int32(field)
	if r.err != nil {
		return "", false
	}
	if n == nullStringLength {
		return "", false
	}
	if n < 0 {
		r.fail(field, fmt.Errorf("negative string length %d", n))
		return "", false
	}
	b := r.take(field, int(n))
	if b == nil {
		return "", false
	}
	if !utf8.Valid(b) {
		r.off -= int(n)
		r.fail(field, ErrInvalidUTF8)
		return "", false
	}
	return string(b), true
}

// Check is a convenience that converts a parsed enumeration error into the
// sticky Reader error.
func (r *Reader) Check(field string, err error) {
	if err != nil {
		r.fail(field, err)
	}
}
