// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

// Message is a server message attached to a response.
type Message struct {
	Type MessageType
	Text string
}

// IsEmpty returns true if m carries no message.
func (m Message) IsEmpty() bool {
	return m.Type == NoMessage
}

// PutMessage encodes m as a type byte followed, unless empty, by its text.
func (w *Writer) PutMessage(m Message) *Writer {
	w.PutByte(byte(m.Type))
	if !m.IsEmpty() {
		w.PutString(m.Text)
	}
	return w
}

// Message decodes a message block.
func (r *Reader) Message(field string) Message {
	t, err := ParseMessageType(r.Byte(field))
	r.Check(field, err)
	if r.err != nil || t == NoMessage {
		return Message{}
	}
	text, _ := r.String(field)
	if r.err != nil {
		return Message{}
	}
	return Message{Type: t, Text: text}
}
