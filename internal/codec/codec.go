// Package codec serializes a ticket's check-in record to the compact text
// form embedded in the scannable QR attachment, and decodes scanned input
// back into ticket fields.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrDecode is returned for any input not produced by Encode. Scanners feed
// arbitrary bytes here; decoding fails closed instead of faulting.
var ErrDecode = errors.New("not a valid ticket payload")

// MaxEncodedSize bounds the encoded form so it stays comfortably inside a
// QR code's capacity.
const MaxEncodedSize = 512

// Payload is the check-in record carried inside the scannable code.
type Payload struct {
	TicketID   string    `json:"ticket_id"`
	EventID    string    `json:"event_id"`
	HolderID   string    `json:"holder_id"`
	HolderName string    `json:"holder_name"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Encode serializes the payload deterministically: identical field values
// always produce the identical string.
func Encode(p Payload) (string, error) {
	if p.TicketID == "" {
		return "", errors.New("payload requires a ticket id")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if len(b) > MaxEncodedSize {
		return "", errors.New("payload exceeds maximum encoded size")
	}
	return string(b), nil
}

// Decode parses an encoded payload. Field order does not matter. Anything
// the encoder could not have produced, including a payload without a ticket
// id, returns ErrDecode.
func Decode(s string) (Payload, error) {
	var p Payload
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxEncodedSize || !strings.HasPrefix(s, "{") {
		return Payload{}, ErrDecode
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Payload{}, ErrDecode
	}
	// Reject trailing garbage after the JSON object.
	if dec.More() {
		return Payload{}, ErrDecode
	}
	if p.TicketID == "" {
		return Payload{}, ErrDecode
	}
	return p, nil
}
