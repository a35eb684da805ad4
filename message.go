package onetimepad

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is used for pad creation times and message creation times.
const TimestampLayout = "2006-01-02--15:04:05"

// namePattern matches one side of a name@machine party, see partyPattern.
var namePattern = regexp.MustCompile(`^[a-zA-Z-]+$`)

// now is swapped in tests.
var now = time.Now

// PlainMessage bundles an unencrypted payload with its author. The creation
// timestamp is informational only, it is never encrypted.
type PlainMessage struct {
	author   string
	machine  string
	creation string
	payload  []byte
}

// NewPlainMessage returns a message stamped with the current time. Author and
// machine may hold letters and hyphens only.
func NewPlainMessage(author, machine string, payload []byte) (PlainMessage, error) {
	return NewPlainMessageAt(author, machine, now().Format(TimestampLayout), payload)
}

// NewPlainMessageAt is NewPlainMessage with an explicit creation timestamp.
func NewPlainMessageAt(author, machine, creation string, payload []byte) (PlainMessage, error) {
	if !namePattern.MatchString(author) {
		return PlainMessage{}, fmt.Errorf("%w: author %q must hold letters and hyphens only", ErrInvalidParty, author)
	}
	if !namePattern.MatchString(machine) {
		return PlainMessage{}, fmt.Errorf("%w: machine %q must hold letters and hyphens only", ErrInvalidParty, machine)
	}
	return PlainMessage{
		author:   author,
		machine:  machine,
		creation: creation,
		payload:  append([]byte(nil), payload...),
	}, nil
}

// messageFromParty builds a decrypted message for a pad party. Pad parties
// are not held to the name rule, so no validation happens here.
func messageFromParty(party string, payload []byte) PlainMessage {
	author, machine, _ := strings.Cut(party, "@")
	return PlainMessage{
		author:   author,
		machine:  machine,
		creation: now().Format(TimestampLayout),
		payload:  payload,
	}
}

// ParseParty splits a name@machine party string.
func ParseParty(party string) (author, machine string, err error) {
	author, machine, ok := strings.Cut(party, "@")
	if !ok || !namePattern.MatchString(author) || !namePattern.MatchString(machine) {
		return "", "", fmt.Errorf("%w: %q does not follow name@machine", ErrInvalidParty, party)
	}
	return author, machine, nil
}

// Author returns the natural name of the message creator.
func (m PlainMessage) Author() string { return m.author }

// Machine returns the client the author used.
func (m PlainMessage) Machine() string { return m.machine }

// Creation returns the creation timestamp.
func (m PlainMessage) Creation() string { return m.creation }

// Payload returns a copy of the message bytes.
func (m PlainMessage) Payload() []byte {
	return append([]byte(nil), m.payload...)
}

// Party returns the author@machine string. Messages attributed to a pad party
// without a machine part return the bare author.
func (m PlainMessage) Party() string {
	if m.machine == "" {
		return m.author
	}
	return m.author + "@" + m.machine
}

// Equal compares author, machine and payload. Creation is ignored.
func (m PlainMessage) Equal(other PlainMessage) bool {
	return m.author == other.author && m.machine == other.machine && bytes.Equal(m.payload, other.payload)
}

func (m PlainMessage) String() string {
	return fmt.Sprintf("(%s) %s: %s", m.creation, m.Party(), m.payload)
}
