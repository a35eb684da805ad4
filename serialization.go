package onetimepad

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HexBytes is a byte slice that encodes to JSON as an uppercase hex string
// instead of base64, keeping pads and messages compact and printable.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToUpper(hex.EncodeToString(h)))
}

// UnmarshalJSON implements json.Unmarshaler. Lower case input is accepted.
func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: invalid hex bytes: %v", ErrCryptor, err)
	}
	*h = decoded
	return nil
}

// padJSON is the wire form of a Pad.
type padJSON struct {
	CreationTime string     `json:"creationTime"`
	Parties      []string   `json:"parties"`
	Chunks       []HexBytes `json:"chunks"`
	Hash         string     `json:"hash,omitempty"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p *Pad) MarshalJSON() ([]byte, error) {
	w := padJSON{
		CreationTime: p.creationTime,
		Parties:      p.parties,
		Chunks:       make([]HexBytes, len(p.chunks)),
		Hash:         p.hash,
		Fingerprint:  p.Fingerprint(),
	}
	for i, c := range p.chunks {
		w.Chunks[i] = c
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. The hash is always recomputed
// from creation time and parties; a transmitted hash that disagrees is
// rejected with ErrOneTimePadMismatch. A transmitted fingerprint must match
// the decoded chunks.
func (p *Pad) UnmarshalJSON(b []byte) error {
	var w padJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	chunks := make([][]byte, len(w.Chunks))
	for i, c := range w.Chunks {
		chunks[i] = c
	}
	decoded, err := NewPad(w.CreationTime, w.Parties, chunks)
	if err != nil {
		return err
	}
	if w.Hash != "" && !strings.EqualFold(w.Hash, decoded.hash) {
		return fmt.Errorf("%w: stored hash %s does not match recomputed %s", ErrOneTimePadMismatch, w.Hash, decoded.hash)
	}
	if w.Fingerprint != "" {
		if err := decoded.verifyFingerprint(w.Fingerprint); err != nil {
			return err
		}
	}
	*p = *decoded
	return nil
}

// UnmarshalPad decodes the JSON wire form of a pad.
func UnmarshalPad(b []byte) (*Pad, error) {
	var p Pad
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MarshalHistory encodes encrypted messages as a JSON array.
func MarshalHistory(history []*EncryptedMessage) ([]byte, error) {
	if history == nil {
		history = []*EncryptedMessage{}
	}
	return json.Marshal(history)
}

// UnmarshalHistory decodes a JSON array of encrypted messages, preserving order.
func UnmarshalHistory(b []byte) ([]*EncryptedMessage, error) {
	var history []*EncryptedMessage
	if err := json.Unmarshal(b, &history); err != nil {
		return nil, err
	}
	for i, m := range history {
		if m == nil {
			return nil, fmt.Errorf("%w: history entry %d is null", ErrCryptor, i)
		}
	}
	return history, nil
}
