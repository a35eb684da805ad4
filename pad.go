package onetimepad

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Pad is an immutable block of random key material shared by all parties of a
// conversation. Each chunk is meant to be used for exactly one encryption. The
// position of a party in the party list is its stride offset for the whole
// lifetime of the pad.
type Pad struct {
	creationTime string
	parties      []string
	chunks       [][]byte
	hash         string
}

// NewPad takes a creation timestamp, an ordered list of parties and the chunk
// contents and returns an immutable Pad. Inputs are copied. An error wrapping
// ErrInvalidPad is returned if there are no parties, parties repeat, or the
// chunks are empty or of uneven length.
func NewPad(creationTime string, parties []string, chunks [][]byte) (*Pad, error) {
	if len(parties) == 0 {
		return nil, fmt.Errorf("%w: at least one party is required", ErrInvalidPad)
	}
	seen := make(map[string]struct{}, len(parties))
	for _, p := range parties {
		if p == "" {
			return nil, fmt.Errorf("%w: empty party name", ErrInvalidPad)
		}
		if _, ok := seen[p]; ok {
			return nil, fmt.Errorf("%w: duplicate party %q", ErrInvalidPad, p)
		}
		seen[p] = struct{}{}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: pad holds no chunks", ErrInvalidPad)
	}
	size := len(chunks[0])
	if size == 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", ErrInvalidPad)
	}

	p := &Pad{
		creationTime: creationTime,
		parties:      append([]string(nil), parties...),
		chunks:       make([][]byte, len(chunks)),
	}
	for i, c := range chunks {
		if len(c) != size {
			return nil, fmt.Errorf("%w: chunk %d has %d bytes, expected %d", ErrInvalidPad, i, len(c), size)
		}
		p.chunks[i] = append([]byte(nil), c...)
	}
	p.hash = padHash(creationTime, parties)
	return p, nil
}

// padHash returns the uppercase hex md5 digest of the creation time and all
// parties joined by dashes. It identifies a pad, it does not cover the chunks.
func padHash(creationTime string, parties []string) string {
	var b strings.Builder
	b.WriteString(creationTime)
	for _, p := range parties {
		b.WriteString("-")
		b.WriteString(p)
	}
	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Hash returns the identity hash of the pad.
func (p *Pad) Hash() string {
	return p.hash
}

// CreationTime returns the opaque creation timestamp.
func (p *Pad) CreationTime() string {
	return p.creationTime
}

// Parties returns a copy of the ordered party list.
func (p *Pad) Parties() []string {
	return append([]string(nil), p.parties...)
}

// PartyCount is the stride between two chunks used by the same party.
func (p *Pad) PartyCount() int {
	return len(p.parties)
}

// ChunkAmount returns the number of chunks held by the pad.
func (p *Pad) ChunkAmount() int {
	return len(p.chunks)
}

// ChunkSize returns the number of bytes per chunk.
func (p *Pad) ChunkSize() int {
	return len(p.chunks[0])
}

// PartyIndex looks up the position of a party in the pad. The index is also
// the first chunk the party is entitled to use.
func (p *Pad) PartyIndex(party string) (int, error) {
	for i, candidate := range p.parties {
		if candidate == party {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q is not associated with pad %s", ErrInvalidParty, party, p.hash)
}

// IsAssociatedParty reports whether party is listed in the pad.
func (p *Pad) IsAssociatedParty(party string) bool {
	_, err := p.PartyIndex(party)
	return err == nil
}

// ChunkContent returns a copy of the chunk at index.
func (p *Pad) ChunkContent(index int) ([]byte, error) {
	if index < 0 || index >= len(p.chunks) {
		return nil, fmt.Errorf("%w: chunk %d requested from a pad of %d chunks", ErrOutOfChunks, index, len(p.chunks))
	}
	return append([]byte(nil), p.chunks[index]...), nil
}

// Equal reports whether both pads share creation time, party order and chunk
// contents.
func (p *Pad) Equal(other *Pad) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.creationTime != other.creationTime || len(p.parties) != len(other.parties) || len(p.chunks) != len(other.chunks) {
		return false
	}
	for i := range p.parties {
		if p.parties[i] != other.parties[i] {
			return false
		}
	}
	for i := range p.chunks {
		if !bytes.Equal(p.chunks[i], other.chunks[i]) {
			return false
		}
	}
	return true
}
