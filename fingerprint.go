package onetimepad

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
)

// blake2b256Code is the multicodec for blake2b with a 32 byte digest.
const blake2b256Code = multihash.BLAKE2B_MIN + 31

// Fingerprint returns a base58 encoded multihash of the blake2b-256 digest of
// all chunks in order. Unlike Hash it covers the key material and is used to
// detect corrupted pad files. It never travels with messages.
func (p *Pad) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	for _, c := range p.chunks {
		h.Write(c)
	}
	mh, err := multihash.Encode(h.Sum(nil), blake2b256Code)
	if err != nil {
		// blake2b-256 is a registered code with a matching digest length
		panic(err)
	}
	return base58.Encode(mh)
}

// verifyFingerprint checks a base58 multihash fingerprint against the pad.
func (p *Pad) verifyFingerprint(fingerprint string) error {
	raw, err := base58.Decode(fingerprint)
	if err != nil {
		return fmt.Errorf("%w: fingerprint is not base58: %v", ErrInvalidPad, err)
	}
	decoded, err := multihash.Decode(raw)
	if err != nil {
		return fmt.Errorf("%w: fingerprint is not a multihash: %v", ErrInvalidPad, err)
	}
	if decoded.Code != blake2b256Code {
		return fmt.Errorf("%w: unsupported fingerprint function %s", ErrInvalidPad, decoded.Name)
	}
	expected, _ := base58.Decode(p.Fingerprint())
	if !bytes.Equal(raw, expected) {
		return fmt.Errorf("%w: fingerprint does not match chunk contents", ErrInvalidPad)
	}
	return nil
}
