package onetimepad

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePadTime = "2024-03-01--10:15:00"

// newTestPad builds a pad with chunkAmount chunks of chunkSize bytes whose
// content is derived from the chunk index, so tests can predict ciphertext.
func newTestPad(t *testing.T, chunkAmount, chunkSize int, parties ...string) *Pad {
	t.Helper()
	chunks := make([][]byte, chunkAmount)
	for i := range chunks {
		chunks[i] = bytes.Repeat([]byte{byte(i*7 + 1)}, chunkSize)
	}
	pad, err := NewPad(samplePadTime, parties, chunks)
	require.NoError(t, err)
	return pad
}

// newIdentityPad returns a pad of zero chunks, XOR with it is the identity.
func newIdentityPad(t *testing.T, chunkAmount, chunkSize int, parties ...string) *Pad {
	t.Helper()
	chunks := make([][]byte, chunkAmount)
	for i := range chunks {
		chunks[i] = make([]byte, chunkSize)
	}
	pad, err := NewPad(samplePadTime, parties, chunks)
	require.NoError(t, err)
	return pad
}

func newTestMessage(t *testing.T, author, machine, payload string) PlainMessage {
	t.Helper()
	m, err := NewPlainMessage(author, machine, []byte(payload))
	require.NoError(t, err)
	return m
}

func sampleMessageBytes() []byte {
	return []byte("The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs.")
}
