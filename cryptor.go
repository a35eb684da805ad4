package onetimepad

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-faster/xor"
)

// fillByte pads the last chop of a message. Trailing spaces are trimmed again
// when a text payload is decrypted.
const fillByte = ' '

// textWhitespace is trimmed from the end of decrypted text payloads.
const textWhitespace = " \t\n\v\f\r"

// Chop splits message into ceil(len/chunkSize) blocks of exactly chunkSize
// bytes. The last block is right padded with spaces. An empty message yields
// no blocks.
func Chop(message []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 || len(message) == 0 {
		return nil
	}
	count := (len(message) + chunkSize - 1) / chunkSize
	chops := make([][]byte, count)
	for i := 0; i < count; i++ {
		c := bytes.Repeat([]byte{fillByte}, chunkSize)
		end := (i + 1) * chunkSize
		if end > len(message) {
			end = len(message)
		}
		copy(c, message[i*chunkSize:end])
		chops[i] = c
	}
	return chops
}

// CryptChunkSizedMessage XORs data with chunk. Both must have the same length.
// The operation is its own inverse and serves encryption and decryption alike.
func CryptChunkSizedMessage(data, chunk []byte) ([]byte, error) {
	if len(data) != len(chunk) {
		return nil, fmt.Errorf("%w: message of %d bytes does not fit chunk of %d bytes", ErrCryptor, len(data), len(chunk))
	}
	out := make([]byte, len(data))
	xor.Bytes(out, data, chunk)
	return out, nil
}

// PadString right pads message with spaces up to targetLength.
func PadString(message string, targetLength int) (string, error) {
	if len(message) > targetLength {
		return "", fmt.Errorf("%w: message of %d bytes already exceeds target length %d", ErrCryptor, len(message), targetLength)
	}
	return message + strings.Repeat(string(fillByte), targetLength-len(message)), nil
}

// EncryptMessage encrypts the payload of message with the pad chunks
// startChunkID, startChunkID+stride, ... where stride is the pad's party
// count. Nothing is returned if any required chunk lies beyond the pad.
func EncryptMessage(message PlainMessage, pad *Pad, startChunkID int) (*EncryptedMessage, error) {
	if len(message.payload) == 0 {
		return nil, fmt.Errorf("%w: refusing to encrypt an empty payload", ErrCryptor)
	}
	if startChunkID < 0 {
		return nil, fmt.Errorf("%w: negative start chunk %d", ErrCryptor, startChunkID)
	}
	plain := Chop(message.payload, pad.ChunkSize())
	encrypted := make([][]byte, len(plain))
	stride := pad.PartyCount()
	for i, p := range plain {
		chunk, err := pad.ChunkContent(startChunkID + i*stride)
		if err != nil {
			return nil, err
		}
		if encrypted[i], err = CryptChunkSizedMessage(p, chunk); err != nil {
			return nil, err
		}
	}
	m, err := NewEncryptedMessage(pad, startChunkID, encrypted)
	if err != nil {
		return nil, err
	}
	return m.withPayloadLength(len(message.payload)), nil
}

// DecryptMessage decrypts every chop of m with pad and concatenates the result
// in chunk order. With trimText trailing whitespace is removed, which undoes
// the chop padding for text payloads. The author is derived from the first
// chunk index modulo the party count.
func DecryptMessage(m *EncryptedMessage, pad *Pad, trimText bool) (PlainMessage, error) {
	payload, err := decryptChops(m, pad)
	if err != nil {
		return PlainMessage{}, err
	}
	if trimText {
		payload = bytes.TrimRight(payload, textWhitespace)
	}
	return messageFromParty(pad.parties[m.FirstChunkIndex()%pad.PartyCount()], payload), nil
}

// DecryptPayload returns exactly the bytes that were encrypted, using the
// payload length recorded in m. Envelopes without a recorded length, such as
// those parsed from the text form, come back with their chop padding.
func DecryptPayload(m *EncryptedMessage, pad *Pad) ([]byte, error) {
	payload, err := decryptChops(m, pad)
	if err != nil {
		return nil, err
	}
	if n := m.PayloadLength(); n > 0 && n <= len(payload) {
		payload = payload[:n]
	}
	return payload, nil
}

func decryptChops(m *EncryptedMessage, pad *Pad) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: no envelope provided", ErrCryptor)
	}
	if m.OTPHash() != pad.Hash() {
		return nil, fmt.Errorf("%w: message was encrypted with pad %s, not %s", ErrOneTimePadMismatch, m.OTPHash(), pad.Hash())
	}
	payload := make([]byte, 0, len(m.chops)*pad.ChunkSize())
	for _, c := range m.chops {
		chunk, err := pad.ChunkContent(c.index)
		if err != nil {
			return nil, err
		}
		plain, err := CryptChunkSizedMessage(c.data, chunk)
		if err != nil {
			return nil, err
		}
		payload = append(payload, plain...)
	}
	return payload, nil
}
