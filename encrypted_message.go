package onetimepad

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	blocks "github.com/ipfs/go-block-format"
)

// hashPrefixLength is the number of pad hash characters written in front of
// every line of the text form.
const hashPrefixLength = 6

type chop struct {
	index int
	data  []byte
}

// EncryptedMessage binds ciphertext chops to the absolute pad chunk indices
// used to produce them, in usage order, together with the pad hash. It is
// immutable once built.
type EncryptedMessage struct {
	otpHash            string
	chops              []chop
	followUpChunkIndex int
	chunkIndexDigits   int
	payloadLength      int
}

// NewEncryptedMessage assembles an envelope from ciphertext blocks that were
// produced with the pad chunks startChunkIndex, startChunkIndex+stride, and so
// on, where stride is the pad's party count. Blocks are copied.
func NewEncryptedMessage(pad *Pad, startChunkIndex int, chops [][]byte) (*EncryptedMessage, error) {
	if len(chops) == 0 {
		return nil, fmt.Errorf("%w: an encrypted message needs at least one chop", ErrCryptor)
	}
	if startChunkIndex < 0 {
		return nil, fmt.Errorf("%w: negative start chunk %d", ErrCryptor, startChunkIndex)
	}
	stride := pad.PartyCount()
	m := &EncryptedMessage{
		otpHash:          pad.Hash(),
		chops:            make([]chop, len(chops)),
		chunkIndexDigits: len(strconv.Itoa(pad.ChunkAmount())),
	}
	index := startChunkIndex
	for i, c := range chops {
		if len(c) != pad.ChunkSize() {
			return nil, fmt.Errorf("%w: chop %d has %d bytes, pad chunks have %d", ErrCryptor, i, len(c), pad.ChunkSize())
		}
		if index >= pad.ChunkAmount() {
			return nil, fmt.Errorf("%w: chunk %d exceeds pad of %d chunks", ErrOutOfChunks, index, pad.ChunkAmount())
		}
		m.chops[i] = chop{index: index, data: append([]byte(nil), c...)}
		index += stride
	}
	m.followUpChunkIndex = index
	return m, nil
}

// withPayloadLength returns a copy of m recording the true payload length.
func (m *EncryptedMessage) withPayloadLength(n int) *EncryptedMessage {
	c := *m
	c.payloadLength = n
	return &c
}

// checkStride verifies that m advances by the party count of pad, both between
// chops and towards the follow up index, and stays on one party's chunks.
func (m *EncryptedMessage) checkStride(pad *Pad) error {
	if len(m.chops) == 0 {
		return fmt.Errorf("%w: encrypted message without chops", ErrCryptor)
	}
	stride := pad.PartyCount()
	for i := 1; i < len(m.chops); i++ {
		if m.chops[i].index-m.chops[i-1].index != stride {
			return fmt.Errorf("%w: chunk %d does not follow chunk %d with a stride of %d", ErrCryptor, m.chops[i].index, m.chops[i-1].index, stride)
		}
	}
	if last := m.chops[len(m.chops)-1].index; m.followUpChunkIndex-last != stride {
		return fmt.Errorf("%w: follow up chunk %d does not follow chunk %d with a stride of %d", ErrCryptor, m.followUpChunkIndex, last, stride)
	}
	return nil
}

// OTPHash returns the hash of the pad used for encryption.
func (m *EncryptedMessage) OTPHash() string {
	return m.otpHash
}

// ChunksUsed returns the chunk indices in usage order.
func (m *EncryptedMessage) ChunksUsed() []int {
	indices := make([]int, len(m.chops))
	for i, c := range m.chops {
		indices[i] = c.index
	}
	return indices
}

// FirstChunkIndex returns the first chunk used. Its position modulo the party
// count identifies the author.
func (m *EncryptedMessage) FirstChunkIndex() int {
	return m.chops[0].index
}

// ChopAmount returns the number of chops.
func (m *EncryptedMessage) ChopAmount() int {
	return len(m.chops)
}

// Chop returns a copy of the ciphertext encrypted with chunk index.
func (m *EncryptedMessage) Chop(index int) ([]byte, bool) {
	for _, c := range m.chops {
		if c.index == index {
			return append([]byte(nil), c.data...), true
		}
	}
	return nil, false
}

// FollowUpChunkIndex is the chunk the producing party should use next.
func (m *EncryptedMessage) FollowUpChunkIndex() int {
	return m.followUpChunkIndex
}

// PayloadLength returns the plaintext length recorded at encryption time, or
// 0 if unknown.
func (m *EncryptedMessage) PayloadLength() int {
	return m.payloadLength
}

// Prefix returns the hash and zero padded chunk index that precede a chop in
// the text form, e.g. "3F2A9C-00042-".
func (m *EncryptedMessage) Prefix(chunkIndex int) string {
	return fmt.Sprintf("%s-%0*d-", m.otpHash[:hashPrefixLength], m.chunkIndexDigits, chunkIndex)
}

// SerializeToText renders the message as printable lines, one per chop, that
// survive plain text channels such as email.
func (m *EncryptedMessage) SerializeToText() string {
	var b strings.Builder
	for _, c := range m.chops {
		b.WriteString(m.Prefix(c.index))
		b.WriteString(strings.ToUpper(hex.EncodeToString(c.data)))
		b.WriteString("\n")
	}
	return b.String()
}

// ParseEncryptedMessageText reads the text form produced by SerializeToText
// back into an envelope for pad. Blank lines are ignored.
func ParseEncryptedMessageText(text string, pad *Pad) (*EncryptedMessage, error) {
	digits := len(strconv.Itoa(pad.ChunkAmount()))
	var (
		start  = -1
		expect int
		chops  [][]byte
	)
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "-")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: line %d is not HASH-INDEX-CIPHERTEXT", ErrCryptor, n+1)
		}
		if !strings.EqualFold(parts[0], pad.Hash()[:hashPrefixLength]) {
			return nil, fmt.Errorf("%w: line %d references pad %s, not %s", ErrOneTimePadMismatch, n+1, parts[0], pad.Hash()[:hashPrefixLength])
		}
		if len(parts[1]) != digits {
			return nil, fmt.Errorf("%w: line %d index %q is not %d digits wide", ErrCryptor, n+1, parts[1], digits)
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil || index < 0 {
			return nil, fmt.Errorf("%w: line %d has invalid index %q", ErrCryptor, n+1, parts[1])
		}
		if start < 0 {
			start = index
		} else if index != expect {
			return nil, fmt.Errorf("%w: line %d uses chunk %d, expected %d", ErrCryptor, n+1, index, expect)
		}
		expect = index + pad.PartyCount()
		data, err := hex.DecodeString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d ciphertext: %v", ErrCryptor, n+1, err)
		}
		chops = append(chops, data)
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: no encrypted lines found", ErrCryptor)
	}
	return NewEncryptedMessage(pad, start, chops)
}

type chopJSON struct {
	Index int      `json:"index"`
	Data  HexBytes `json:"data"`
}

type encryptedMessageJSON struct {
	OTPHash            string     `json:"otpHash"`
	Chops              []chopJSON `json:"chops"`
	FollowUpChunkIndex int        `json:"followUpChunkIndex"`
	ChunkIndexDigits   int        `json:"chunkIndexDigits"`
	PayloadLength      int        `json:"payloadLength,omitempty"`
}

// MarshalJSON implements json.Marshaler. Chops are written as an ordered
// array so usage order survives the round trip.
func (m *EncryptedMessage) MarshalJSON() ([]byte, error) {
	w := encryptedMessageJSON{
		OTPHash:            m.otpHash,
		Chops:              make([]chopJSON, len(m.chops)),
		FollowUpChunkIndex: m.followUpChunkIndex,
		ChunkIndexDigits:   m.chunkIndexDigits,
		PayloadLength:      m.payloadLength,
	}
	for i, c := range m.chops {
		w.Chops[i] = chopJSON{Index: c.index, Data: c.data}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Indices must be ascending with a
// constant gap, chops must share one length and the follow up index must sit
// one gap past the last chop.
func (m *EncryptedMessage) UnmarshalJSON(b []byte) error {
	var w encryptedMessageJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.OTPHash) < hashPrefixLength {
		return fmt.Errorf("%w: otp hash %q too short", ErrCryptor, w.OTPHash)
	}
	if len(w.Chops) == 0 {
		return fmt.Errorf("%w: encrypted message without chops", ErrCryptor)
	}
	if w.ChunkIndexDigits <= 0 {
		return fmt.Errorf("%w: chunk index digits must be positive", ErrCryptor)
	}
	if w.PayloadLength < 0 {
		return fmt.Errorf("%w: negative payload length", ErrCryptor)
	}
	chops := make([]chop, len(w.Chops))
	gap := w.FollowUpChunkIndex - w.Chops[len(w.Chops)-1].Index
	if gap <= 0 {
		return fmt.Errorf("%w: follow up chunk %d does not follow last chunk %d", ErrCryptor, w.FollowUpChunkIndex, w.Chops[len(w.Chops)-1].Index)
	}
	for i, c := range w.Chops {
		if c.Index < 0 {
			return fmt.Errorf("%w: negative chunk index %d", ErrCryptor, c.Index)
		}
		if i > 0 && c.Index-w.Chops[i-1].Index != gap {
			return fmt.Errorf("%w: chunk %d breaks the stride of %d", ErrCryptor, c.Index, gap)
		}
		if len(c.Data) == 0 || len(c.Data) != len(w.Chops[0].Data) {
			return fmt.Errorf("%w: chop for chunk %d has uneven length", ErrCryptor, c.Index)
		}
		chops[i] = chop{index: c.Index, data: append([]byte(nil), c.Data...)}
	}
	*m = EncryptedMessage{
		otpHash:            w.OTPHash,
		chops:              chops,
		followUpChunkIndex: w.FollowUpChunkIndex,
		chunkIndexDigits:   w.ChunkIndexDigits,
		payloadLength:      w.PayloadLength,
	}
	return nil
}

// EnvelopeID returns the content identifier of the message's JSON encoding
// without the payload length, so an envelope parsed from the text form shares
// the ID of its JSON original.
func EnvelopeID(m *EncryptedMessage) (string, error) {
	if m == nil {
		return "", fmt.Errorf("%w: no envelope provided", ErrCryptor)
	}
	b, err := json.Marshal(m.withPayloadLength(0))
	if err != nil {
		return "", err
	}
	return blocks.NewBlock(b).Cid().String(), nil
}
