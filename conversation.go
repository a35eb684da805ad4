package onetimepad

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Conversation is the main access point for library users. A Conversation is
// bound to one party of a pad and picks the chunks for that party's outgoing
// messages so that no chunk is ever used twice.
type Conversation interface {
	AddPlainMessage(message PlainMessage) (*EncryptedMessage, error)
	EncryptedMessagePreview(message PlainMessage) (*EncryptedMessage, error)
	AddEncryptedMessage(message *EncryptedMessage) (PlainMessage, error)
	PlainHistory() ([]PlainMessage, error)
	EncryptedHistory() []*EncryptedMessage
	SerializeEncryptedMessagesToJSON() ([]byte, error)
}

// Option configures an OTPConversation.
type Option func(*OTPConversation)

// WithLogger sets the logger used for chunk bookkeeping events.
func WithLogger(log *zap.Logger) Option {
	return func(c *OTPConversation) {
		c.log = orNop(log)
	}
}

// OTPConversation is the one time pad backed Conversation. All methods are
// safe for concurrent use; outgoing encryptions are strictly sequential.
type OTPConversation struct {
	mu          sync.Mutex
	pad         *Pad
	party       string
	history     []*EncryptedMessage
	nextChunkID int
	log         *zap.Logger
}

var _ Conversation = (*OTPConversation)(nil)

// NewConversation starts a blank conversation for party on pad.
func NewConversation(pad *Pad, party string, opts ...Option) (*OTPConversation, error) {
	return newConversation(pad, party, nil, opts)
}

func newConversation(pad *Pad, party string, history []*EncryptedMessage, opts []Option) (*OTPConversation, error) {
	if pad == nil {
		return nil, fmt.Errorf("%w: no pad provided", ErrInvalidPad)
	}
	next, err := NextChunkIndex(history, party, pad)
	if err != nil {
		return nil, err
	}
	c := &OTPConversation{
		pad:         pad,
		party:       party,
		history:     history,
		nextChunkID: next,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("pad", pad.Hash()), zap.String("party", party))
	return c, nil
}

// Restore rebuilds a conversation from a JSON array of encrypted messages.
// The history must belong to pad; only the first entry's pad hash is checked.
// Entries of pad must keep its stride. The cursor is recomputed with
// NextChunkIndex, so encryption continues exactly where it stopped before the
// history was exported.
func Restore(serializedHistory []byte, party string, pad *Pad, opts ...Option) (*OTPConversation, error) {
	if pad == nil {
		return nil, fmt.Errorf("%w: no pad provided", ErrInvalidPad)
	}
	if !pad.IsAssociatedParty(party) {
		return nil, fmt.Errorf("%w: %q is not associated with pad %s", ErrInvalidParty, party, pad.Hash())
	}
	history, err := UnmarshalHistory(serializedHistory)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 && history[0].OTPHash() != pad.Hash() {
		return nil, fmt.Errorf("%w: history was encrypted with pad %s, not %s", ErrOneTimePadMismatch, history[0].OTPHash(), pad.Hash())
	}
	for i, m := range history {
		if m.OTPHash() != pad.Hash() {
			continue
		}
		if err := m.checkStride(pad); err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
	}
	c, err := newConversation(pad, party, history, opts)
	if err != nil {
		return nil, err
	}
	c.log.Debug("conversation restored", zap.Int("messages", len(history)), zap.Int("next_chunk", c.nextChunkID))
	return c, nil
}

// RestoreWithSerializedPad is Restore with the pad given in its JSON form.
func RestoreWithSerializedPad(serializedHistory []byte, party string, serializedPad []byte, opts ...Option) (*OTPConversation, error) {
	pad, err := UnmarshalPad(serializedPad)
	if err != nil {
		return nil, err
	}
	return Restore(serializedHistory, party, pad, opts...)
}

// NextChunkIndex computes the cursor of party from a history. The history is
// scanned from newest to oldest and the follow up index of the first message
// authored by party wins. Messages for other pads are skipped and the winning
// message must keep the pad's stride. A party that never sent starts at its
// own index.
func NextChunkIndex(history []*EncryptedMessage, party string, pad *Pad) (int, error) {
	index, err := pad.PartyIndex(party)
	if err != nil {
		return 0, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.OTPHash() != pad.Hash() || m.ChopAmount() == 0 || m.FirstChunkIndex()%pad.PartyCount() != index {
			continue
		}
		if err := m.checkStride(pad); err != nil {
			return 0, err
		}
		return m.FollowUpChunkIndex(), nil
	}
	return index, nil
}

// Party returns the party this conversation encrypts for.
func (c *OTPConversation) Party() string {
	return c.party
}

// Pad returns the key material of the conversation.
func (c *OTPConversation) Pad() *Pad {
	return c.pad
}

// NextChunkID returns the chunk the next outgoing message will start with.
func (c *OTPConversation) NextChunkID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextChunkID
}

// AddPlainMessage encrypts message with the next unused chunks of the party,
// appends the result to the history and advances the cursor. On failure the
// conversation is left untouched.
func (c *OTPConversation) AddPlainMessage(message PlainMessage) (*EncryptedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := EncryptMessage(message, c.pad, c.nextChunkID)
	if err != nil {
		if errors.Is(err, ErrOutOfChunks) {
			c.log.Warn("pad exhausted", zap.Int("next_chunk", c.nextChunkID), zap.Int("chunk_amount", c.pad.ChunkAmount()))
		}
		return nil, err
	}
	c.history = append(c.history, m)
	c.nextChunkID = m.FollowUpChunkIndex()
	c.log.Debug("message encrypted", zap.Ints("chunks", m.ChunksUsed()), zap.Int("next_chunk", c.nextChunkID))
	return m, nil
}

// EncryptedMessagePreview returns what AddPlainMessage would produce without
// burning any chunk.
func (c *OTPConversation) EncryptedMessagePreview(message PlainMessage) (*EncryptedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return EncryptMessage(message, c.pad, c.nextChunkID)
}

// AddEncryptedMessage decrypts a message, usually one received from another
// party, and records it. The cursor is not touched: chunk usage of other
// parties is governed by their own conversations.
func (c *OTPConversation) AddEncryptedMessage(message *EncryptedMessage) (PlainMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if message == nil {
		return PlainMessage{}, fmt.Errorf("%w: no envelope provided", ErrCryptor)
	}
	if message.OTPHash() == c.pad.Hash() {
		if err := message.checkStride(c.pad); err != nil {
			return PlainMessage{}, err
		}
	}
	plain, err := DecryptMessage(message, c.pad, true)
	if err != nil {
		if errors.Is(err, ErrOneTimePadMismatch) {
			c.log.Warn("rejected message for another pad", zap.String("otp_hash", message.OTPHash()))
		}
		return PlainMessage{}, err
	}
	c.history = append(c.history, message)
	c.log.Debug("message recorded", zap.Ints("chunks", message.ChunksUsed()))
	return plain, nil
}

// PlainHistory decrypts the whole history in order. A single failure aborts
// the call.
func (c *OTPConversation) PlainHistory() ([]PlainMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	plain := make([]PlainMessage, 0, len(c.history))
	for i, m := range c.history {
		p, err := DecryptMessage(m, c.pad, true)
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		plain = append(plain, p)
	}
	return plain, nil
}

// EncryptedHistory returns the recorded messages in insertion order. The
// messages are immutable; the slice is a copy.
func (c *OTPConversation) EncryptedHistory() []*EncryptedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*EncryptedMessage(nil), c.history...)
}

// SerializeEncryptedMessagesToJSON encodes the history as a JSON array.
func (c *OTPConversation) SerializeEncryptedMessagesToJSON() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MarshalHistory(c.history)
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
