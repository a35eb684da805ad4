package onetimepad

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
)

// Session binds the conversation of one party to persistent storage. Every
// outgoing message is written to storage before it is handed out, so a
// restarted session never reuses a chunk whose ciphertext left the process.
type Session struct {
	mu           sync.Mutex
	storage      Storage
	conversation *OTPConversation
	log          *zap.Logger
}

// SessionOptions holds session options for initialization
type SessionOptions struct {
	StorageEngine   StorageEngine
	StorageFilePath string
	Logger          *zap.Logger
}

// ImportPad stores pad under its hash. Importing the same pad twice is a no-op;
// importing different key material under an existing hash fails.
func ImportPad(storage Storage, pad *Pad) error {
	existing, err := LoadPad(storage, pad.Hash())
	switch {
	case err == nil:
		if !existing.Equal(pad) {
			return fmt.Errorf("%w: a different pad is stored as %s", ErrOneTimePadMismatch, pad.Hash())
		}
		return nil
	case !errors.Is(err, ErrNotFound):
		return err
	}
	b, err := json.Marshal(pad)
	if err != nil {
		return err
	}
	return storage.Set(padKey(pad.Hash()), b)
}

// LoadPad reads the pad stored under hash.
func LoadPad(storage Storage, hash string) (*Pad, error) {
	b, err := storage.Get(padKey(hash))
	if err != nil {
		return nil, err
	}
	return UnmarshalPad(b)
}

// ListPads returns the hashes of all stored pads.
func ListPads(storage Storage) ([]string, error) {
	keys, err := storage.List(padKeyPrefix)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(keys))
	for i, k := range keys {
		hashes[i] = strings.TrimPrefix(k, padKeyPrefix)
	}
	return hashes, nil
}

// NewSession opens storage, loads the pad stored under padHash and restores
// the conversation of party, or starts a blank one.
func NewSession(padHash, party string, opts SessionOptions) (*Session, error) {
	storage, err := NewStorage(StorageOptions{Engine: opts.StorageEngine, FilePath: opts.StorageFilePath})
	if err != nil {
		return nil, err
	}
	s, err := OpenSession(storage, padHash, party, opts.Logger)
	if err != nil {
		storage.Close()
		return nil, err
	}
	return s, nil
}

// OpenSession is NewSession on an already opened storage. Closing the session
// closes the storage.
func OpenSession(storage Storage, padHash, party string, log *zap.Logger) (*Session, error) {
	log = orNop(log)
	pad, err := LoadPad(storage, padHash)
	if err != nil {
		return nil, fmt.Errorf("loading pad %s: %w", padHash, err)
	}
	var conversation *OTPConversation
	history, err := storage.Get(conversationKey(padHash, party))
	switch {
	case err == nil:
		conversation, err = Restore(history, party, pad, WithLogger(log))
	case errors.Is(err, ErrNotFound):
		conversation, err = NewConversation(pad, party, WithLogger(log))
	}
	if err != nil {
		return nil, err
	}
	return &Session{
		storage:      storage,
		conversation: conversation,
		log:          log.With(zap.String("pad", padHash), zap.String("party", party)),
	}, nil
}

// Conversation exposes the underlying conversation.
func (s *Session) Conversation() *OTPConversation {
	return s.conversation
}

// Send encrypts message for the session party. History and envelope are
// persisted before the conversation advances; if that fails the cursor stays put.
func (s *Session) Send(message PlainMessage) (*EncryptedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	preview, err := s.conversation.EncryptedMessagePreview(message)
	if err != nil {
		return nil, err
	}
	if err := s.persist(append(s.conversation.EncryptedHistory(), preview), preview); err != nil {
		s.log.Error("persisting outgoing message failed", zap.Error(err))
		return nil, err
	}
	return s.conversation.AddPlainMessage(message)
}

// Receive decrypts and records an envelope from another party. Envelopes
// already stored are decrypted but not recorded again.
func (s *Session) Receive(message *EncryptedMessage) (PlainMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message == nil {
		return PlainMessage{}, fmt.Errorf("%w: no envelope provided", ErrCryptor)
	}
	id, err := EnvelopeID(message)
	if err != nil {
		return PlainMessage{}, err
	}
	pad := s.conversation.Pad()
	if _, err := s.storage.Get(envelopeKey(pad.Hash(), id)); err == nil {
		s.log.Debug("envelope already recorded", zap.String("envelope", id))
		return DecryptMessage(message, pad, true)
	} else if !errors.Is(err, ErrNotFound) {
		return PlainMessage{}, err
	}
	if _, err := DecryptMessage(message, pad, true); err != nil {
		return PlainMessage{}, err
	}
	if err := message.checkStride(pad); err != nil {
		return PlainMessage{}, err
	}
	if err := s.persist(append(s.conversation.EncryptedHistory(), message), message); err != nil {
		s.log.Error("persisting incoming message failed", zap.Error(err))
		return PlainMessage{}, err
	}
	return s.conversation.AddEncryptedMessage(message)
}

// ReceiveText parses the text form of an envelope and receives it.
func (s *Session) ReceiveText(text string) (PlainMessage, error) {
	m, err := ParseEncryptedMessageText(text, s.conversation.Pad())
	if err != nil {
		return PlainMessage{}, err
	}
	return s.Receive(m)
}

// History returns the decrypted conversation.
func (s *Session) History() ([]PlainMessage, error) {
	return s.conversation.PlainHistory()
}

// EncryptedHistory returns the recorded envelopes.
func (s *Session) EncryptedHistory() []*EncryptedMessage {
	return s.conversation.EncryptedHistory()
}

// Envelope looks up a stored envelope by the ID returned from EnvelopeID.
func (s *Session) Envelope(id string) (*EncryptedMessage, error) {
	c, err := cid.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid envelope id %q: %v", ErrNotFound, id, err)
	}
	b, err := s.storage.Get(envelopeKey(s.conversation.Pad().Hash(), c.String()))
	if err != nil {
		return nil, err
	}
	var m EncryptedMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Close gracefully closes the session and its storage.
func (s *Session) Close() error {
	return s.storage.Close()
}

// persist writes the full history and archives envelope under its ID.
func (s *Session) persist(history []*EncryptedMessage, envelope *EncryptedMessage) error {
	hash := s.conversation.Pad().Hash()
	id, err := EnvelopeID(envelope)
	if err != nil {
		return err
	}
	h, err := MarshalHistory(history)
	if err != nil {
		return err
	}
	// history first: the envelope marker is what deduplicates receives
	if err := s.storage.Set(conversationKey(hash, s.conversation.Party()), h); err != nil {
		return err
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if err := s.storage.Set(envelopeKey(hash, id), b); err != nil {
		return err
	}
	s.log.Debug("history persisted", zap.Int("messages", len(history)), zap.String("envelope", id))
	return nil
}
