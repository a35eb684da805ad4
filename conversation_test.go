package onetimepad

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func fooBarPad(t *testing.T) *Pad {
	t.Helper()
	pad, err := NewPad(samplePadTime, []string{"Bob", "Alice"}, [][]byte{[]byte("FOO!"), []byte("BAR!")})
	require.NoError(t, err)
	return pad
}

func TestConversationExchange(t *testing.T) {
	pad := newTestPad(t, 16, 4, "Bob", "Alice")
	bob, err := NewConversation(pad, "Bob", WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	alice, err := NewConversation(pad, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 0, bob.NextChunkID())
	assert.Equal(t, 1, alice.NextChunkID())

	fromBob, err := bob.AddPlainMessage(newTestMessage(t, "bob", "mars", "hi!!"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, fromBob.ChunksUsed())
	assert.Equal(t, 2, fromBob.FollowUpChunkIndex())
	assert.Equal(t, 2, bob.NextChunkID())

	fromAlice, err := alice.AddPlainMessage(newTestMessage(t, "alice", "luna", "yo!!"))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fromAlice.ChunksUsed())
	assert.Equal(t, 3, fromAlice.FollowUpChunkIndex())

	received, err := alice.AddEncryptedMessage(fromBob)
	require.NoError(t, err)
	assert.Equal(t, "hi!!", string(received.Payload()))
	assert.Equal(t, "Bob", received.Author())
	assert.Equal(t, 3, alice.NextChunkID())

	received, err = bob.AddEncryptedMessage(fromAlice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", received.Party())
	assert.Equal(t, 2, bob.NextChunkID())

	history, err := alice.PlainHistory()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "yo!!", string(history[0].Payload()))
	assert.Equal(t, "hi!!", string(history[1].Payload()))
}

func TestConversationSmallestPad(t *testing.T) {
	pad := fooBarPad(t)
	bob, err := NewConversation(pad, "Bob")
	require.NoError(t, err)
	alice, err := NewConversation(pad, "Alice")
	require.NoError(t, err)

	m, err := bob.AddPlainMessage(newTestMessage(t, "bob", "mars", "hey"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.FollowUpChunkIndex())
	c, _ := m.Chop(0)
	assert.Equal(t, []byte{'h' ^ 'F', 'e' ^ 'O', 'y' ^ 'O', ' ' ^ '!'}, c)

	m, err = alice.AddPlainMessage(newTestMessage(t, "alice", "luna", "ok"))
	require.NoError(t, err)
	assert.Equal(t, 3, m.FollowUpChunkIndex())

	_, err = bob.AddPlainMessage(newTestMessage(t, "bob", "mars", "again"))
	assert.ErrorIs(t, err, ErrOutOfChunks)
	_, err = alice.AddPlainMessage(newTestMessage(t, "alice", "luna", "again"))
	assert.ErrorIs(t, err, ErrOutOfChunks)
}

func TestConversationNeverReusesChunks(t *testing.T) {
	pad := newTestPad(t, 300, 3, "alice@luna", "bob@mars", "carol@venus")
	conversations := make([]*OTPConversation, 0, 3)
	for _, party := range pad.Parties() {
		c, err := NewConversation(pad, party)
		require.NoError(t, err)
		conversations = append(conversations, c)
	}

	used := make(map[int]string)
	payloads := []string{"a", "four", "twelve bytes", "x", "seventeen bytes!!"}
	for round := 0; round < 4; round++ {
		for i, c := range conversations {
			author, machine, err := ParseParty(c.Party())
			require.NoError(t, err)
			m, err := c.AddPlainMessage(newTestMessage(t, author, machine, payloads[(round+i)%len(payloads)]))
			require.NoError(t, err)
			for _, index := range m.ChunksUsed() {
				assert.Equal(t, i, index%3, "chunk %d used by wrong party", index)
				prev, taken := used[index]
				assert.False(t, taken, "chunk %d used by %s and %s", index, prev, c.Party())
				used[index] = c.Party()
			}
			assert.Equal(t, i, c.NextChunkID()%3)
		}
	}
}

func TestConversationExhaustion(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pad := newTestPad(t, 2, 2, "alice@luna", "bob@mars")
	c, err := NewConversation(pad, "alice@luna", WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = c.AddPlainMessage(newTestMessage(t, "alice", "luna", "ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.NextChunkID())

	_, err = c.AddPlainMessage(newTestMessage(t, "alice", "luna", "cd"))
	assert.ErrorIs(t, err, ErrOutOfChunks)
	assert.Equal(t, 2, c.NextChunkID())
	assert.Len(t, c.EncryptedHistory(), 1)

	entries := logs.FilterMessage("pad exhausted").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["next_chunk"])
}

func TestEncryptedMessagePreviewDoesNotAdvance(t *testing.T) {
	pad := newTestPad(t, 16, 4, "alice@luna", "bob@mars")
	c, err := NewConversation(pad, "bob@mars")
	require.NoError(t, err)
	msg := newTestMessage(t, "bob", "mars", "preview me")

	preview, err := c.EncryptedMessagePreview(msg)
	require.NoError(t, err)
	again, err := c.EncryptedMessagePreview(msg)
	require.NoError(t, err)
	assert.Equal(t, preview.SerializeToText(), again.SerializeToText())
	assert.Equal(t, 1, c.NextChunkID())
	assert.Empty(t, c.EncryptedHistory())

	added, err := c.AddPlainMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, preview.SerializeToText(), added.SerializeToText())
	assert.Equal(t, preview.FollowUpChunkIndex(), c.NextChunkID())
}

func TestAddEncryptedMessageRejectsForeignPad(t *testing.T) {
	pad := newTestPad(t, 8, 4, "alice@luna", "bob@mars")
	other, err := NewPad("2030-01-01--00:00:00", []string{"alice@luna", "bob@mars"}, [][]byte{[]byte("abcd"), []byte("efgh")})
	require.NoError(t, err)

	foreign, err := EncryptMessage(newTestMessage(t, "alice", "luna", "hi"), other, 0)
	require.NoError(t, err)

	c, err := NewConversation(pad, "bob@mars")
	require.NoError(t, err)
	_, err = c.AddEncryptedMessage(foreign)
	assert.ErrorIs(t, err, ErrOneTimePadMismatch)
	assert.Empty(t, c.EncryptedHistory())
}

func TestRestoreContinuesWhereItStopped(t *testing.T) {
	pad := newTestPad(t, 64, 4, "alice@luna", "bob@mars")
	alice, err := NewConversation(pad, "alice@luna")
	require.NoError(t, err)
	bob, err := NewConversation(pad, "bob@mars")
	require.NoError(t, err)

	for _, text := range []string{"one", "two and more", "three"} {
		m, err := alice.AddPlainMessage(newTestMessage(t, "alice", "luna", text))
		require.NoError(t, err)
		_, err = bob.AddEncryptedMessage(m)
		require.NoError(t, err)
	}
	reply, err := bob.AddPlainMessage(newTestMessage(t, "bob", "mars", "ack"))
	require.NoError(t, err)
	_, err = alice.AddEncryptedMessage(reply)
	require.NoError(t, err)

	serialized, err := alice.SerializeEncryptedMessagesToJSON()
	require.NoError(t, err)

	restored, err := Restore(serialized, "alice@luna", pad)
	require.NoError(t, err)
	assert.Equal(t, alice.NextChunkID(), restored.NextChunkID())
	assert.Equal(t, 12, restored.NextChunkID())

	reserialized, err := restored.SerializeEncryptedMessagesToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(serialized), string(reserialized))

	original, err := alice.PlainHistory()
	require.NoError(t, err)
	plain, err := restored.PlainHistory()
	require.NoError(t, err)
	require.Len(t, plain, len(original))
	for i := range plain {
		assert.True(t, original[i].Equal(plain[i]))
	}

	// the same history restored for the other party yields its own cursor
	asBob, err := Restore(serialized, "bob@mars", pad)
	require.NoError(t, err)
	assert.Equal(t, bob.NextChunkID(), asBob.NextChunkID())
}

func TestRestoreEmptyHistory(t *testing.T) {
	pad := newTestPad(t, 8, 4, "alice@luna", "bob@mars")
	c, err := Restore([]byte("[]"), "bob@mars", pad)
	require.NoError(t, err)
	assert.Equal(t, 1, c.NextChunkID())

	serialized, err := c.SerializeEncryptedMessagesToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(serialized))
}

func TestRestoreErrors(t *testing.T) {
	pad := newTestPad(t, 8, 4, "alice@luna", "bob@mars")
	other, err := NewPad("2030-01-01--00:00:00", []string{"alice@luna", "bob@mars"}, [][]byte{[]byte("abcd"), []byte("efgh")})
	require.NoError(t, err)

	c, err := NewConversation(other, "alice@luna")
	require.NoError(t, err)
	_, err = c.AddPlainMessage(newTestMessage(t, "alice", "luna", "hi"))
	require.NoError(t, err)
	foreign, err := c.SerializeEncryptedMessagesToJSON()
	require.NoError(t, err)

	_, err = Restore(foreign, "alice@luna", pad)
	assert.ErrorIs(t, err, ErrOneTimePadMismatch)

	_, err = Restore([]byte("[]"), "mallory@pluto", pad)
	assert.ErrorIs(t, err, ErrInvalidParty)

	_, err = Restore([]byte("{not json"), "alice@luna", pad)
	assert.Error(t, err)

	_, err = NewConversation(pad, "mallory@pluto")
	assert.ErrorIs(t, err, ErrInvalidParty)
}

func TestRestoreWithSerializedPad(t *testing.T) {
	pad := newTestPad(t, 8, 4, "alice@luna", "bob@mars")
	serializedPad, err := pad.MarshalJSON()
	require.NoError(t, err)

	c, err := NewConversation(pad, "bob@mars")
	require.NoError(t, err)
	_, err = c.AddPlainMessage(newTestMessage(t, "bob", "mars", "hello"))
	require.NoError(t, err)
	history, err := c.SerializeEncryptedMessagesToJSON()
	require.NoError(t, err)

	restored, err := RestoreWithSerializedPad(history, "bob@mars", serializedPad)
	require.NoError(t, err)
	assert.True(t, pad.Equal(restored.Pad()))
	assert.Equal(t, 5, restored.NextChunkID())
}

func TestPlainHistoryAbortsOnForeignEntry(t *testing.T) {
	pad := newTestPad(t, 8, 4, "alice@luna", "bob@mars")
	other, err := NewPad("2030-01-01--00:00:00", []string{"alice@luna", "bob@mars"}, [][]byte{[]byte("abcd"), []byte("efgh")})
	require.NoError(t, err)

	own, err := EncryptMessage(newTestMessage(t, "alice", "luna", "mine"), pad, 0)
	require.NoError(t, err)
	foreign, err := EncryptMessage(newTestMessage(t, "bob", "mars", "nope"), other, 1)
	require.NoError(t, err)
	serialized, err := MarshalHistory([]*EncryptedMessage{own, foreign})
	require.NoError(t, err)

	c, err := Restore(serialized, "alice@luna", pad)
	require.NoError(t, err)
	_, err = c.PlainHistory()
	assert.ErrorIs(t, err, ErrOneTimePadMismatch)
}

func TestConcurrentAddPlainMessage(t *testing.T) {
	pad := newTestPad(t, 400, 4, "alice@luna", "bob@mars")
	c, err := NewConversation(pad, "alice@luna")
	require.NoError(t, err)

	const senders = 50
	msg := newTestMessage(t, "alice", "luna", "12345")
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*EncryptedMessage
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.AddPlainMessage(msg)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			results = append(results, m)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, results, senders)
	seen := make(map[int]bool)
	for _, m := range results {
		for _, index := range m.ChunksUsed() {
			assert.False(t, seen[index], "chunk %d reused", index)
			assert.Equal(t, 0, index%2)
			seen[index] = true
		}
	}
	assert.Equal(t, senders*4, c.NextChunkID())
	assert.Len(t, c.EncryptedHistory(), senders)
}

func TestNextChunkIndex(t *testing.T) {
	pad := newTestPad(t, 32, 2, "alice@luna", "bob@mars")
	a1, err := EncryptMessage(newTestMessage(t, "alice", "luna", "abc"), pad, 0)
	require.NoError(t, err)
	b1, err := EncryptMessage(newTestMessage(t, "bob", "mars", "x"), pad, 1)
	require.NoError(t, err)
	a2, err := EncryptMessage(newTestMessage(t, "alice", "luna", "d"), pad, a1.FollowUpChunkIndex())
	require.NoError(t, err)

	history := []*EncryptedMessage{a1, b1, a2}
	next, err := NextChunkIndex(history, "alice@luna", pad)
	require.NoError(t, err)
	assert.Equal(t, 6, next)

	next, err = NextChunkIndex(history, "bob@mars", pad)
	require.NoError(t, err)
	assert.Equal(t, 3, next)

	next, err = NextChunkIndex(nil, "bob@mars", pad)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	_, err = NextChunkIndex(history, "carol@venus", pad)
	assert.ErrorIs(t, err, ErrInvalidParty)
}

// envelopeJSON builds a stored envelope for pad by hand, bypassing the
// constructor's stride bookkeeping.
func envelopeJSON(pad *Pad, followUp int, indices ...int) string {
	chops := make([]string, len(indices))
	for i, index := range indices {
		chops[i] = fmt.Sprintf(`{"index":%d,"data":"%s"}`, index, strings.Repeat("AB", pad.ChunkSize()))
	}
	return fmt.Sprintf(`{"otpHash":"%s","chops":[%s],"followUpChunkIndex":%d,"chunkIndexDigits":%d}`,
		pad.Hash(), strings.Join(chops, ","), followUp, len(strconv.Itoa(pad.ChunkAmount())))
}

func TestRestoreRejectsBrokenStride(t *testing.T) {
	pad := newTestPad(t, 16, 2, "bob@mars", "alice@luna")

	for name, entry := range map[string]string{
		"follow up lands on other party": envelopeJSON(pad, 1, 0),
		"chops skip a party":             envelopeJSON(pad, 9, 0, 3, 6),
		"follow up skips a round":        envelopeJSON(pad, 6, 2),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Restore([]byte("["+entry+"]"), "bob@mars", pad)
			assert.ErrorIs(t, err, ErrCryptor)

			var m EncryptedMessage
			require.NoError(t, json.Unmarshal([]byte(entry), &m))
			_, err = NextChunkIndex([]*EncryptedMessage{&m}, "bob@mars", pad)
			assert.ErrorIs(t, err, ErrCryptor)

			c, err := NewConversation(pad, "alice@luna")
			require.NoError(t, err)
			_, err = c.AddEncryptedMessage(&m)
			assert.ErrorIs(t, err, ErrCryptor)
			assert.Empty(t, c.EncryptedHistory())
		})
	}

	c, err := Restore([]byte("["+envelopeJSON(pad, 4, 0, 2)+"]"), "bob@mars", pad)
	require.NoError(t, err)
	assert.Equal(t, 4, c.NextChunkID())
	m, err := c.AddPlainMessage(newTestMessage(t, "bob", "mars", "hi"))
	require.NoError(t, err)
	assert.Equal(t, []int{4}, m.ChunksUsed())
}

func TestAddEncryptedMessageNil(t *testing.T) {
	pad := newTestPad(t, 8, 4, "alice@luna", "bob@mars")
	c, err := NewConversation(pad, "bob@mars")
	require.NoError(t, err)
	_, err = c.AddEncryptedMessage(nil)
	assert.ErrorIs(t, err, ErrCryptor)
	assert.Empty(t, c.EncryptedHistory())
}
