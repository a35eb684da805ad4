package onetimepad

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
)

const (
	// DefaultChunkSize is the number of bytes per chunk. Keeping it below 80
	// keeps the text form of a chop on one short line for mail transports.
	DefaultChunkSize = 64
	// DefaultChunkAmount is the number of chunks in a generated pad.
	DefaultChunkAmount = 16 * 1024
	// DefaultPadFileName is the file name suggested for generated pads.
	DefaultPadFileName = "otp-XXX.json"
)

var partyPattern = regexp.MustCompile(`^[a-zA-Z-]+@[a-zA-Z-]+$`)

// ValidateParties checks that there is at least one party and that every
// party follows the name@machine convention.
func ValidateParties(parties []string) error {
	if len(parties) == 0 {
		return fmt.Errorf("%w: at least one name@machine party is required", ErrInvalidParty)
	}
	for _, p := range parties {
		if !partyPattern.MatchString(p) {
			return fmt.Errorf("%w: %q does not follow the name@machine convention", ErrInvalidParty, p)
		}
	}
	return nil
}

// GeneratePad creates a pad of DefaultChunkAmount chunks of DefaultChunkSize
// bytes for parties.
func GeneratePad(parties []string) (*Pad, error) {
	return GeneratePadWithSize(DefaultChunkAmount, DefaultChunkSize, parties)
}

// GeneratePadWithSize creates a pad filled from crypto/rand and stamps it
// with the current time.
func GeneratePadWithSize(chunkAmount, chunkSize int, parties []string) (*Pad, error) {
	if err := ValidateParties(parties); err != nil {
		return nil, err
	}
	if chunkAmount <= 0 || chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk amount %d and chunk size %d must be positive", ErrInvalidPad, chunkAmount, chunkSize)
	}
	chunks := make([][]byte, chunkAmount)
	for i := range chunks {
		c, err := genRandBytes(chunkSize)
		if err != nil {
			return nil, err
		}
		chunks[i] = c
	}
	return NewPad(now().Format(TimestampLayout), parties, chunks)
}

// genRandBytes takes a length of l and returns a byte slice of random data
func genRandBytes(l int) ([]byte, error) {
	b := make([]byte, l)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// WritePadFile stores the JSON form of pad at path. Existing files are never
// overwritten.
func WritePadFile(pad *Pad, path string) error {
	b, err := json.Marshal(pad)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("pad file %s already exists: %w", path, err)
		}
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadPadFile loads a pad written by WritePadFile.
func ReadPadFile(path string) (*Pad, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalPad(b)
}
