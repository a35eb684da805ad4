package onetimepad

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// StorageEngine type for enum
type StorageEngine int

const (
	// BoltEngine is the only supported StorageEngine
	BoltEngine StorageEngine = iota
)

const (
	// DefaultStorageEngine is used if no engine is set in the storage options
	DefaultStorageEngine = BoltEngine
	// DefaultBoltFilePath is the default path and file name for BoltDB storage
	DefaultBoltFilePath = "otpchat.boltdb"
	// DefaultTLB is the name of the top level bucket for BoltDB
	DefaultTLB = "otpchat"

	storageVersionKey = "storage-version"
	storageVersion    = "1"

	padKeyPrefix          = "pads/"
	conversationKeyPrefix = "conversations/"
	envelopeKeyPrefix     = "envelopes/"
)

// Storage is the primary interface for interacting with the KV store. Pads,
// conversation histories and received envelopes are kept here.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	List(prefix string) ([]string, error)
	Close() error
}

// StorageOptions are used to pass in initialization settings
type StorageOptions struct {
	Engine   StorageEngine
	FilePath string
}

// NewStorage initiates a new storage Interface
func NewStorage(opts StorageOptions) (Storage, error) {
	switch opts.Engine {
	case BoltEngine:
		s, err := NewBoltStorage(opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("invalid engine type")
	}
}

// NewBoltStorage takes StorageOptions and returns a BoltDB backed Storage.
// The top level bucket and the storage version marker are created on first use.
func NewBoltStorage(opts StorageOptions) (*BoltStorage, error) {
	fp := DefaultBoltFilePath
	if opts.FilePath != "" {
		fp = opts.FilePath
	}
	db, err := bolt.Open(fp, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(DefaultTLB))
		if err != nil {
			return fmt.Errorf("error creating bucket: %s", err)
		}
		v := b.Get([]byte(storageVersionKey))
		if v == nil {
			return b.Put([]byte(storageVersionKey), []byte(storageVersion))
		}
		if string(v) != storageVersion {
			return fmt.Errorf("unsupported storage version %q", v)
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{DB: db, TLB: DefaultTLB}, nil
}

// BoltStorage conforms to the Storage interface for BoltDB. DB is a reference
// to a boltDB instance and TLB stands for "top level bucket"
type BoltStorage struct {
	DB  *bolt.DB
	TLB string
}

// Get returns a copy of the value stored at key, or ErrNotFound.
func (s *BoltStorage) Get(key string) (value []byte, err error) {
	err = s.DB.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(s.TLB)).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		// bolt values are only valid inside the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

// Set creates or replaces the value at key.
func (s *BoltStorage) Set(key string, value []byte) error {
	return s.DB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.TLB)).Put([]byte(key), value)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *BoltStorage) Delete(key string) error {
	return s.DB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.TLB)).Delete([]byte(key))
	})
}

// List returns all keys starting with prefix, in byte order.
func (s *BoltStorage) List(prefix string) (keys []string, err error) {
	p := []byte(prefix)
	err = s.DB.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(s.TLB)).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Close is used to close the Bolt DB engine and returns an error
func (s *BoltStorage) Close() error {
	return s.DB.Close()
}

func padKey(hash string) string {
	return padKeyPrefix + hash
}

func conversationKey(hash, party string) string {
	return conversationKeyPrefix + hash + "/" + party
}

func envelopeKey(hash, id string) string {
	return envelopeKeyPrefix + hash + "/" + id
}
