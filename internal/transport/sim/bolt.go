package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	nvmemBucket = []byte("nvmem")
	profilesKey = []byte("profiles")
	aesKeyKey   = []byte("aes_key")
)

// BoltStore is a Store backed by a bbolt file, so profiles and the AES key
// survive a restart of the simulator.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open nvmem store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nvmemBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize nvmem store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Profiles returns the stored profiles.
func (s *BoltStore) Profiles() ([]Profile, error) {
	var profiles []Profile
	if err := s.getJSON(profilesKey, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// SaveProfiles replaces the stored profiles.
func (s *BoltStore) SaveProfiles(profiles []Profile) error {
	return s.setJSON(profilesKey, profiles)
}

// AESKey returns the stored key, or nil.
func (s *BoltStore) AESKey() ([]byte, error) {
	var key []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(nvmemBucket).Get(aesKeyKey); v != nil {
			key = append([]byte(nil), v...)
		}
		return nil
	})
	return key, err
}

// SaveAESKey stores key.
func (s *BoltStore) SaveAESKey(key []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(nvmemBucket).Put(aesKeyKey, key)
	})
}

// Close closes the underlying file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) setJSON(key []byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(nvmemBucket).Put(key, payload)
	})
}

func (s *BoltStore) getJSON(key []byte, v any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(nvmemBucket).Get(key)
		if data == nil || bytes.Equal(data, []byte("null")) {
			return nil
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("could not unmarshal %s: %w", key, err)
		}
		return nil
	})
}
