// Package boltstore is the embedded checkpoint store backing spec.md's
// §4.12 restart-recovery enrichment: PortAllocator marks and per-channel
// link counts, persisted across host restarts so a relaunch doesn't
// immediately hand out a port another process instance still holds.
// Structurally this is channeldb.DB shrunk to two buckets -- Open/
// createChannelDB's "create on first use, else open" idiom and the
// bucket-per-concern layout both come straight from channeldb/db.go,
// with boltdb/bolt swapped for its actively maintained fork,
// go.etcd.io/bbolt.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

const (
	dbFileName       = "racecomms-checkpoint.db"
	dbFilePermission = 0600
)

var (
	portsBucket    = []byte("ports")
	numLinksBucket = []byte("numLinks")
)

// Store is the checkpoint database for one host/persona instance.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the checkpoint db rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(dir, dbFileName), dbFilePermission, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(portsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(numLinksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// SaveInUsePorts checkpoints the full set of ports a channel's allocator
// currently considers in-use.
func (s *Store) SaveInUsePorts(channelGid string, ports []int) error {
	body, err := json.Marshal(ports)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(portsBucket).Put([]byte(channelGid), body)
	})
}

// LoadInUsePorts recovers the last checkpointed in-use port set for
// channelGid. ok is false if nothing was ever checkpointed.
func (s *Store) LoadInUsePorts(channelGid string) (ports []int, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(portsBucket).Get([]byte(channelGid))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &ports)
	})
	return ports, ok, err
}

// SaveNumLinks checkpoints a channel's live link count.
func (s *Store) SaveNumLinks(channelGid string, n int) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(numLinksBucket).Put([]byte(channelGid), buf)
	})
}

// LoadNumLinks recovers the last checkpointed link count for channelGid.
func (s *Store) LoadNumLinks(channelGid string) (n int, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(numLinksBucket).Get([]byte(channelGid))
		if v == nil || len(v) != 8 {
			return nil
		}
		ok = true
		n = int(binary.BigEndian.Uint64(v))
		return nil
	})
	return n, ok, err
}
