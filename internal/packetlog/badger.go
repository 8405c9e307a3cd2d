// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package packetlog keeps a short-lived record of inspected packets in
// BadgerDB. Entries expire via TTL; the log feeds the anomaly scorer's
// training baseline and exists for operator forensics, not durability.
package packetlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/metrics"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// Key layout: packet:<unix-nanos>:<packet-id>. The timestamp prefix keeps
// iteration in arrival order and makes reverse iteration yield newest
// entries first.
const packetKeyPrefix = "packet:"

// ErrNotFound is returned when a packet id is not in the log, either
// because it was never written or because its TTL expired.
var ErrNotFound = errors.New("packet not found")

// Store is a TTL-bounded packet log backed by BadgerDB.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates the packet log at path.
func Open(path string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open packet log: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{db: db, ttl: ttl}, nil
}

// NewStore wraps an already-open BadgerDB, used by tests with in-memory
// databases.
func NewStore(db *badger.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{db: db, ttl: ttl}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one inspected packet with the store's TTL.
func (s *Store) Append(packet *models.Packet) error {
	payload, err := json.Marshal(packet)
	if err != nil {
		metrics.PacketLogErrors.Inc()
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	key := fmt.Sprintf("%s%020d:%s", packetKeyPrefix, time.Now().UnixNano(), packet.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		metrics.PacketLogErrors.Inc()
		return fmt.Errorf("failed to write packet log entry: %w", err)
	}

	metrics.PacketLogWrites.Inc()
	return nil
}

// RecentPackets returns up to limit of the most recently logged packets,
// newest first. It satisfies the anomaly trainer's sample source.
func (s *Store) RecentPackets(ctx context.Context, limit int) ([]*models.Packet, error) {
	if limit <= 0 {
		limit = 1000
	}

	var packets []*models.Packet
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(packetKeyPrefix)
		// Reverse iteration seeks to the end of the prefix range first.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(packets) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var p models.Packet
				if err := json.Unmarshal(val, &p); err != nil {
					logging.Warn().Err(err).Msg("skipping corrupt packet log entry")
					return nil
				}
				packets = append(packets, &p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read packet log: %w", err)
	}

	return packets, nil
}

// PacketByID finds the most recent log entry for the given packet id.
// Keys only embed the id as a suffix, so this is a reverse scan; the log
// is small and TTL-bounded, which keeps the scan acceptable for the
// operator forensics path it serves.
func (s *Store) PacketByID(ctx context.Context, id string) (*models.Packet, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	var found *models.Packet
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(packetKeyPrefix)
		seek := append(append([]byte{}, prefix...), 0xFF)
		suffix := ":" + id
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !strings.HasSuffix(string(it.Item().Key()), suffix) {
				continue
			}
			return it.Item().Value(func(val []byte) error {
				var p models.Packet
				if err := json.Unmarshal(val, &p); err != nil {
					return fmt.Errorf("corrupt packet log entry: %w", err)
				}
				found = &p
				return nil
			})
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Count returns the number of live entries, for status endpoints.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(packetKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count packet log entries: %w", err)
	}
	return count, nil
}

// Serve runs Badger's value log garbage collection on a fixed cadence
// until the context is done. Shaped for supervision tree membership.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to reclaim.
			if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				logging.Warn().Err(err).Msg("packet log value GC failed")
			}
		}
	}
}
