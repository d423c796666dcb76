// Package cachestore is an in-process scs.Store on top of bigcache. Sessions
// live only as long as the process; use a database store to survive restarts
// or share sessions between instances.
package cachestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"
)

type hasher struct{}

func (hasher) Sum64(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Store implements scs.Store. Each entry is the session's expiry in unix
// nanoseconds followed by the encoded session data.
type Store struct {
	cache *bigcache.BigCache
	now   func() time.Time
}

// New returns a Store whose entries are evicted lifetime after they were last
// written. lifetime should match the session manager's Lifetime.
func New(ctx context.Context, lifetime time.Duration) (*Store, error) {
	cfg := bigcache.DefaultConfig(lifetime)
	cfg.Hasher = hasher{}
	cfg.CleanWindow = time.Minute
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}
	return &Store{cache: cache, now: time.Now}, nil
}

func (s *Store) Find(token string) ([]byte, bool, error) {
	entry, err := s.cache.Get(token)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	if len(entry) < 8 {
		return nil, false, nil
	}
	expiry := time.Unix(0, int64(binary.BigEndian.Uint64(entry[:8])))
	if !s.now().Before(expiry) {
		s.cache.Delete(token)
		return nil, false, nil
	}
	return entry[8:], true, nil
}

func (s *Store) Commit(token string, b []byte, expiry time.Time) error {
	entry := make([]byte, 8+len(b))
	binary.BigEndian.PutUint64(entry[:8], uint64(expiry.UnixNano()))
	copy(entry[8:], b)
	return s.cache.Set(token, entry)
}

func (s *Store) Delete(token string) error {
	err := s.cache.Delete(token)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Len returns the number of cached entries, expired ones included.
func (s *Store) Len() int {
	return s.cache.Len()
}

func (s *Store) Close() error {
	return s.cache.Close()
}
