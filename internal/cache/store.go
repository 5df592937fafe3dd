// Package cache keeps issue-tracker responses between runs so that reference
// projects are not re-fetched for every cold start.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// Cache is a keyed JSON value cache. Keys are grouped in buckets.
type Cache interface {
	Get(ctx context.Context, bucket, key string, v interface{}) (bool, error)
	Put(ctx context.Context, bucket, key string, v interface{}) error
	Close() error
}

// entry is the on-disk envelope of a cached value
type entry struct {
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

// Store is a local two-level cache: an in-memory layer in front of a bbolt file.
// Entries older than the TTL are ignored; a zero TTL keeps entries forever.
type Store struct {
	db       *bolt.DB
	memCache *cache.Cache
	ttl      time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
}

// Open opens or creates the cache file at path
func Open(path string, ttl time.Duration, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}

	memTTL := ttl
	if memTTL <= 0 {
		memTTL = cache.NoExpiration
	}

	return &Store{
		db:       db,
		memCache: cache.New(memTTL, 10*time.Minute),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Close closes the cache file
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get decodes the value stored under bucket/key into v. It reports false
// when the key is missing or expired. A nil Store always misses.
func (s *Store) Get(ctx context.Context, bucket, key string, v interface{}) (bool, error) {
	if s == nil {
		return false, nil
	}

	memKey := bucket + "/" + key
	if cached, found := s.memCache.Get(memKey); found {
		return true, json.Unmarshal(cached.([]byte), v)
	}

	var e entry
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return false, fmt.Errorf("read cache %s: %w", memKey, err)
	}
	if !found {
		return false, nil
	}

	if s.ttl > 0 && s.now().Sub(e.StoredAt) > s.ttl {
		s.logger.WithField("key", memKey).Debug("cache entry expired")
		return false, nil
	}

	if err := json.Unmarshal(e.Data, v); err != nil {
		return false, fmt.Errorf("decode cache %s: %w", memKey, err)
	}
	s.memCache.Set(memKey, []byte(e.Data), cache.DefaultExpiration)
	return true, nil
}

// Put stores v under bucket/key. A nil Store discards the value.
func (s *Store) Put(ctx context.Context, bucket, key string, v interface{}) error {
	if s == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	raw, err := json.Marshal(entry{StoredAt: s.now(), Data: data})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("write cache %s/%s: %w", bucket, key, err)
	}

	s.memCache.Set(bucket+"/"+key, data, cache.DefaultExpiration)
	return nil
}

// Clear drops every bucket and the in-memory layer
func (s *Store) Clear() error {
	if s == nil {
		return nil
	}
	s.memCache.Flush()
	return s.db.Update(func(tx *bolt.Tx) error {
		var names [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		}); err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
