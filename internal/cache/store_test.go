package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

var _ Cache = (*Store)(nil)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "tracker.db"), ttl, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openStore(t, 0)

	require.NoError(t, s.Put(ctx, "versions", "PROJ", payload{Name: "a", Count: 2}))

	var got payload
	found, err := s.Get(ctx, "versions", "PROJ", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	found, err = s.Get(ctx, "versions", "OTHER", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = s.Get(ctx, "missing-bucket", "PROJ", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetReadsThroughToDisk(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Put(ctx, "tickets", "PROJ", []string{"PROJ-1"}))
	s.memCache.Flush()

	var got []string
	found, err := s.Get(ctx, "tickets", "PROJ", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"PROJ-1"}, got)
}

func TestExpiredEntriesMiss(t *testing.T) {
	s := openStore(t, time.Hour)
	now := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "tickets", "PROJ", []string{"PROJ-1"}))
	s.memCache.Flush()

	now = now.Add(2 * time.Hour)
	var got []string
	found, err := s.Get(ctx, "tickets", "PROJ", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClear(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Put(ctx, "tickets", "PROJ", 1))
	require.NoError(t, s.Clear())

	var got int
	found, err := s.Get(ctx, "tickets", "PROJ", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNilStore(t *testing.T) {
	var s *Store
	var got int
	found, err := s.Get(ctx, "a", "b", &got)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, s.Put(ctx, "a", "b", 1))
	assert.NoError(t, s.Close())
}
