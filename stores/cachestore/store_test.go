package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	s, err := New(context.Background(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, found, err := s.Find("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Commit("tok", []byte("data"), time.Now().Add(time.Minute)))
	b, found, err := s.Find("tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("data"), b)

	require.NoError(t, s.Delete("tok"))
	require.NoError(t, s.Delete("tok"))
	_, found, err = s.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreExpiry(t *testing.T) {
	s, err := New(context.Background(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Commit("tok", []byte("data"), now.Add(time.Minute)))

	_, found, _ := s.Find("tok")
	assert.True(t, found)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, found, err = s.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, s.Len())
}
