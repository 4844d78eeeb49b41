package users

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_FirstTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.FirstTime(ctx, "user1", "alice")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.FirstTime(ctx, "user1", "alice")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := s.FirstTime(ctx, "user2", "bob")
	require.NoError(t, err)
	assert.True(t, other)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	ctx := context.Background()

	s, err := OpenStore(path)
	require.NoError(t, err)
	_, err = s.FirstTime(ctx, "user1", "alice")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := OpenStore(path)
	require.NoError(t, err)
	defer s2.Close()

	known, err := s2.Known(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, known)

	first, err := s2.FirstTime(ctx, "user1", "alice")
	require.NoError(t, err)
	assert.False(t, first)
}

func TestStore_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "users.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	s.Close()
}

func TestStore_ConcurrentFirstTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Many concurrent messages from one new user produce exactly one first.
	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := s.FirstTime(ctx, "user1", "alice")
			if err != nil {
				t.Error(err)
				return
			}
			if first {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load())
}

func TestStore_Known(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	known, err := s.Known(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, known)
}
