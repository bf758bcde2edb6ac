package storage

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	s := New(t.TempDir())

	_, ok, err := s.Get("theme-watcher")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("theme-watcher", "dark"))
	require.NoError(t, s.Set("other", "x"))

	v, ok, err := s.Get("theme-watcher")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "theme-watcher"}, keys)

	require.NoError(t, s.Remove("other"))
	require.NoError(t, s.Remove("never-set"))
	keys, err = s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"theme-watcher"}, keys)
}

func TestStore_SharedBetweenInstances(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	b := New(dir)

	require.NoError(t, a.Set("theme-watcher", "light"))

	v, ok, err := b.Get("theme-watcher")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)
}

func TestStore_CorruptFile(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	_, _, err := s.Get("theme-watcher")
	assert.Error(t, err)
	assert.Error(t, s.Set("theme-watcher", "dark"))
}

func TestStore_EmptyFile(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, os.WriteFile(s.Path(), nil, 0o644))

	_, ok, err := s.Get("theme-watcher")
	require.NoError(t, err)
	assert.False(t, ok)
}

type recorder struct {
	mu     sync.Mutex
	events map[string]string
	count  int
}

func (r *recorder) record(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string]string)
	}
	r.events[key] = value
	r.count++
}

func (r *recorder) get(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.events[key]
	return v, ok
}

func TestStore_WatchReportsOtherWriters(t *testing.T) {
	dir := t.TempDir()
	watcher := New(dir)
	writer := New(dir)

	rec := &recorder{}
	stop := watcher.Watch(rec.record)
	defer stop()

	require.NoError(t, writer.Set("theme-watcher", "dark"))
	require.Eventually(t, func() bool {
		v, ok := rec.get("theme-watcher")
		return ok && v == "dark"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Remove("theme-watcher"))
	require.Eventually(t, func() bool {
		v, ok := rec.get("theme-watcher")
		return ok && v == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStore_WatchIgnoresOwnWrites(t *testing.T) {
	s := New(t.TempDir())

	rec := &recorder{}
	stop := s.Watch(rec.record)
	defer stop()

	require.NoError(t, s.Set("theme-watcher", "dark"))
	time.Sleep(100 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Zero(t, rec.count)
}

func TestStore_WatchStopIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	stop := s.Watch(func(string, string) {})
	stop()
	assert.NotPanics(t, stop)
}
