package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestLoad_EmptyStoreReturnsDefaults(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestSaveLoad(t *testing.T) {
	store := openTestStore(t)

	s := Default()
	s.Model = "gpt-4"
	s.APIKey = "sk-test"
	s.EditFormat = "diff"
	s.Lazy = true
	s.Streaming = false
	require.NoError(t, store.Save(s))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSave_EmptyAPIKeyKeepsStoredKey(t *testing.T) {
	store := openTestStore(t)

	s := Default()
	s.APIKey = "sk-keep"
	require.NoError(t, store.Save(s))

	s.APIKey = ""
	s.Model = "claude-3-5-sonnet"
	require.NoError(t, store.Save(s))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-keep", got.APIKey)
	assert.Equal(t, "claude-3-5-sonnet", got.Model)
}

func TestGetPut(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get(KeyModel)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(KeyModel, "gpt-4"))
	require.NoError(t, store.Put(KeyModel, "gpt-4o-mini"))

	v, ok, err := store.Get(KeyModel)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", v)
}

func TestLoad_InvalidBoolFallsBackToDefault(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Put(KeyStreaming, "maybe"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.True(t, got.Streaming)
}

func TestSettingsSet(t *testing.T) {
	s := Default()
	require.NoError(t, s.Set("model", "gpt-4"))
	require.NoError(t, s.Set(KeyLazy, "true"))
	require.NoError(t, s.Set("api_key", "sk-1"))
	assert.Equal(t, "gpt-4", s.Model)
	assert.True(t, s.Lazy)
	assert.Equal(t, "sk-1", s.APIKey)

	assert.Error(t, s.Set("lazy", "sometimes"))
	assert.Error(t, s.Set("colour", "blue"))
}

func TestModelConfigSnapshot(t *testing.T) {
	s := Default()
	s.WeakModel = "gpt-4o-mini"
	cfg := s.ModelConfig()

	s.EditFormat = "udiff"
	assert.Equal(t, "whole", cfg.EditFormat)
	assert.Equal(t, "gpt-4o-mini", cfg.WeakModelName)
	assert.True(t, cfg.UseSystemPrompt)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 12)
	assert.Contains(t, keys, KeyAPIKey)
}
