package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(providersJSON), 0o600))

	reg := New(createTestLogger())
	raw, err := LoadProvidersFile(path)
	require.NoError(t, err)
	require.NoError(t, reg.Load(raw))

	w, err := NewWatcher(createTestLogger(), 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	var reloads atomic.Int32
	require.NoError(t, w.Add(path, func() error {
		reloads.Add(1)
		raw, err := LoadProvidersFile(path)
		if err != nil {
			return err
		}
		return reg.Reload(raw)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	updated := `{"vllm": {"baseUrl": "http://gpu:8000", "llama": {}}}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		_, _, err := reg.Resolve("vllm/llama")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(providersJSON), 0o600))

	w, err := NewWatcher(createTestLogger(), 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	var reloads atomic.Int32
	require.NoError(t, w.Add(path, func() error {
		reloads.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}
