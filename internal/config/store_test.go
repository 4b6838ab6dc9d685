package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"quick-translate/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	require.Equal(t, "plamo", cfg.Engine)
	require.Equal(t, "4bit", cfg.Plamo.Precision)
	require.Equal(t, int64(60_000), cfg.TimeoutMs)
	require.True(t, cfg.DoubleCopy.Enabled)
	require.Equal(t, domain.PasteModePopup, cfg.DoubleCopy.PasteMode)
	require.Equal(t, "cmd-shift-c", cfg.DoubleCopy.Shortcut)
	require.Equal(t, domain.HistoryBackendJSONL, cfg.History.Backend)
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), got)
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := DefaultSettings()
	want.Plamo.BinPath = "/opt/plamo/bin/plamo-translate"
	want.GlossaryPath = "/tmp/glossary.csv"
	want.DoubleCopy.PasteMode = domain.PasteModeClipboard
	want.DoubleCopy.AutoCopy = true
	want.History.Backend = domain.HistoryBackendSQLite

	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestJSONStoreLoadPartialFileKeepsDefaults checks that missing keys fall back.
func TestJSONStoreLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"doubleCopy":{"enabled":false,"pasteMode":"bogus"}}`), 0o644))

	got, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	require.False(t, got.DoubleCopy.Enabled)
	require.Equal(t, domain.PasteModePopup, got.DoubleCopy.PasteMode)
	require.Equal(t, "cmd-shift-c", got.DoubleCopy.Shortcut)
	require.Equal(t, int64(60_000), got.TimeoutMs)
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not-json"), 0o644))

	_, err := NewJSONStore(path).Load()
	require.Error(t, err)
}

// TestJSONStoreSaveLeavesNoTempFiles checks the atomic replace cleans up after itself.
func TestJSONStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "settings.json"))

	require.NoError(t, store.Save(DefaultSettings()))
	require.NoError(t, store.Save(DefaultSettings()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "settings.json", entries[0].Name())
}

// TestJSONStoreLoadSnakeCaseFile reads settings written by the Tauri release.
func TestJSONStoreLoadSnakeCaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	legacy := `{
  "engine": "plamo",
  "plamo": {"precision": "8bit", "server": false, "binPath": "/opt/plamo-translate"},
  "style_preset": "casual",
  "glossary_path": null,
  "timeout_ms": 30000,
  "double_copy": {"enabled": false, "paste_mode": "clipboard", "auto_copy": true, "shortcut": "ctrl-shift-t"}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	got, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	require.Equal(t, "8bit", got.Plamo.Precision)
	require.Equal(t, "/opt/plamo-translate", got.Plamo.BinPath)
	require.Equal(t, "casual", got.StylePreset)
	require.Empty(t, got.GlossaryPath)
	require.Equal(t, int64(30_000), got.TimeoutMs)
	require.False(t, got.DoubleCopy.Enabled)
	require.Equal(t, domain.PasteModeClipboard, got.DoubleCopy.PasteMode)
	require.True(t, got.DoubleCopy.AutoCopy)
	require.Equal(t, "ctrl-shift-t", got.DoubleCopy.Shortcut)
}
