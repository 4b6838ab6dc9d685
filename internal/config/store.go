package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"quick-translate/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore keeps settings in one JSON file. Saves replace the file
// atomically so a crash never leaves a truncated settings file behind.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads settings from disk or returns defaults when the file is missing.
// Keys absent from the file keep their default values.
func (s *JSONStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	var snake snakeSettings
	if err := json.Unmarshal(data, &snake); err != nil {
		return domain.Settings{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	snake.apply(&settings)
	return Normalize(settings), nil
}

// snakeSettings holds the snake_case keys written by the Tauri release of the
// app. Save only writes camelCase, so these disappear after the first save.
type snakeSettings struct {
	StylePreset  *string `json:"style_preset"`
	GlossaryPath *string `json:"glossary_path"`
	TimeoutMs    *int64  `json:"timeout_ms"`
	DoubleCopy   *struct {
		Enabled   *bool   `json:"enabled"`
		PasteMode *string `json:"paste_mode"`
		AutoCopy  *bool   `json:"auto_copy"`
		Shortcut  *string `json:"shortcut"`
	} `json:"double_copy"`
}

func (s snakeSettings) apply(settings *domain.Settings) {
	if s.StylePreset != nil {
		settings.StylePreset = *s.StylePreset
	}
	if s.GlossaryPath != nil {
		settings.GlossaryPath = *s.GlossaryPath
	}
	if s.TimeoutMs != nil {
		settings.TimeoutMs = *s.TimeoutMs
	}
	dc := s.DoubleCopy
	if dc == nil {
		return
	}
	if dc.Enabled != nil {
		settings.DoubleCopy.Enabled = *dc.Enabled
	}
	if dc.PasteMode != nil {
		settings.DoubleCopy.PasteMode = domain.PasteMode(*dc.PasteMode)
	}
	if dc.AutoCopy != nil {
		settings.DoubleCopy.AutoCopy = *dc.AutoCopy
	}
	if dc.Shortcut != nil {
		settings.DoubleCopy.Shortcut = *dc.Shortcut
	}
}

// Save writes settings as indented JSON, creating parent directories.
func (s *JSONStore) Save(settings domain.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
