package config

import (
	"os"
	"path/filepath"
	"strings"

	"quick-translate/internal/domain"
)

const (
	defaultEngine    = "plamo"
	defaultPrecision = "4bit"
	defaultStyle     = "business"
	defaultShortcut  = "cmd-shift-c"
	defaultTimeoutMs = 60_000

	// DefaultEngineBinary is used when neither settings nor environment name a binary.
	DefaultEngineBinary = "plamo-translate"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Engine: defaultEngine,
		Plamo: domain.PlamoSettings{
			Precision: defaultPrecision,
		},
		StylePreset: defaultStyle,
		TimeoutMs:   defaultTimeoutMs,
		DoubleCopy: domain.DoubleCopy{
			Enabled:   true,
			PasteMode: domain.PasteModePopup,
			AutoCopy:  false,
			Shortcut:  defaultShortcut,
		},
		History: domain.HistorySettings{
			Backend: domain.HistoryBackendJSONL,
		},
	}
}

// DataDir returns the per-user directory holding settings, history, and logs.
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".quick-translate")
}

// Normalize trims user inputs and fills empty values with defaults.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.Engine = strings.TrimSpace(settings.Engine)
	if settings.Engine == "" {
		settings.Engine = defaults.Engine
	}
	settings.Plamo.Precision = strings.TrimSpace(settings.Plamo.Precision)
	if settings.Plamo.Precision == "" {
		settings.Plamo.Precision = defaults.Plamo.Precision
	}
	settings.Plamo.BinPath = strings.TrimSpace(settings.Plamo.BinPath)
	settings.StylePreset = strings.TrimSpace(settings.StylePreset)
	if settings.StylePreset == "" {
		settings.StylePreset = defaults.StylePreset
	}
	settings.GlossaryPath = strings.TrimSpace(settings.GlossaryPath)
	if settings.TimeoutMs <= 0 {
		settings.TimeoutMs = defaults.TimeoutMs
	}

	switch settings.DoubleCopy.PasteMode {
	case domain.PasteModePopup, domain.PasteModeClipboard:
	default:
		settings.DoubleCopy.PasteMode = defaults.DoubleCopy.PasteMode
	}
	settings.DoubleCopy.Shortcut = strings.TrimSpace(settings.DoubleCopy.Shortcut)
	if settings.DoubleCopy.Shortcut == "" {
		settings.DoubleCopy.Shortcut = defaults.DoubleCopy.Shortcut
	}

	switch settings.History.Backend {
	case domain.HistoryBackendJSONL, domain.HistoryBackendSQLite:
	default:
		settings.History.Backend = defaults.History.Backend
	}
	return settings
}
