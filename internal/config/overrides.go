package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"quick-translate/internal/domain"
)

// Override keys shared by the environment and flag providers.
const (
	KeyEngineBin = "engine.bin"
	KeyPrecision = "engine.precision"
	KeyTimeout   = "engine.timeout"
	KeyStyle     = "style"
	KeyGlossary  = "glossary"
	KeyPasteMode = "doublecopy.pastemode"
	KeyAutoCopy  = "doublecopy.autocopy"
	KeyHistory   = "history.backend"
	KeyLogLevel  = "log.level"
)

// envKeys maps recognised environment variables to override keys.
// PLAMO_TRANSLATE_PATH is honoured for compatibility with the engine's own docs.
var envKeys = map[string]string{
	"PLAMO_TRANSLATE_PATH": KeyEngineBin,
	"QT_ENGINE_BIN":        KeyEngineBin,
	"QT_PRECISION":         KeyPrecision,
	"QT_TIMEOUT":           KeyTimeout,
	"QT_STYLE":             KeyStyle,
	"QT_GLOSSARY":          KeyGlossary,
	"QT_PASTE_MODE":        KeyPasteMode,
	"QT_AUTO_COPY":         KeyAutoCopy,
	"QT_HISTORY_BACKEND":   KeyHistory,
	"QT_LOG_LEVEL":         KeyLogLevel,
}

// flagKeys maps CLI flag names to override keys.
var flagKeys = map[string]string{
	"bin":       KeyEngineBin,
	"precision": KeyPrecision,
	"timeout":   KeyTimeout,
	"style":     KeyStyle,
	"glossary":  KeyGlossary,
	"paste":     KeyPasteMode,
	"copy":      KeyAutoCopy,
	"history":   KeyHistory,
	"log-level": KeyLogLevel,
}

// Overrides holds runtime-only settings taken from the environment and flags.
// They are applied on top of persisted settings and never saved back.
type Overrides struct {
	k *koanf.Koanf
}

// LoadOverrides reads the environment, then changed flags, with flags taking precedence.
// flags may be nil for the desktop app.
func LoadOverrides(flags *pflag.FlagSet) (Overrides, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", func(name string) string {
		return envKeys[name]
	}), nil); err != nil {
		return Overrides{}, fmt.Errorf("load environment overrides: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Overrides{}, fmt.Errorf("load flag overrides: %w", err)
		}
	}

	if raw := strings.TrimSpace(k.String(KeyTimeout)); raw != "" {
		if _, err := parseTimeout(raw); err != nil {
			return Overrides{}, fmt.Errorf("invalid %s override %q: %w", KeyTimeout, raw, err)
		}
	}

	return Overrides{k: k}, nil
}

// LogLevel returns the overridden log level or fallback when unset.
func (o Overrides) LogLevel(fallback string) string {
	if o.k == nil || !o.k.Exists(KeyLogLevel) {
		return fallback
	}
	return strings.TrimSpace(o.k.String(KeyLogLevel))
}

// Apply returns a copy of settings with every present override applied.
func (o Overrides) Apply(settings domain.Settings) domain.Settings {
	if o.k == nil {
		return settings
	}

	if v, ok := o.str(KeyEngineBin); ok {
		settings.Plamo.BinPath = v
	}
	if v, ok := o.str(KeyPrecision); ok {
		settings.Plamo.Precision = v
	}
	if v, ok := o.str(KeyStyle); ok {
		settings.StylePreset = v
	}
	if v, ok := o.str(KeyGlossary); ok {
		settings.GlossaryPath = v
	}
	if v, ok := o.str(KeyPasteMode); ok {
		settings.DoubleCopy.PasteMode = domain.PasteMode(strings.ToLower(v))
	}
	if o.k.Exists(KeyAutoCopy) {
		settings.DoubleCopy.AutoCopy = o.k.Bool(KeyAutoCopy)
	}
	if v, ok := o.str(KeyHistory); ok {
		settings.History.Backend = domain.HistoryBackend(strings.ToLower(v))
	}
	if v, ok := o.str(KeyTimeout); ok {
		if d, err := parseTimeout(v); err == nil {
			settings.TimeoutMs = d.Milliseconds()
		}
	}

	return Normalize(settings)
}

func (o Overrides) str(key string) (string, bool) {
	if !o.k.Exists(key) {
		return "", false
	}
	v := strings.TrimSpace(o.k.String(key))
	return v, v != ""
}

// parseTimeout accepts Go durations ("90s") or bare milliseconds ("90000").
func parseTimeout(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("timeout must be positive")
		}
		return d, nil
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("expected duration or milliseconds")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
