package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"quick-translate/internal/clipboard"
	"quick-translate/internal/config"
	"quick-translate/internal/diagnostics"
	"quick-translate/internal/domain"
	"quick-translate/internal/engine"
	"quick-translate/internal/history"
	"quick-translate/internal/jobs"
	"quick-translate/internal/logging"
	"quick-translate/internal/session"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	eventDoubleCopy      = "double-copy"
	eventJobState        = "translate:state"
	eventPreviewOpen     = "preview:open"
	eventPreviewClose    = "preview:close"
	eventShortcutChanged = "shortcut:changed"
)

// diagnosticsRunner isolates the diagnostics checker behind an interface.
type diagnosticsRunner interface {
	Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport
}

// App wires configuration, the translation session, and UI runtime callbacks.
type App struct {
	Store       config.Store
	Overrides   config.Overrides
	Session     *session.Session
	Events      *jobs.EventBus
	assets      fs.FS
	checker     diagnosticsRunner
	dataDir     string
	log         zerolog.Logger
	openHistory func(domain.HistoryBackend, string) (history.Store, error)

	mu          sync.Mutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
	history     history.Store
	runtimeCtx  context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	overrides, err := config.LoadOverrides(nil)
	if err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(filepath.Join(dataDir, "app.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logging.Setup(logging.Options{
		Level:  overrides.LogLevel("info"),
		Format: logging.FormatJSON,
		Output: logFile,
	})

	store := config.NewJSONStore(filepath.Join(dataDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = overrides.Apply(settings)

	hist, err := history.Open(settings.History.Backend, dataDir)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	a := &App{
		Store:       store,
		Overrides:   overrides,
		Events:      jobs.NewEventBus(1000),
		assets:      assets,
		checker:     diagnostics.NewChecker(dataDir),
		dataDir:     dataDir,
		log:         logging.Component("app"),
		openHistory: history.Open,
		settings:    settings,
		history:     hist,
	}
	a.diagnostics = a.checker.Run(context.Background(), settings)

	gateway := engine.NewGateway(a.Events, settingsSource{app: a}, logging.Component("engine"))
	a.wire(gateway, clipboard.NewSystem())

	a.log.Info().Str("dataDir", dataDir).Str("history", string(settings.History.Backend)).Msg("app initialized")
	return a, nil
}

// wire builds the session on top of the app's settings, history, and runtime surfaces.
func (a *App) wire(gateway jobs.Gateway, fallback session.Clipboard) {
	a.Events.SetMirror(a.mirrorEvent)
	a.Session = session.New(session.Deps{
		Channel:   a.Events,
		Gateway:   gateway,
		Settings:  settingsSource{app: a},
		History:   historySink{app: a},
		Clipboard: runtimeClipboard{app: a, fallback: fallback},
		Preview:   previewWindow{app: a},
		Notifier:  jobNotifier{app: a},
		Logger:    a.log,
	})
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Quick Translate",
		Width:       960,
		Height:      680,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and listens for
// double-copy signals raised by the frontend shortcut handler.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	wailsruntime.EventsOn(ctx, eventDoubleCopy, func(data ...interface{}) {
		text := doubleCopyText(data)
		go func() {
			if err := a.DoubleCopy(text); err != nil {
				a.log.Warn().Err(err).Msg("double-copy")
			}
		}()
	})
}

// Shutdown cancels the running job and releases history resources.
func (a *App) Shutdown(ctx context.Context) {
	if a.Session != nil {
		a.Session.Close(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = nil
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close history")
		}
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.settings = a.Overrides.Apply(settings)
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// A changed history backend is opened immediately.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	effective := a.Overrides.Apply(normalized)

	a.mu.Lock()
	previous := a.settings
	a.settings = effective
	a.mu.Unlock()

	if effective.History.Backend != previous.History.Backend {
		if err := a.switchHistory(effective.History.Backend); err != nil {
			return normalized, err
		}
	}
	if effective.DoubleCopy.Shortcut != previous.DoubleCopy.Shortcut {
		a.emit(eventShortcutChanged, effective.DoubleCopy.Shortcut)
	}

	a.refreshDiagnosticsFromSettings(effective)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(a.Overrides.Apply(settings)), nil
}

// GetInput returns the staged input field.
func (a *App) GetInput() domain.Input {
	return a.Session.Input()
}

// SetInput stages the input field and re-arms the auto-trigger.
func (a *App) SetInput(in domain.Input) {
	a.Session.SetInput(in)
}

// Translate starts a job for the staged input. A running job makes this a no-op.
func (a *App) Translate() (domain.Job, error) {
	job, err := a.Session.Translate(context.Background())
	if errors.Is(err, jobs.ErrJobAlreadyRunning) {
		return a.Session.Current(), nil
	}
	return job, err
}

// Cancel aborts the running job, if any.
func (a *App) Cancel() error {
	a.Session.Cancel(context.Background())
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Session.Current()
}

// AcknowledgeError clears a surfaced invocation error.
func (a *App) AcknowledgeError() domain.Job {
	a.Session.AcknowledgeError()
	return a.Session.Current()
}

// DoubleCopy handles a quick-translate signal carrying optional text.
func (a *App) DoubleCopy(text string) error {
	err := a.Session.DoubleCopy(context.Background(), domain.DoubleCopySignal{Text: text})
	if errors.Is(err, jobs.ErrJobAlreadyRunning) {
		return nil
	}
	return err
}

// ClosePreview hides the preview surface.
func (a *App) ClosePreview() error {
	return a.Session.ClosePreview(context.Background())
}

// LoadHistory returns up to limit history items, newest first.
func (a *App) LoadHistory(limit int) ([]domain.HistoryItem, error) {
	store := a.historyStore()
	if store == nil {
		return []domain.HistoryItem{}, nil
	}
	items, err := store.List(limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return items, nil
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Events.Since(sinceSeq)
}

func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func (a *App) historyStore() history.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history
}

// switchHistory opens the store for backend and closes the previous one.
func (a *App) switchHistory(backend domain.HistoryBackend) error {
	if a.openHistory == nil {
		return nil
	}
	next, err := a.openHistory(backend, a.dataDir)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	a.mu.Lock()
	prev := a.history
	a.history = next
	a.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close previous history store")
		}
	}
	a.log.Info().Str("backend", string(backend)).Msg("history backend switched")
	return nil
}

// mirrorEvent forwards bus events to the frontend under their topic name.
func (a *App) mirrorEvent(event jobs.Event) {
	a.emit(event.Topic().String(), event.Payload)
}

// emit sends a runtime event when the Wails runtime is up.
func (a *App) emit(name string, data ...interface{}) {
	ctx := a.runtimeContextOrNil()
	if ctx == nil {
		return
	}
	wailsruntime.EventsEmit(ctx, name, data...)
}

func (a *App) runtimeContextOrNil() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runtimeCtx
}

// doubleCopyText extracts the optional text from a double-copy runtime event.
func doubleCopyText(data []interface{}) string {
	if len(data) == 0 {
		return ""
	}
	switch v := data[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		text, _ := v["text"].(string)
		return strings.TrimSpace(text)
	default:
		return ""
	}
}
