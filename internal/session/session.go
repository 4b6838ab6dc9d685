package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quick-translate/internal/domain"
	"quick-translate/internal/jobs"
	"quick-translate/internal/quick"
	"quick-translate/internal/trigger"
)

// Default language pair of a fresh input field.
const (
	DefaultFrom = domain.AutoDetect
	DefaultTo   = "ja"
)

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
}

// Deps collects everything a Session wires together. Clipboard, Preview,
// History, and Notifier are optional.
type Deps struct {
	Channel   jobs.Channel
	Gateway   jobs.Gateway
	Settings  jobs.SettingsSource
	History   jobs.HistorySink
	Clipboard Clipboard
	Preview   jobs.PreviewSurface
	Notifier  jobs.Notifier
	Logger    zerolog.Logger
	Delay     time.Duration
}

// Session owns the staged input field and the orchestrator with its two
// trigger paths.
type Session struct {
	orch    *jobs.Orchestrator
	trigger *trigger.Controller
	bridge  *quick.Bridge
	preview jobs.PreviewSurface

	mu    sync.Mutex
	input domain.Input
}

// New wires an idle session.
func New(deps Deps) *Session {
	s := &Session{
		preview: deps.Preview,
		input:   domain.Input{From: DefaultFrom, To: DefaultTo},
	}

	var writer jobs.ClipboardWriter
	var reader quick.ClipboardReader
	if deps.Clipboard != nil {
		writer = deps.Clipboard
		reader = deps.Clipboard
	}
	var closer quick.PreviewCloser
	if deps.Preview != nil {
		closer = deps.Preview
	}

	s.orch = jobs.NewOrchestrator(jobs.Deps{
		Channel:   deps.Channel,
		Gateway:   deps.Gateway,
		Settings:  deps.Settings,
		History:   deps.History,
		Clipboard: writer,
		Preview:   deps.Preview,
		Notifier:  deps.Notifier,
		Logger:    deps.Logger.With().Str("component", "orchestrator").Logger(),
	})
	s.trigger = trigger.New(s.orch, s,
		trigger.WithDelay(deps.Delay),
		trigger.WithLogger(deps.Logger.With().Str("component", "trigger").Logger()),
	)
	s.bridge = quick.NewBridge(quick.Deps{
		Settings:  deps.Settings,
		Clipboard: reader,
		Stage:     s,
		Runner:    s.trigger,
		Preview:   closer,
		Logger:    deps.Logger.With().Str("component", "quick").Logger(),
	})
	return s
}

// Input returns the staged input.
func (s *Session) Input() domain.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the staged input and re-arms the auto-trigger. Blank
// languages keep their current values.
func (s *Session) SetInput(in domain.Input) {
	s.mu.Lock()
	s.input.Text = in.Text
	if from := strings.TrimSpace(in.From); from != "" {
		s.input.From = from
	}
	if to := strings.TrimSpace(in.To); to != "" {
		s.input.To = to
	}
	s.mu.Unlock()

	s.trigger.Changed()
}

// SetText stages text without re-arming the auto-trigger.
func (s *Session) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input.Text = text
}

// Translate starts a job for the staged input through the manual path.
func (s *Session) Translate(ctx context.Context) (domain.Job, error) {
	return s.trigger.RunNow(ctx)
}

// Cancel aborts the active job, reporting whether one was running.
func (s *Session) Cancel(ctx context.Context) bool {
	return s.orch.Cancel(ctx)
}

// DoubleCopy handles a quick-translate signal.
func (s *Session) DoubleCopy(ctx context.Context, signal domain.DoubleCopySignal) error {
	return s.bridge.Handle(ctx, signal)
}

// ClosePreview hides the preview surface when one is attached.
func (s *Session) ClosePreview(ctx context.Context) error {
	if s.preview == nil {
		return nil
	}
	return s.preview.Close(ctx)
}

// Current returns the current job snapshot.
func (s *Session) Current() domain.Job {
	return s.orch.Current()
}

// IsActive reports whether a job is running.
func (s *Session) IsActive() bool {
	return s.orch.IsActive()
}

// AcknowledgeError clears a surfaced invocation error.
func (s *Session) AcknowledgeError() {
	s.orch.AcknowledgeError()
}

// Close disarms the auto-trigger and cancels any running job.
func (s *Session) Close(ctx context.Context) {
	s.trigger.Close()
	s.orch.Cancel(ctx)
}
