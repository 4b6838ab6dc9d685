package quick

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"quick-translate/internal/domain"
)

// SettingsSource returns the settings in effect right now.
type SettingsSource interface {
	Current() domain.Settings
}

// ClipboardReader reads the current system clipboard text.
type ClipboardReader interface {
	ReadText(ctx context.Context) (string, error)
}

// Stage is the input field shared with the manual and automatic triggers.
type Stage interface {
	Input() domain.Input
	SetText(text string)
}

// Runner starts a job through the manual trigger path.
type Runner interface {
	RunNow(ctx context.Context) (domain.Job, error)
}

// PreviewCloser hides the preview surface before a new quick translation.
type PreviewCloser interface {
	Close(ctx context.Context) error
}

// Deps collects the collaborators of a Bridge. Clipboard and Preview are optional.
type Deps struct {
	Settings  SettingsSource
	Clipboard ClipboardReader
	Stage     Stage
	Runner    Runner
	Preview   PreviewCloser
	Logger    zerolog.Logger
}

// Bridge turns double-copy signals into translation jobs.
type Bridge struct {
	settings  SettingsSource
	clipboard ClipboardReader
	stage     Stage
	runner    Runner
	preview   PreviewCloser
	log       zerolog.Logger
}

// NewBridge builds a bridge.
func NewBridge(deps Deps) *Bridge {
	return &Bridge{
		settings:  deps.Settings,
		clipboard: deps.Clipboard,
		stage:     deps.Stage,
		runner:    deps.Runner,
		preview:   deps.Preview,
		log:       deps.Logger,
	}
}

// Handle resolves the text to translate from the signal, the clipboard, or the
// staged input, in that order, and starts a job when any of them is non-empty.
// It does nothing while double-copy is disabled.
func (b *Bridge) Handle(ctx context.Context, signal domain.DoubleCopySignal) error {
	if !b.settings.Current().DoubleCopy.Enabled {
		b.log.Debug().Msg("double-copy ignored: disabled")
		return nil
	}

	text := b.resolveText(ctx, signal)
	if text == "" {
		b.log.Debug().Msg("double-copy ignored: nothing to translate")
		return nil
	}

	b.stage.SetText(text)
	if b.preview != nil {
		if err := b.preview.Close(ctx); err != nil {
			b.log.Warn().Err(err).Msg("close preview before quick translate")
		}
	}

	job, err := b.runner.RunNow(ctx)
	if err != nil {
		return err
	}
	b.log.Info().Str("job", job.ID).Int("chars", len(text)).Msg("quick translate started")
	return nil
}

func (b *Bridge) resolveText(ctx context.Context, signal domain.DoubleCopySignal) string {
	if text := strings.TrimSpace(signal.Text); text != "" {
		return text
	}

	if b.clipboard != nil {
		text, err := b.clipboard.ReadText(ctx)
		if err != nil {
			b.log.Debug().Err(err).Msg("clipboard read failed")
		}
		if text = strings.TrimSpace(text); err == nil && text != "" {
			return text
		}
	}

	return strings.TrimSpace(b.stage.Input().Text)
}
