package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quick-translate/internal/domain"
)

// ErrInvocation wraps failures to dispatch a request to the engine gateway.
var ErrInvocation = errors.New("invocation error")

// ErrInvalidInput is returned when the staged input cannot form a request.
var ErrInvalidInput = errors.New("invalid input")

// Channel registers per-topic handlers.
type Channel interface {
	Subscribe(topic Topic, handler Handler) *Subscription
}

// Gateway dispatches translation requests to the engine. Translate must return
// once the request is dispatched; results arrive on the channel.
type Gateway interface {
	Translate(ctx context.Context, req domain.TranslateRequest) error
	Abort(ctx context.Context, req domain.AbortRequest) error
}

// SettingsSource returns the settings snapshot in effect right now.
type SettingsSource interface {
	Current() domain.Settings
}

// HistorySink stores one item per successful translation.
type HistorySink interface {
	Append(item domain.HistoryItem) error
}

// ClipboardWriter places text on the system clipboard.
type ClipboardWriter interface {
	WriteText(ctx context.Context, text string) error
}

// PreviewSurface is the transient window showing a finished translation.
type PreviewSurface interface {
	Open(ctx context.Context, input, output string) error
	Close(ctx context.Context) error
}

// Notifier observes every job snapshot change.
type Notifier interface {
	JobChanged(job domain.Job)
}

// Deps collects the collaborators of an Orchestrator. Clipboard, Preview,
// History, and Notifier are optional.
type Deps struct {
	Channel   Channel
	Gateway   Gateway
	Settings  SettingsSource
	History   HistorySink
	Clipboard ClipboardWriter
	Preview   PreviewSurface
	Notifier  Notifier
	Logger    zerolog.Logger
	NewID     func() string
}

// activeJob owns the subscriptions of the job holding the single-flight slot.
type activeJob struct {
	id       string
	request  domain.TranslateRequest
	settings domain.Settings
	topics   Topics
	subs     []*Subscription
	once     sync.Once

	// cancelled is set by Cancel, including while the request is still being
	// dispatched and the engine cannot yet be aborted.
	cancelled atomic.Bool
}

// release drops every subscription exactly once.
func (a *activeJob) release() {
	a.once.Do(func() {
		for _, sub := range a.subs {
			sub.Release()
		}
		a.subs = nil
	})
}

// Orchestrator runs at most one translation job at a time, accumulating
// streamed output and applying completion side effects.
type Orchestrator struct {
	manager   *Manager
	channel   Channel
	gateway   Gateway
	settings  SettingsSource
	history   HistorySink
	clipboard ClipboardWriter
	preview   PreviewSurface
	notifier  Notifier
	log       zerolog.Logger
	newID     func() string

	mu     sync.Mutex
	active *activeJob
}

// NewOrchestrator builds an idle orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Orchestrator{
		manager:   NewManager(),
		channel:   deps.Channel,
		gateway:   deps.Gateway,
		settings:  deps.Settings,
		history:   deps.History,
		clipboard: deps.Clipboard,
		preview:   deps.Preview,
		notifier:  deps.Notifier,
		log:       deps.Logger,
		newID:     newID,
	}
}

// Start creates a job for in and dispatches it to the gateway. While another
// job is active it returns ErrJobAlreadyRunning without any side effect.
func (o *Orchestrator) Start(ctx context.Context, in domain.Input) (domain.Job, error) {
	if in.IsBlank() {
		return domain.Job{}, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(in.To) == "" {
		return domain.Job{}, fmt.Errorf("%w: target language is required", ErrInvalidInput)
	}

	settings := o.settings.Current()
	req := buildRequest(o.newID(), in, settings)

	o.mu.Lock()
	if _, err := o.manager.Start(req); err != nil {
		o.mu.Unlock()
		return o.manager.Current(), err
	}

	// Handlers must be armed before the gateway can publish anything.
	active := &activeJob{
		id:       req.ID,
		request:  req,
		settings: settings,
		topics:   TopicsFor(req.ID),
	}
	active.subs = []*Subscription{
		o.channel.Subscribe(active.topics.Chunk, func(p any) { o.onChunk(active.id, p) }),
		o.channel.Subscribe(active.topics.Progress, func(p any) { o.onProgress(active.id, p) }),
		o.channel.Subscribe(active.topics.Final, func(p any) { o.onFinal(active.id, p) }),
		o.channel.Subscribe(active.topics.Done, func(p any) { o.onDone(active.id, p) }),
	}
	o.active = active

	job, err := o.manager.Transition(req.ID, domain.JobStatusStreaming)
	o.mu.Unlock()
	if err != nil {
		return domain.Job{}, err
	}
	o.notify(job)

	o.log.Info().Str("job", req.ID).Str("to", req.To).Int("chars", len(req.Input)).Msg("translation started")

	if err := o.gateway.Translate(ctx, req); err != nil {
		o.log.Error().Err(err).Str("job", req.ID).Msg("engine invocation failed")
		if a := o.detach(req.ID); a != nil {
			a.release()
			if failed, ferr := o.manager.Fail(req.ID, "invocation error: "+err.Error()); ferr == nil {
				o.notify(failed)
			}
		}
		return o.manager.Current(), fmt.Errorf("%w: %w", ErrInvocation, err)
	}

	// Cancel's abort may have reached the engine before the task existed.
	if active.cancelled.Load() {
		if err := o.gateway.Abort(context.WithoutCancel(ctx), domain.AbortRequest{ID: req.ID}); err != nil {
			o.log.Warn().Err(err).Str("job", req.ID).Msg("abort orphaned request")
		}
	}

	return job, nil
}

// Cancel aborts the active job and tears it down without completion side
// effects. It reports whether a job was active.
func (o *Orchestrator) Cancel(ctx context.Context) bool {
	o.mu.Lock()
	a := o.active
	o.active = nil
	o.mu.Unlock()
	if a == nil {
		return false
	}

	a.cancelled.Store(true)
	if job, err := o.manager.Cancel(a.id, "cancelled"); err == nil {
		o.notify(job)
	}
	if err := o.gateway.Abort(ctx, domain.AbortRequest{ID: a.id}); err != nil {
		o.log.Warn().Err(err).Str("job", a.id).Msg("engine abort failed")
	}
	a.release()
	o.settleIdle(a.id)

	o.log.Info().Str("job", a.id).Msg("translation cancelled")
	return true
}

// Current returns a snapshot of the current job.
func (o *Orchestrator) Current() domain.Job {
	return o.manager.Current()
}

// IsActive reports whether a job holds the single-flight slot.
func (o *Orchestrator) IsActive() bool {
	return o.manager.IsRunning()
}

// AcknowledgeError clears a surfaced invocation error.
func (o *Orchestrator) AcknowledgeError() {
	cur := o.manager.Current()
	if cur.Status != domain.JobStatusFailed {
		return
	}
	if job, err := o.manager.Transition(cur.ID, domain.JobStatusIdle); err == nil {
		o.notify(job)
	}
}

func (o *Orchestrator) onChunk(id string, payload any) {
	chunk, ok := decodeText(payload)
	if !ok {
		o.log.Debug().Str("job", id).Msgf("ignoring chunk payload of type %T", payload)
		return
	}
	if job, ok := o.manager.AppendChunk(id, chunk); ok {
		o.notify(job)
	}
}

func (o *Orchestrator) onProgress(id string, payload any) {
	fraction, ok := decodeFraction(payload)
	if !ok {
		o.log.Debug().Str("job", id).Msgf("ignoring progress payload of type %T", payload)
		return
	}
	if job, ok := o.manager.SetProgress(id, fraction); ok {
		o.notify(job)
	}
}

func (o *Orchestrator) onFinal(id string, payload any) {
	output, ok := decodeText(payload)
	if !ok {
		return
	}
	if job, ok := o.manager.AdoptFinal(id, output); ok {
		o.notify(job)
	}
}

func (o *Orchestrator) onDone(id string, payload any) {
	completion, ok := decodeCompletion(payload)
	if !ok {
		o.log.Debug().Str("job", id).Msgf("ignoring done payload of type %T", payload)
		return
	}

	a := o.detach(id)
	if a == nil {
		return
	}
	a.release()

	if !completion.OK {
		if job, err := o.manager.Cancel(id, completion.Reason); err == nil {
			o.notify(job)
		}
		o.settleIdle(id)
		o.log.Info().Str("job", id).Str("reason", completion.Reason).Msg("translation ended without result")
		return
	}

	job, err := o.manager.Transition(id, domain.JobStatusDone)
	if err != nil {
		o.log.Warn().Err(err).Str("job", id).Msg("complete job")
		return
	}
	o.commit(a, job)

	o.notify(job)
	o.log.Info().Str("job", id).Int("chars", len(job.Output)).Msg("translation done")
}

// commit applies history, clipboard, and preview side effects for a finished
// job using the output as of the done event.
func (o *Orchestrator) commit(a *activeJob, job domain.Job) {
	ctx := context.Background()

	if o.history != nil {
		item := domain.HistoryItem{
			ID:        job.ID,
			Input:     a.request.Input,
			Output:    job.Output,
			To:        a.request.To,
			CreatedAt: job.FinishedAt.UnixMilli(),
		}
		if a.request.From != nil {
			item.From = *a.request.From
		}
		if err := o.history.Append(item); err != nil {
			o.log.Error().Err(err).Str("job", job.ID).Msg("append history")
		}
	}

	actions := DecideCompletion(a.settings.DoubleCopy)
	if actions.CopyToClipboard && o.clipboard != nil {
		if err := o.clipboard.WriteText(ctx, job.Output); err != nil {
			o.log.Warn().Err(err).Str("job", job.ID).Msg("copy translation to clipboard")
		}
	}
	if o.preview != nil {
		var err error
		if actions.OpenPreview {
			err = o.preview.Open(ctx, a.request.Input, job.Output)
		} else {
			err = o.preview.Close(ctx)
		}
		if err != nil {
			o.log.Warn().Err(err).Str("job", job.ID).Msg("update preview surface")
		}
	}
}

// detach removes and returns the active job when it matches id.
func (o *Orchestrator) detach(id string) *activeJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || o.active.id != id {
		return nil
	}
	a := o.active
	o.active = nil
	return a
}

func (o *Orchestrator) settleIdle(id string) {
	if job, err := o.manager.Transition(id, domain.JobStatusIdle); err == nil {
		o.notify(job)
	}
}

func (o *Orchestrator) notify(job domain.Job) {
	if o.notifier != nil {
		o.notifier.JobChanged(job)
	}
}

// buildRequest captures the immutable request snapshot for one job.
func buildRequest(id string, in domain.Input, settings domain.Settings) domain.TranslateRequest {
	return domain.TranslateRequest{
		ID:        id,
		Input:     in.Text,
		From:      in.SourceLang(),
		To:        strings.TrimSpace(in.To),
		Precision: domain.StringPtr(settings.Plamo.Precision),
		Style:     domain.StringPtr(settings.StylePreset),
		Glossary:  domain.StringPtr(settings.GlossaryPath),
		TimeoutMs: settings.TimeoutMs,
	}
}
