package trigger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"quick-translate/internal/domain"
)

// DefaultDelay is the quiet period before an input change starts a job.
const DefaultDelay = time.Second

// Starter starts translation jobs and reports whether one is active.
type Starter interface {
	Start(ctx context.Context, in domain.Input) (domain.Job, error)
	IsActive() bool
}

// InputSource returns the staged input at the moment of the call.
type InputSource interface {
	Input() domain.Input
}

// Option customizes a Controller.
type Option func(*Controller)

// WithDelay overrides the debounce quiet period.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithLogger attaches a logger for skipped and failed fires.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = logger
	}
}

// Controller turns input changes into job starts, skipping fires whose
// signature matches the last job that actually started.
type Controller struct {
	starter   Starter
	input     InputSource
	log       zerolog.Logger
	delay     time.Duration
	debounced func(func())

	mu            sync.Mutex
	lastSignature string
	hasSignature  bool
	closed        bool
}

// New builds a controller reading staged input from input.
func New(starter Starter, input InputSource, opts ...Option) *Controller {
	c := &Controller{
		starter: starter,
		input:   input,
		log:     zerolog.Nop(),
		delay:   DefaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.debounced = debounce.New(c.delay)
	return c
}

// Signature derives the dedupe key of in.
func Signature(in domain.Input) string {
	from := strings.TrimSpace(in.From)
	from = lo.Ternary(from == "" || strings.EqualFold(from, domain.AutoDetect), domain.AutoDetect, from)
	return from + "|" + strings.TrimSpace(in.To) + "|" + strings.TrimSpace(in.Text)
}

// Changed re-arms the debounce timer. A blank input disarms it instead.
func (c *Controller) Changed() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if c.input.Input().IsBlank() {
		c.debounced(func() {})
		return
	}
	c.debounced(c.fire)
}

// RunNow is the manual start path. It always starts and records the signature
// when the job is accepted.
func (c *Controller) RunNow(ctx context.Context) (domain.Job, error) {
	in := c.input.Input()
	return c.start(ctx, in, Signature(in))
}

// LastSignature returns the signature of the last started job, if any.
func (c *Controller) LastSignature() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSignature, c.hasSignature
}

// Close disarms any pending fire and ignores later changes.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.debounced(func() {})
}

func (c *Controller) fire() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if c.starter.IsActive() {
		c.log.Debug().Msg("auto-trigger skipped: job active")
		return
	}
	in := c.input.Input()
	if in.IsBlank() {
		return
	}

	sig := Signature(in)
	if last, ok := c.LastSignature(); ok && last == sig {
		c.log.Debug().Msg("auto-trigger skipped: unchanged input")
		return
	}

	if _, err := c.start(context.Background(), in, sig); err != nil {
		c.log.Debug().Err(err).Msg("auto-trigger start rejected")
	}
}

func (c *Controller) start(ctx context.Context, in domain.Input, sig string) (domain.Job, error) {
	job, err := c.starter.Start(ctx, in)
	if err != nil {
		return job, err
	}

	c.mu.Lock()
	c.lastSignature = sig
	c.hasSignature = true
	c.mu.Unlock()
	return job, nil
}
