package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"quick-translate/internal/clipboard"
	"quick-translate/internal/domain"
	"quick-translate/internal/history"
	"quick-translate/internal/jobs"
	"quick-translate/internal/session"
)

// ErrNothingStarted is returned when a command had no text to translate.
var ErrNothingStarted = errors.New("nothing to translate")

func newTranslateCommand(e *env) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate text from arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(raw)
			}
			if strings.TrimSpace(text) == "" {
				return ErrNothingStarted
			}

			return runJob(cmd, e, func(ctx context.Context, s *session.Session) error {
				s.SetInput(domain.Input{Text: text, From: from, To: to})
				_, err := s.Translate(ctx)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", session.DefaultFrom, "Source language, or auto to detect")
	cmd.Flags().StringVar(&to, "to", session.DefaultTo, "Target language")

	return cmd
}

func newQuickCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quick [text...]",
		Short: "Translate the given text or the clipboard, as a double copy would",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.settings.DoubleCopy.Enabled {
				return errors.New("double-copy is disabled in settings")
			}
			text := strings.Join(args, " ")
			return runJob(cmd, e, func(ctx context.Context, s *session.Session) error {
				return s.DoubleCopy(ctx, domain.DoubleCopySignal{Text: text})
			})
		},
	}
	return cmd
}

// runJob builds a session for one command, starts a job with start, streams
// chunks to stdout, and waits for the job to settle. Ctrl-C cancels the job.
func runJob(cmd *cobra.Command, e *env, start func(context.Context, *session.Session) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	store, err := history.Open(e.settings.History.Backend, e.dataDir)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	out := &chunkPrinter{w: cmd.OutOrStdout()}
	bus := jobs.NewEventBus(1000)
	bus.SetMirror(out.mirror)

	watcher := newSettleWatcher()
	s := session.New(session.Deps{
		Channel:   bus,
		Gateway:   e.newGateway(bus, e, e.log.With().Str("component", "engine").Logger()),
		Settings:  e,
		History:   store,
		Clipboard: clipboard.NewSystem(),
		Notifier:  watcher,
		Logger:    e.log,
	})
	defer s.Close(context.Background())

	if err := start(ctx, s); err != nil {
		return err
	}
	if !watcher.seen.Load() {
		return ErrNothingStarted
	}

	var job domain.Job
	select {
	case job = <-watcher.settled:
	case <-ctx.Done():
		s.Cancel(context.Background())
		out.finish("")
		return errors.New("cancelled")
	}

	switch job.Status {
	case domain.JobStatusDone:
		out.finish(job.Output)
		return nil
	case domain.JobStatusFailed:
		out.finish("")
		return errors.New(job.Error)
	default:
		out.finish("")
		return fmt.Errorf("translation stopped: %s", job.Reason)
	}
}

// settleWatcher reports the first terminal snapshot of a job.
type settleWatcher struct {
	seen    atomic.Bool
	once    sync.Once
	settled chan domain.Job
}

func newSettleWatcher() *settleWatcher {
	return &settleWatcher{settled: make(chan domain.Job, 1)}
}

func (w *settleWatcher) JobChanged(job domain.Job) {
	w.seen.Store(true)
	switch job.Status {
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		w.once.Do(func() { w.settled <- job })
	}
}

// chunkPrinter writes streamed chunks as they arrive.
type chunkPrinter struct {
	w io.Writer

	mu      sync.Mutex
	printed bool
}

func (p *chunkPrinter) mirror(event jobs.Event) {
	if event.Kind != jobs.KindChunk {
		return
	}
	text, ok := event.Payload.(string)
	if !ok || text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, text)
	p.printed = true
}

// finish prints output when nothing was streamed and ends the line.
func (p *chunkPrinter) finish(output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.printed && output != "" {
		fmt.Fprint(p.w, output)
		p.printed = true
	}
	if p.printed {
		fmt.Fprintln(p.w)
	}
}
