package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quick-translate/internal/domain"
	"quick-translate/internal/jobs"
)

const (
	defaultTimeout = 60 * time.Second
	maxLineBytes   = 1 << 20

	reasonTimeout = "timeout"
	reasonAborted = "aborted"
	reasonExited  = "exited"
)

// Publisher delivers gateway results on the per-job topics.
type Publisher interface {
	Publish(topic jobs.Topic, payload any) jobs.Event
}

// SettingsSource supplies the settings used to resolve the engine binary.
type SettingsSource interface {
	Current() domain.Settings
}

// task tracks one running engine process.
type task struct {
	id     string
	topics jobs.Topics
	proc   process

	mu         sync.Mutex
	stopReason string
}

// stop records why the task is being killed. Only the first reason sticks.
func (t *task) stop(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopReason != "" {
		return false
	}
	t.stopReason = reason
	return true
}

// settle claims the task once its stdout has ended so a late timeout or abort
// cannot relabel a process that is already exiting. It returns the stop reason
// recorded before that point, if any.
func (t *task) settle() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopReason != "" {
		return t.stopReason, true
	}
	t.stopReason = reasonExited
	return "", false
}

func (t *task) stopped() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopReason, t.stopReason != ""
}

// Gateway runs the plamo-translate CLI and streams its stdout as job events.
// Every dispatched job receives exactly one done event.
type Gateway struct {
	publisher Publisher
	settings  SettingsSource
	starter   processStarter
	lookupEnv func(string) (string, bool)
	log       zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

// NewGateway constructs the production gateway.
func NewGateway(publisher Publisher, settings SettingsSource, logger zerolog.Logger) *Gateway {
	return NewGatewayForTests(publisher, settings, execStarter{}, os.LookupEnv, logger)
}

// Translate spawns the engine for req and returns once the process is running.
func (g *Gateway) Translate(_ context.Context, req domain.TranslateRequest) error {
	if strings.TrimSpace(req.ID) == "" {
		return &Error{Op: "translate", Message: "request id is required"}
	}

	g.mu.Lock()
	if _, exists := g.tasks[req.ID]; exists {
		g.mu.Unlock()
		return &Error{Op: "translate", Message: fmt.Sprintf("job %s is already running", req.ID)}
	}
	g.mu.Unlock()

	settings := g.settings.Current()
	bin := ResolveBinary(settings, g.lookupEnv)
	args := BuildArgs(req)

	proc, err := g.starter.Start(bin, args...)
	if err != nil {
		return &Error{
			Op:      "spawn",
			Message: "failed to start plamo-translate",
			Command: bin,
			Err:     err,
		}
	}

	t := &task{id: req.ID, topics: jobs.TopicsFor(req.ID), proc: proc}
	g.mu.Lock()
	g.tasks[req.ID] = t
	g.mu.Unlock()

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = settings.Timeout()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	g.log.Debug().Str("job", req.ID).Str("bin", bin).Dur("timeout", timeout).Msg("engine started")
	go g.run(t, bin, timeout)
	return nil
}

// Abort kills the process for req.ID. Unknown or finished ids are ignored.
func (g *Gateway) Abort(_ context.Context, req domain.AbortRequest) error {
	g.mu.Lock()
	t := g.tasks[req.ID]
	g.mu.Unlock()
	if t == nil {
		return nil
	}
	return g.kill(t, reasonAborted)
}

// Running reports how many engine processes are alive.
func (g *Gateway) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

func (g *Gateway) kill(t *task, reason string) error {
	if !t.stop(reason) {
		return nil
	}
	if err := t.proc.Kill(); err != nil {
		return &Error{Op: "abort", Message: "failed to stop plamo-translate", Err: err}
	}
	g.log.Debug().Str("job", t.id).Str("reason", reason).Msg("engine stopped")
	return nil
}

// run streams stdout lines as chunks and publishes the terminal events.
func (g *Gateway) run(t *task, bin string, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		if err := g.kill(t, reasonTimeout); err != nil {
			g.log.Warn().Err(err).Str("job", t.id).Msg("kill after timeout")
		}
	})

	var lines []string
	scanner := bufio.NewScanner(t.proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if _, stopped := t.stopped(); stopped {
			continue
		}
		line := scanner.Text()
		chunk := line
		if len(lines) > 0 {
			chunk = "\n" + line
		}
		lines = append(lines, line)
		g.publisher.Publish(t.topics.Chunk, chunk)
	}
	scanErr := scanner.Err()

	timer.Stop()
	reason, stopped := t.settle()

	result := t.proc.Wait()

	g.mu.Lock()
	delete(g.tasks, t.id)
	g.mu.Unlock()

	if stopped {
		g.publisher.Publish(t.topics.Done, domain.Completion{OK: false, Reason: reason})
		return
	}

	if result.Err != nil || scanErr != nil {
		engineErr := &Error{
			Op:       "run",
			Message:  failureReason(result, scanErr),
			Command:  bin,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Err:      result.Err,
		}
		g.log.Error().Err(engineErr).Str("job", t.id).Msg("engine failed")
		g.publisher.Publish(t.topics.Done, domain.Completion{OK: false, Reason: engineErr.Message})
		return
	}

	g.publisher.Publish(t.topics.Final, strings.Join(lines, "\n"))
	g.publisher.Publish(t.topics.Done, domain.Completion{OK: true})
}

// failureReason prefers the engine's own stderr message over the exit status.
func failureReason(result processResult, scanErr error) string {
	if line := firstLine(result.Stderr); line != "" {
		return line
	}
	if result.Err != nil {
		return result.Err.Error()
	}
	return scanErr.Error()
}

// NewGatewayForTests creates a gateway with injectable process dependencies.
func NewGatewayForTests(
	publisher Publisher,
	settings SettingsSource,
	starter processStarter,
	lookupEnv func(string) (string, bool),
	logger zerolog.Logger,
) *Gateway {
	return &Gateway{
		publisher: publisher,
		settings:  settings,
		starter:   starter,
		lookupEnv: lookupEnv,
		log:       logger,
		tasks:     make(map[string]*task),
	}
}
