package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quick-translate/internal/domain"
	"quick-translate/internal/jobs"
)

// fakeProcess lets tests write stdout lines and decide how the process ends.
type fakeProcess struct {
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	exit    chan processResult
	once    sync.Once

	mu     sync.Mutex
	killed bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{stdoutR: r, stdoutW: w, exit: make(chan processResult, 1)}
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdoutR }

func (p *fakeProcess) Wait() processResult { return <-p.exit }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.finish(processResult{ExitCode: -1, Err: errors.New("signal: killed")})
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *fakeProcess) writeLine(line string) {
	fmt.Fprintln(p.stdoutW, line)
}

func (p *fakeProcess) closeStdout() {
	_ = p.stdoutW.Close()
}

func (p *fakeProcess) finish(result processResult) {
	p.once.Do(func() {
		_ = p.stdoutW.Close()
		p.exit <- result
	})
}

// fakeStarter records spawned commands.
type fakeStarter struct {
	mu    sync.Mutex
	name  string
	args  []string
	proc  *fakeProcess
	start func(name string, args ...string) (process, error)
}

func (s *fakeStarter) Start(name string, args ...string) (process, error) {
	s.mu.Lock()
	s.name = name
	s.args = append([]string{}, args...)
	s.mu.Unlock()
	if s.start != nil {
		return s.start(name, args...)
	}
	return s.proc, nil
}

type staticSettings struct {
	settings domain.Settings
}

func (s staticSettings) Current() domain.Settings { return s.settings }

// recordingBus captures published events through the real event bus.
type recordingBus struct {
	*jobs.EventBus
}

func newRecordingBus() recordingBus {
	return recordingBus{EventBus: jobs.NewEventBus(100)}
}

func (b recordingBus) kinds(jobID string) []jobs.Kind {
	var kinds []jobs.Kind
	for _, e := range b.Since(0) {
		if e.JobID == jobID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func (b recordingBus) last(jobID string, kind jobs.Kind) (jobs.Event, bool) {
	events := b.Since(0)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].JobID == jobID && events[i].Kind == kind {
			return events[i], true
		}
	}
	return jobs.Event{}, false
}

func newTestGateway(bus recordingBus, starter processStarter, env map[string]string) *Gateway {
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	settings := staticSettings{settings: domain.Settings{TimeoutMs: 60_000}}
	return NewGatewayForTests(bus, settings, starter, lookup, zerolog.Nop())
}

func waitDone(t *testing.T, bus recordingBus, id string) domain.Completion {
	t.Helper()
	var done jobs.Event
	require.Eventually(t, func() bool {
		var ok bool
		done, ok = bus.last(id, jobs.KindDone)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return done.Payload.(domain.Completion)
}

// TestGatewayStreamsLinesThenFinalAndDone checks the happy path event order.
func TestGatewayStreamsLinesThenFinalAndDone(t *testing.T) {
	bus := newRecordingBus()
	proc := newFakeProcess()
	starter := &fakeStarter{proc: proc}
	gw := newTestGateway(bus, starter, nil)

	req := domain.TranslateRequest{ID: "job-1", Input: "Hello\nWorld", To: "ja", Precision: domain.StringPtr("4bit")}
	require.NoError(t, gw.Translate(context.Background(), req))
	require.Equal(t, 1, gw.Running())

	proc.writeLine("こんにちは")
	proc.writeLine("世界")
	proc.finish(processResult{})

	require.Equal(t, domain.Completion{OK: true}, waitDone(t, bus, "job-1"))
	require.Equal(t, []jobs.Kind{jobs.KindChunk, jobs.KindChunk, jobs.KindFinal, jobs.KindDone}, bus.kinds("job-1"))

	events := bus.Since(0)
	require.Equal(t, "こんにちは", events[0].Payload)
	require.Equal(t, "\n世界", events[1].Payload)
	require.Equal(t, "こんにちは\n世界", events[2].Payload)
	require.Zero(t, gw.Running())

	require.Equal(t, "plamo-translate", starter.name)
	require.Equal(t, []string{"--to", "ja", "--precision", "4bit", "--input", "Hello\nWorld"}, starter.args)
}

// TestGatewayNonZeroExitReportsStderr checks engine failures surface as done not ok.
func TestGatewayNonZeroExitReportsStderr(t *testing.T) {
	bus := newRecordingBus()
	proc := newFakeProcess()
	gw := newTestGateway(bus, &fakeStarter{proc: proc}, nil)

	require.NoError(t, gw.Translate(context.Background(), domain.TranslateRequest{ID: "job-1", Input: "x", To: "ja"}))
	proc.finish(processResult{ExitCode: 2, Stderr: "model not found\nmore", Err: errors.New("exit status 2")})

	got := waitDone(t, bus, "job-1")
	require.False(t, got.OK)
	require.Equal(t, "model not found", got.Reason)
	require.Equal(t, []jobs.Kind{jobs.KindDone}, bus.kinds("job-1"))
}

// TestGatewayTimeoutKillsProcess checks the per-job timeout watcher.
func TestGatewayTimeoutKillsProcess(t *testing.T) {
	bus := newRecordingBus()
	proc := newFakeProcess()
	gw := newTestGateway(bus, &fakeStarter{proc: proc}, nil)

	require.NoError(t, gw.Translate(context.Background(), domain.TranslateRequest{ID: "job-1", Input: "x", To: "ja", TimeoutMs: 20}))

	got := waitDone(t, bus, "job-1")
	require.Equal(t, domain.Completion{OK: false, Reason: "timeout"}, got)
	require.True(t, proc.wasKilled())
	require.Zero(t, gw.Running())
}

// TestGatewayTimeoutAfterStdoutEndsKeepsResult checks a run whose output is
// complete is not relabelled when the timeout elapses while the process exits.
func TestGatewayTimeoutAfterStdoutEndsKeepsResult(t *testing.T) {
	bus := newRecordingBus()
	proc := newFakeProcess()
	gw := newTestGateway(bus, &fakeStarter{proc: proc}, nil)

	require.NoError(t, gw.Translate(context.Background(), domain.TranslateRequest{ID: "job-1", Input: "x", To: "ja", TimeoutMs: 50}))
	proc.writeLine("できた")
	proc.closeStdout()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, gw.Abort(context.Background(), domain.AbortRequest{ID: "job-1"}))
	proc.finish(processResult{})

	require.Equal(t, domain.Completion{OK: true}, waitDone(t, bus, "job-1"))
	require.False(t, proc.wasKilled())
	require.Equal(t, []jobs.Kind{jobs.KindChunk, jobs.KindFinal, jobs.KindDone}, bus.kinds("job-1"))
}

// TestGatewayAbortEmitsSingleDone verifies abort kills once and ends the job.
func TestGatewayAbortEmitsSingleDone(t *testing.T) {
	bus := newRecordingBus()
	proc := newFakeProcess()
	gw := newTestGateway(bus, &fakeStarter{proc: proc}, nil)

	require.NoError(t, gw.Translate(context.Background(), domain.TranslateRequest{ID: "job-1", Input: "x", To: "ja"}))
	proc.writeLine("partial")

	require.NoError(t, gw.Abort(context.Background(), domain.AbortRequest{ID: "job-1"}))
	require.NoError(t, gw.Abort(context.Background(), domain.AbortRequest{ID: "job-1"}))

	got := waitDone(t, bus, "job-1")
	require.Equal(t, domain.Completion{OK: false, Reason: "aborted"}, got)
	require.True(t, proc.wasKilled())

	done := 0
	for _, kind := range bus.kinds("job-1") {
		require.NotEqual(t, jobs.KindFinal, kind)
		if kind == jobs.KindDone {
			done++
		}
	}
	require.Equal(t, 1, done)
}

// TestGatewayAbortUnknownIsNoop checks abort for finished ids.
func TestGatewayAbortUnknownIsNoop(t *testing.T) {
	gw := newTestGateway(newRecordingBus(), &fakeStarter{}, nil)
	require.NoError(t, gw.Abort(context.Background(), domain.AbortRequest{ID: "missing"}))
}

// TestGatewaySpawnFailure returns an invocation error and publishes nothing.
func TestGatewaySpawnFailure(t *testing.T) {
	bus := newRecordingBus()
	starter := &fakeStarter{start: func(string, ...string) (process, error) {
		return nil, errors.New("executable file not found in $PATH")
	}}
	gw := newTestGateway(bus, starter, map[string]string{BinaryEnv: "/opt/plamo"})

	err := gw.Translate(context.Background(), domain.TranslateRequest{ID: "job-1", Input: "x", To: "ja"})
	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	require.Equal(t, "spawn", engineErr.Op)
	require.Equal(t, "/opt/plamo", engineErr.Command)
	require.Empty(t, bus.Since(0))
	require.Zero(t, gw.Running())
}

// TestGatewayRejectsMissingID validates requests before spawning.
func TestGatewayRejectsMissingID(t *testing.T) {
	starter := &fakeStarter{}
	gw := newTestGateway(newRecordingBus(), starter, nil)

	require.Error(t, gw.Translate(context.Background(), domain.TranslateRequest{Input: "x", To: "ja"}))
	require.Empty(t, starter.name)
}
