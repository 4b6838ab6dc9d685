package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

// processResult captures how an engine process ended.
type processResult struct {
	Stderr   string
	ExitCode int
	Err      error
}

// process is one running engine invocation.
type process interface {
	Stdout() io.Reader
	Wait() processResult
	Kill() error
}

// processStarter abstracts process creation for testability.
type processStarter interface {
	Start(name string, args ...string) (process, error)
}

// execStarter spawns engine processes via os/exec.
type execStarter struct{}

// Start launches name with stdout piped for streaming and stderr captured.
func (execStarter) Start(name string, args ...string) (process, error) {
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, stdout: stdout}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// execProcess adapts exec.Cmd to process.
type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr bytes.Buffer
	once   sync.Once
	result processResult
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

// Wait must be called after stdout has been drained.
func (p *execProcess) Wait() processResult {
	p.once.Do(func() {
		err := p.cmd.Wait()
		p.result = processResult{Stderr: p.stderr.String()}
		if err != nil {
			p.result.ExitCode = -1
			p.result.Err = err
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				p.result.ExitCode = exitErr.ExitCode()
			}
		}
	})
	return p.result
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// commandRunner runs short-lived engine commands such as version probes.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (processResult, string, error)
}

// execRunner executes probe commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout, stderr, and exit code.
func (execRunner) Run(ctx context.Context, name string, args ...string) (processResult, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := processResult{Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		result.Err = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, stdout.String(), err
	}
	return result, stdout.String(), nil
}
