package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quick-translate/internal/config"
	"quick-translate/internal/domain"
)

// BinaryEnv names the environment variable that overrides the engine binary.
const BinaryEnv = "PLAMO_TRANSLATE_PATH"

const probeTimeout = 10 * time.Second

// Error is an operation-aware engine failure with optional command context.
type Error struct {
	Op       string `json:"op"`
	Message  string `json:"message"`
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Err      error  `json:"-"`
}

// Error formats engine failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Command == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Op, e.Message, e.Command, e.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ResolveBinary picks the engine executable: environment first, then
// settings, then the binary name looked up on PATH.
func ResolveBinary(settings domain.Settings, lookupEnv func(string) (string, bool)) string {
	if lookupEnv != nil {
		if v, ok := lookupEnv(BinaryEnv); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if bin := strings.TrimSpace(settings.Plamo.BinPath); bin != "" {
		return bin
	}
	return config.DefaultEngineBinary
}

// BuildArgs maps a request onto the plamo-translate command line. The CLI has
// no style or glossary flags, so those fields are not forwarded.
func BuildArgs(req domain.TranslateRequest) []string {
	args := make([]string, 0, 8)
	if req.From != nil {
		args = append(args, "--from", *req.From)
	}
	args = append(args, "--to", req.To)
	if req.Precision != nil {
		args = append(args, "--precision", *req.Precision)
	}
	return append(args, "--input", req.Input)
}

// ProbeVersion runs the engine with --version and returns its first output line.
func ProbeVersion(ctx context.Context, bin string) (string, error) {
	return probeVersion(ctx, execRunner{}, bin)
}

func probeVersion(ctx context.Context, runner commandRunner, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	result, stdout, err := runner.Run(ctx, bin, "--version")
	if err != nil {
		return "", &Error{
			Op:       "probe",
			Message:  "engine did not answer --version",
			Command:  bin,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Err:      err,
		}
	}
	return firstLine(stdout), nil
}

// firstLine returns the first non-empty trimmed line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
