package clipboard

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// System reads and writes the OS clipboard through the platform helpers
// (pbcopy, xclip/xsel/wl-clipboard, or the Windows API).
type System struct {
	read  func() (string, error)
	write func(string) error
}

// NewSystem returns the OS clipboard.
func NewSystem() *System {
	return &System{read: clipboard.ReadAll, write: clipboard.WriteAll}
}

// Available reports whether a clipboard helper was found on this machine.
func Available() bool {
	return !clipboard.Unsupported
}

// ReadText returns the clipboard text.
func (s *System) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := s.read()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

// WriteText replaces the clipboard text.
func (s *System) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
