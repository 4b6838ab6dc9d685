package bootstrap

import (
	"context"
	"fmt"

	"quick-translate/internal/domain"
	"quick-translate/internal/session"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// settingsSource exposes the effective settings without binding them to the frontend.
type settingsSource struct {
	app *App
}

func (s settingsSource) Current() domain.Settings {
	return s.app.currentSettings()
}

// historySink appends to whichever history backend is currently open.
type historySink struct {
	app *App
}

func (h historySink) Append(item domain.HistoryItem) error {
	store := h.app.historyStore()
	if store == nil {
		return nil
	}
	return store.Append(item)
}

// runtimeClipboard uses the webview clipboard once the runtime is up and the
// OS clipboard before that.
type runtimeClipboard struct {
	app      *App
	fallback session.Clipboard
}

func (c runtimeClipboard) ReadText(ctx context.Context) (string, error) {
	rctx := c.app.runtimeContextOrNil()
	if rctx == nil {
		if c.fallback == nil {
			return "", nil
		}
		return c.fallback.ReadText(ctx)
	}
	text, err := wailsruntime.ClipboardGetText(rctx)
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

func (c runtimeClipboard) WriteText(ctx context.Context, text string) error {
	rctx := c.app.runtimeContextOrNil()
	if rctx == nil {
		if c.fallback == nil {
			return nil
		}
		return c.fallback.WriteText(ctx, text)
	}
	if err := wailsruntime.ClipboardSetText(rctx, text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// previewPayload is sent with the preview:open event.
type previewPayload struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// previewWindow drives the frontend preview panel and raises the window.
type previewWindow struct {
	app *App
}

func (p previewWindow) Open(_ context.Context, input, output string) error {
	p.app.emit(eventPreviewOpen, previewPayload{Input: input, Output: output})
	if rctx := p.app.runtimeContextOrNil(); rctx != nil {
		wailsruntime.WindowShow(rctx)
	}
	return nil
}

func (p previewWindow) Close(context.Context) error {
	p.app.emit(eventPreviewClose)
	return nil
}

// jobNotifier pushes job state changes to the frontend.
type jobNotifier struct {
	app *App
}

func (n jobNotifier) JobChanged(job domain.Job) {
	n.app.emit(eventJobState, job)
}
