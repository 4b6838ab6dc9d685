package domain

import (
	"strings"
	"time"
)

// JobStatus tracks the lifecycle of a single translation job.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusPending   JobStatus = "pending"
	JobStatusStreaming JobStatus = "streaming"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// PasteMode selects what happens with a finished translation.
type PasteMode string

const (
	PasteModePopup     PasteMode = "popup"
	PasteModeClipboard PasteMode = "clipboard"
)

// HistoryBackend selects the persistence format for translation history.
type HistoryBackend string

const (
	HistoryBackendJSONL  HistoryBackend = "jsonl"
	HistoryBackendSQLite HistoryBackend = "sqlite"
)

// AutoDetect is the source language value that lets the engine detect the language.
const AutoDetect = "auto"

// Settings contains user-selectable runtime configuration.
type Settings struct {
	Engine       string          `json:"engine"`
	Plamo        PlamoSettings   `json:"plamo"`
	StylePreset  string          `json:"stylePreset"`
	GlossaryPath string          `json:"glossaryPath,omitempty"`
	TimeoutMs    int64           `json:"timeoutMs"`
	DoubleCopy   DoubleCopy      `json:"doubleCopy"`
	History      HistorySettings `json:"history"`
}

// PlamoSettings configures the plamo-translate engine invocation.
type PlamoSettings struct {
	Precision string `json:"precision"`
	Server    bool   `json:"server"`
	BinPath   string `json:"binPath,omitempty"`
}

// DoubleCopy configures the quick-translate gesture and its completion behavior.
type DoubleCopy struct {
	Enabled   bool      `json:"enabled"`
	PasteMode PasteMode `json:"pasteMode"`
	AutoCopy  bool      `json:"autoCopy"`
	Shortcut  string    `json:"shortcut,omitempty"`
}

// HistorySettings selects where history items are kept.
type HistorySettings struct {
	Backend HistoryBackend `json:"backend"`
}

// Timeout returns the advisory engine timeout.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Input is the text and language pair currently staged in the input field.
type Input struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

// IsBlank reports whether the staged text has no translatable content.
func (in Input) IsBlank() bool {
	return strings.TrimSpace(in.Text) == ""
}

// SourceLang returns nil for auto-detect, otherwise the explicit source language.
func (in Input) SourceLang() *string {
	from := strings.TrimSpace(in.From)
	if from == "" || strings.EqualFold(from, AutoDetect) {
		return nil
	}
	return &from
}

// TranslateRequest is the immutable snapshot sent to the engine gateway.
type TranslateRequest struct {
	ID        string  `json:"id"`
	Input     string  `json:"input"`
	From      *string `json:"from"`
	To        string  `json:"to"`
	Precision *string `json:"precision"`
	Style     *string `json:"style"`
	Glossary  *string `json:"glossary"`
	TimeoutMs int64   `json:"timeoutMs,omitempty"`
}

// AbortRequest asks the engine gateway to stop one job.
type AbortRequest struct {
	ID string `json:"id"`
}

// Completion is the terminal payload published for each job.
type Completion struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// DoubleCopySignal is raised when the user copies text twice in quick succession.
type DoubleCopySignal struct {
	Text string `json:"text,omitempty"`
}

// Job stores the current job identity, request snapshot, and streamed output.
type Job struct {
	ID         string           `json:"id"`
	Status     JobStatus        `json:"status"`
	Request    TranslateRequest `json:"request"`
	Output     string           `json:"output"`
	Progress   *float64         `json:"progress,omitempty"`
	Error      string           `json:"error,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	StartedAt  time.Time        `json:"startedAt,omitempty"`
	FinishedAt time.Time        `json:"finishedAt,omitempty"`
}

// HistoryItem is one successful translation kept for later recall.
type HistoryItem struct {
	ID        string `json:"id"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	CreatedAt int64  `json:"createdAt"`
}

// StringPtr returns nil for blank values and a trimmed copy otherwise.
func StringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
