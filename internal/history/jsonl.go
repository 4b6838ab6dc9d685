package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"

	"quick-translate/internal/domain"
)

// JSONLStore keeps one JSON object per line, oldest first on disk.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONLStore creates a line-delimited JSON history file store.
func NewJSONLStore(path string) *JSONLStore {
	return &JSONLStore{path: path}
}

// Append adds item and drops the oldest lines beyond MaxItems.
func (s *JSONLStore) Append(item domain.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	line, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode history item: %w", err)
	}

	fh, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := fh.Write(append(line, '\n')); err != nil {
		_ = fh.Close()
		return fmt.Errorf("append history: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}

	return s.compact()
}

// List returns up to limit items, newest first. Malformed lines are skipped.
func (s *JSONLStore) List(limit int) ([]domain.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, _, err := s.read()
	if err != nil {
		return nil, err
	}

	items = lo.Reverse(items)
	if n := clampLimit(limit); len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// Close is a no-op; the file is opened per operation.
func (s *JSONLStore) Close() error {
	return nil
}

// historyLine also accepts the created_at key written by the Tauri release.
type historyLine struct {
	domain.HistoryItem
	SnakeCreatedAt *int64 `json:"created_at"`
}

// read parses the file and returns valid items plus their raw lines.
func (s *JSONLStore) read() ([]domain.HistoryItem, [][]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.HistoryItem{}, nil, nil
		}
		return nil, nil, fmt.Errorf("read history: %w", err)
	}

	items := make([]domain.HistoryItem, 0, MaxItems)
	lines := make([][]byte, 0, MaxItems)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if strings.TrimSpace(string(raw)) == "" {
			continue
		}
		var line historyLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}
		item := line.HistoryItem
		if item.CreatedAt == 0 && line.SnakeCreatedAt != nil {
			item.CreatedAt = *line.SnakeCreatedAt
		}
		items = append(items, item)
		lines = append(lines, append([]byte(nil), raw...))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan history: %w", err)
	}
	return items, lines, nil
}

// compact rewrites the file with the newest MaxItems valid lines.
func (s *JSONLStore) compact() error {
	_, lines, err := s.read()
	if err != nil {
		return err
	}
	if len(lines) <= MaxItems {
		return nil
	}

	keep := lines[len(lines)-MaxItems:]
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.jsonl")
	if err != nil {
		return fmt.Errorf("create history temp: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, line := range keep {
		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write history temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close history temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
