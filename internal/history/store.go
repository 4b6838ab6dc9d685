package history

import (
	"fmt"
	"path/filepath"

	"quick-translate/internal/domain"
)

// MaxItems bounds how many translations are retained.
const MaxItems = 200

const (
	jsonlFileName  = "history.jsonl"
	sqliteFileName = "history.db"
)

// Store persists successful translations, newest first on read.
type Store interface {
	Append(item domain.HistoryItem) error
	List(limit int) ([]domain.HistoryItem, error)
	Close() error
}

// Open returns the store for backend rooted in dir.
func Open(backend domain.HistoryBackend, dir string) (Store, error) {
	switch backend {
	case domain.HistoryBackendJSONL, "":
		return NewJSONLStore(filepath.Join(dir, jsonlFileName)), nil
	case domain.HistoryBackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, sqliteFileName))
	default:
		return nil, fmt.Errorf("unknown history backend: %s", backend)
	}
}

// clampLimit maps non-positive or oversized limits onto MaxItems.
func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxItems {
		return MaxItems
	}
	return limit
}
