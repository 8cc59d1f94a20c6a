// Package ledger implements the append-only PnL ledger on a local JSONL file.
package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/arbot-dev/arbot/internal/domain"
)

// FileLedger appends one JSON object per line to a local file. Writes are
// serialized through a mutex and synced to disk before Append returns, so a
// crash immediately after a successful Append cannot lose the entry.
type FileLedger struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFile opens (creating if necessary) the ledger file at path.
func OpenFile(path string) (*FileLedger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", path, err)
	}
	return &FileLedger{path: path, f: f}, nil
}

// Append writes the entry as one JSON line and fsyncs.
func (l *FileLedger) Append(_ context.Context, entry domain.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger: marshal entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("ledger: append to %q: %w", l.path, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("ledger: sync %q: %w", l.path, err)
	}
	return nil
}

// ReadAll returns every entry in append order. Used to reconstruct the
// cumulative PnL at startup.
func (l *FileLedger) ReadAll(_ context.Context) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: open %q for read: %w", l.path, err)
	}
	defer f.Close()

	var entries []domain.LedgerEntry
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e domain.LedgerEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("ledger: parse %q line %d: %w", l.path, line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan %q: %w", l.path, err)
	}
	return entries, nil
}

// Close releases the underlying file handle.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

var _ domain.Ledger = (*FileLedger)(nil)
