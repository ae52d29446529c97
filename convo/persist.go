package convo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/becomeliminal/aide-go/core"
)

// stateDoc is the on-disk recovery document. It is written atomically after
// each completed turn and read once at startup.
type stateDoc struct {
	Messages      []core.TurnEntry `json:"messages"`
	LastPersisted time.Time        `json:"lastPersisted"`
}

// Persist serializes the full turn log to the recovery document. A crash
// after a completed turn then never loses already-answered exchanges. The
// write is atomic: a temp file in the same directory, renamed over the
// target.
func (m *Manager) Persist() error {
	if m.path == "" {
		return nil
	}

	m.mu.Lock()
	doc := stateDoc{
		Messages:      make([]core.TurnEntry, len(m.entries)),
		LastPersisted: time.Now().UTC(),
	}
	copy(doc.Messages, m.entries)
	m.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".convo-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}

	m.mu.Lock()
	m.lastPersisted = doc.LastPersisted
	m.mu.Unlock()
	return nil
}

// LastPersisted returns the timestamp of the most recent successful persist,
// zero if the log has never been persisted.
func (m *Manager) LastPersisted() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPersisted
}

// loadState reads the recovery document. Absence is not an error; it yields
// an empty log.
func loadState(path string) ([]core.TurnEntry, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("read conversation state: %w", err)
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse conversation state: %w", err)
	}
	return doc.Messages, doc.LastPersisted, nil
}
