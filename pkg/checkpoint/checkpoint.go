package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"igfetch/pkg/logger"
	"igfetch/pkg/storage"
)

const currentVersion = 1

// Checkpoint records how far a timeline walk got
type Checkpoint struct {
	Username          string          `json:"username"`
	LastProcessedPage int             `json:"last_processed_page"`
	EndCursor         string          `json:"end_cursor"`
	Seen              map[string]bool `json:"seen"` // shortcode -> true
	TotalPosts        int             `json:"total_posts"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

// Cursor returns the saved end cursor, or nil when the walk should start over
func (cp *Checkpoint) Cursor() *string {
	if cp == nil || cp.EndCursor == "" {
		return nil
	}
	c := cp.EndCursor
	return &c
}

// HasSeen reports whether the post was already recorded
func (cp *Checkpoint) HasSeen(shortcode string) bool {
	return cp != nil && cp.Seen[shortcode]
}

func (cp *Checkpoint) fields() map[string]interface{} {
	return map[string]interface{}{
		"username": cp.Username,
		"page":     cp.LastProcessedPage,
		"posts":    cp.TotalPosts,
		"cursor":   cp.EndCursor,
	}
}

// Manager owns the checkpoint file of one username
type Manager struct {
	path string
	log  logger.Logger
}

// NewManager creates a manager storing <dir>/<username>.checkpoint.json.
// An empty dir means <DataDirectory>/checkpoints.
func NewManager(dir, username string, log logger.Logger) (*Manager, error) {
	if dir == "" {
		data, err := DataDirectory()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(data, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	name := filepath.Base(username) + ".checkpoint.json"
	return &Manager{path: filepath.Join(dir, name), log: log}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string { return m.path }

// Exists reports whether a checkpoint file is present
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Create starts a fresh checkpoint and writes it out
func (m *Manager) Create(username string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Username:  username,
		Seen:      map[string]bool{},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}
	if err := m.Save(cp); err != nil {
		return nil, err
	}
	m.log.InfoWithFields("Checkpoint created", map[string]interface{}{"username": username, "path": m.path})
	return cp, nil
}

// Load reads the checkpoint. A missing file yields nil, nil.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp := &Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("checkpoint %s is corrupt: %w", m.path, err)
	}
	if cp.Version > currentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, currentVersion)
	}
	if cp.Seen == nil {
		cp.Seen = map[string]bool{}
	}
	m.log.InfoWithFields("Checkpoint loaded", cp.fields())
	return cp, nil
}

// LoadOrCreate returns the saved checkpoint or a fresh one
func (m *Manager) LoadOrCreate(username string) (*Checkpoint, error) {
	cp, err := m.Load()
	if err != nil || cp != nil {
		return cp, err
	}
	return m.Create(username)
}

// Save replaces the checkpoint file atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	_, err = storage.WriteFileAtomic(m.path, func(w io.Writer) (int64, error) {
		n, werr := w.Write(data)
		return int64(n), werr
	})
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	m.log.DebugWithFields("Checkpoint saved", cp.fields())
	return nil
}

// Delete removes the checkpoint file; a missing file is not an error
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.log.DebugWithFields("Checkpoint deleted", map[string]interface{}{"path": m.path})
	return nil
}

// RecordPage stores a finished page: its end cursor and the posts it held.
// It returns the shortcodes that had not been recorded before.
func (m *Manager) RecordPage(cp *Checkpoint, pageNum int, endCursor string, shortcodes []string) ([]string, error) {
	var fresh []string
	for _, code := range shortcodes {
		if code == "" || cp.Seen[code] {
			continue
		}
		cp.Seen[code] = true
		fresh = append(fresh, code)
	}
	cp.TotalPosts += len(fresh)
	cp.EndCursor = endCursor
	cp.LastProcessedPage = pageNum
	return fresh, m.Save(cp)
}

// DataDirectory returns the igfetch data directory, creating it.
// XDG_DATA_HOME wins when set; otherwise the user config directory is used.
func DataDirectory() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		var err error
		if base, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("failed to locate data directory: %w", err)
		}
	}
	dir := filepath.Join(base, "igfetch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
