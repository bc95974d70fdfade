// Package recovery persists per-unit checkpoints so an interrupted batch can
// resume without recomputing completed model/scenario combinations.
//
// A unit of work is atomic: its checkpoint is written only after every city
// of that (model, scenario) pair has been computed, via a temp-file-and-rename
// so a crash mid-write never leaves a half-written file that could pass for
// a completed unit. A file that exists but fails to decode is surfaced as
// [ErrCorruptCheckpoint], distinct from "no checkpoint", so prior work is
// never silently discarded.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// ErrCorruptCheckpoint marks a checkpoint file that exists but cannot be
// decoded. Callers must surface it rather than treat the unit as pending.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

const (
	checkpointExt = ".cpk"

	dirPerm  = 0o750
	filePerm = 0o600
)

// Manager owns the checkpoint files for one batch, all under a single
// dedicated directory that never collides with source data.
type Manager struct {
	dir string
	log *slog.Logger
}

// NewManager creates a checkpoint manager rooted at dir. The directory is
// created lazily on the first save.
func NewManager(dir string, logger *slog.Logger) *Manager {
	return &Manager{dir: dir, log: logger}
}

// Dir returns the directory the manager stores checkpoints in.
func (m *Manager) Dir() string { return m.dir }

// Has reports whether a checkpoint file exists for the unit. It says nothing
// about the file's integrity; Load decides between completed and corrupt.
func (m *Manager) Has(model, scenario string) bool {
	_, err := os.Stat(m.path(model, scenario))
	return err == nil
}

// Load reads and decodes the unit's checkpoint. A missing file is an ordinary
// error; an undecodable file wraps ErrCorruptCheckpoint.
func (m *Manager) Load(model, scenario string) ([]domain.ClimateIndexRecord, error) {
	path := m.path(model, scenario)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	records, err := decodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptCheckpoint, filepath.Base(path), err)
	}

	m.log.Debug("checkpoint restored",
		"model", model, "scenario", scenario, "records", len(records))
	return records, nil
}

// Save persists the unit's records atomically: the payload goes to a
// temporary file in the checkpoint directory, is synced, then renamed over
// the final name. Empty record sets are not persisted — an empty checkpoint
// would make a failed unit look completed on resume.
func (m *Manager) Save(model, scenario string, records []domain.ClimateIndexRecord) error {
	if len(records) == 0 {
		m.log.Debug("skipping empty checkpoint", "model", model, "scenario", scenario)
		return nil
	}

	if err := os.MkdirAll(m.dir, dirPerm); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	payload, err := encodePayload(records)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	path := m.path(model, scenario)
	tmp, err := os.CreateTemp(m.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}

	if err := writeAndSync(tmp, payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish checkpoint: %w", err)
	}

	m.log.Debug("checkpoint saved",
		"file", filepath.Base(path), "records", len(records), "bytes", len(payload))
	return nil
}

// Finalize removes every checkpoint of the batch unless keep is set. Called
// only after all units succeeded and the consolidated output is durable.
func (m *Manager) Finalize(keep bool) error {
	if keep {
		m.log.Info("keeping checkpoint files", "dir", m.dir)
		return nil
	}

	if _, err := os.Stat(m.dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("remove checkpoint dir: %w", err)
	}

	m.log.Debug("checkpoint files cleared", "dir", m.dir)
	return nil
}

func (m *Manager) path(model, scenario string) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s_%s%s", model, scenario, checkpointExt))
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return f.Chmod(filePerm)
}
