// Package statefile implements the persistence gateway as two versioned JSON
// files, one for indicator state and one for order state. Writes go through a
// temp file and rename so a crash mid-save never leaves a truncated blob.
package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
)

// Store implements ports.StateStore on the local filesystem.
type Store struct {
	indicatorPath string
	orderPath     string
	logger        ports.Logger
}

// Config holds the file locations for the two state blobs.
type Config struct {
	IndicatorPath string
	OrderPath     string
	Logger        ports.Logger
}

// New creates the store and its parent directories.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for state store")
	}
	if cfg.IndicatorPath == "" || cfg.OrderPath == "" {
		return nil, fmt.Errorf("%w: state file paths must be set", ports.ErrConfigurationError)
	}
	for _, p := range []string{cfg.IndicatorPath, cfg.OrderPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory for %s: %w", p, err)
		}
	}
	return &Store{
		indicatorPath: cfg.IndicatorPath,
		orderPath:     cfg.OrderPath,
		logger:        cfg.Logger,
	}, nil
}

// LoadIndicatorState reads the indicator snapshot. Returns ErrNotFound when
// no file exists yet and ErrStateCorrupted when the blob does not parse.
func (s *Store) LoadIndicatorState(ctx context.Context) (*ports.IndicatorSnapshot, error) {
	var snap ports.IndicatorSnapshot
	if err := s.load(ctx, s.indicatorPath, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveIndicatorState persists the indicator snapshot.
func (s *Store) SaveIndicatorState(ctx context.Context, snap *ports.IndicatorSnapshot) error {
	return s.save(ctx, s.indicatorPath, snap)
}

// LoadOrderState reads the order snapshot with the same error contract as
// LoadIndicatorState.
func (s *Store) LoadOrderState(ctx context.Context) (*ports.OrderSnapshot, error) {
	var snap ports.OrderSnapshot
	if err := s.load(ctx, s.orderPath, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveOrderState persists the order snapshot.
func (s *Store) SaveOrderState(ctx context.Context, snap *ports.OrderSnapshot) error {
	return s.save(ctx, s.orderPath, snap)
}

func (s *Store) load(ctx context.Context, path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ports.ErrNotFound, path)
		}
		return fmt.Errorf("reading state file %s: %w", path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s is empty", ports.ErrStateCorrupted, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn(ctx, "State file does not parse, treating as corrupt", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		return fmt.Errorf("%w: %s: %v", ports.ErrStateCorrupted, path, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing state file %s: %w", path, err)
	}
	s.logger.Debug(ctx, "State persisted", map[string]interface{}{"path": path, "bytes": len(data)})
	return nil
}
