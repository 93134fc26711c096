package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"igharvest/pkg/logger"
	"igharvest/pkg/scraper"
)

// Store persists run reports as JSON files
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a store writing to path, creating its directory
func NewStore(path string, log logger.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("results path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
	}
	return &Store{path: path, logger: logger.OrNop(log)}, nil
}

// Path returns the report file location
func (s *Store) Path() string {
	return s.path
}

// Load reads a previous report. It returns nil without error when none exists.
func (s *Store) Load() (*scraper.Report, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer file.Close()

	var report scraper.Report
	if err := json.NewDecoder(file).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode results file %s: %w", s.path, err)
	}
	report.Summarize()

	s.logger.InfoWithFields("Previous results loaded", map[string]interface{}{
		"path":       s.path,
		"run_id":     report.RunID,
		"shortcodes": len(report.Shortcodes),
		"users":      len(report.Users),
	})

	return &report, nil
}

// Save writes the report atomically through a temporary file
func (s *Store) Save(report *scraper.Report) error {
	if report == nil {
		return errors.New("nil report")
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary results file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync results file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close results file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace results file: %w", err)
	}

	s.logger.DebugWithFields("Results saved", map[string]interface{}{
		"path":   s.path,
		"run_id": report.RunID,
		"total":  report.Summary.Total,
	})

	return nil
}

// Backup copies the current report next to itself with a .backup suffix.
// It is a no-op when there is nothing to back up.
func (s *Store) Backup() error {
	src, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open results for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.path + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy results to backup: %w", err)
	}

	s.logger.Debug("Results backed up")
	return nil
}
