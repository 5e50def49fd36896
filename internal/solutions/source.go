package solutions

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/cementai/plant-core/internal/metrics"
	"github.com/cementai/plant-core/pkg/logger"
	"github.com/cementai/plant-core/pkg/models"
)

// Source finds the solutions file among candidate paths and caches the
// parsed result until the file changes.
type Source struct {
	paths []string

	mu     sync.Mutex
	cached *cacheEntry
	now    func() time.Time
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
	sol     *models.OptimalSolution
}

// NewSource creates a source searching paths in order.
func NewSource(paths []string) *Source {
	return &Source{
		paths: append([]string(nil), paths...),
		now:   time.Now,
	}
}

// Paths returns the candidate paths.
func (s *Source) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Locate returns the first candidate path that exists.
func (s *Source) Locate() (string, os.FileInfo, error) {
	for _, p := range s.paths {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, info, nil
		}
	}

	cwd, _ := os.Getwd()
	logger.Error("solutions file not found", "cwd", cwd, "tried", s.paths)
	if entries, err := os.ReadDir("notebooks"); err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		logger.Error("contents of notebooks/", "files", names)
	}
	return "", nil, &NotFoundError{Cwd: cwd, Tried: s.Paths()}
}

// Load returns the rank-1 solution, re-reading the file only when its
// path, size or modification time changed since the last load.
func (s *Source) Load() (*models.OptimalSolution, error) {
	path, info, err := s.Locate()
	if err != nil {
		metrics.SolutionLoads.WithLabelValues("not_found").Inc()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.cached; c != nil && c.path == path && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		metrics.SolutionLoads.WithLabelValues("cached").Inc()
		return c.sol, nil
	}

	logger.Info("reading solutions file", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.SolutionLoads.WithLabelValues("not_found").Inc()
			cwd, _ := os.Getwd()
			return nil, &NotFoundError{Cwd: cwd, Tried: s.Paths()}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	sol, err := Parse(data)
	if err != nil {
		metrics.SolutionLoads.WithLabelValues("invalid").Inc()
		logger.Error("invalid solutions file", "path", path, "error", err)
		return nil, err
	}
	sol.SourcePath = path
	sol.LoadedAt = s.now()

	s.cached = &cacheEntry{path: path, size: info.Size(), modTime: info.ModTime(), sol: sol}
	metrics.SolutionLoads.WithLabelValues("parsed").Inc()
	return sol, nil
}

// Invalidate drops the cached solution.
func (s *Source) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
