// Package policy supplies RateLimitPolicy snapshots to the lockout engine.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// Provider returns the policy snapshot to use for a single decision
type Provider interface {
	Current() models.RateLimitPolicy
}

// StaticProvider always returns the same snapshot
type StaticProvider struct {
	policy models.RateLimitPolicy
}

// NewStaticProvider validates p and wraps it in a StaticProvider
func NewStaticProvider(p models.RateLimitPolicy) (*StaticProvider, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{policy: p}, nil
}

func (s *StaticProvider) Current() models.RateLimitPolicy {
	return s.policy
}

// FileProvider serves a policy read from a TOML file layered over a base policy.
// Options missing from the file keep their base value.
type FileProvider struct {
	path    string
	base    models.RateLimitPolicy
	current atomic.Pointer[models.RateLimitPolicy]
	logger  *slog.Logger
}

// NewFileProvider loads path once and fails if the file is unreadable or invalid
func NewFileProvider(path string, base models.RateLimitPolicy, logger *slog.Logger) (*FileProvider, error) {
	fp := &FileProvider{path: path, base: base, logger: logger}
	if err := fp.Reload(); err != nil {
		return nil, err
	}
	return fp, nil
}

func (fp *FileProvider) Current() models.RateLimitPolicy {
	return *fp.current.Load()
}

// Reload re-reads the file. On error the previous snapshot stays active.
func (fp *FileProvider) Reload() error {
	p, err := LoadFile(fp.path, fp.base)
	if err != nil {
		return err
	}
	fp.current.Store(&p)
	return nil
}

// LoadFile decodes a TOML policy file on top of base and validates the result
func LoadFile(path string, base models.RateLimitPolicy) (models.RateLimitPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.RateLimitPolicy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	p := base
	if _, err := toml.Decode(string(data), &p); err != nil {
		return models.RateLimitPolicy{}, fmt.Errorf("failed to decode policy file %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return models.RateLimitPolicy{}, err
	}

	return p, nil
}

// Watch reloads the policy whenever the file is written or replaced.
// It blocks until ctx is cancelled.
func (fp *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen
	dir := filepath.Dir(fp.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(fp.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := fp.Reload(); err != nil {
				fp.logger.Error("policy reload rejected, keeping previous policy",
					slog.String("path", fp.path),
					slog.Any("error", err))
				continue
			}
			fp.logger.Info("policy reloaded", slog.String("path", fp.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fp.logger.Warn("policy watcher error", slog.Any("error", err))
		}
	}
}
