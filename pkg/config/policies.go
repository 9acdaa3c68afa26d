package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/monay/backend-core/pkg/middleware"
	"github.com/monay/backend-core/pkg/observability"
)

// policyFile is the on-disk shape of the rate-limit tier overrides.
type policyFile struct {
	Policies map[string]policyEntry `yaml:"policies"`
}

type policyEntry struct {
	Window  string         `yaml:"window"`
	Max     int            `yaml:"max"`
	RoleMax map[string]int `yaml:"role_max"`
	Message string         `yaml:"message"`
	KeyByIP bool           `yaml:"key_by_ip"`
	Headers *bool          `yaml:"headers"`
}

// LoadPolicies reads the policy file and merges it over the built-in tiers.
// Unknown tier names are rejected so a typo cannot silently leave a tier on
// its defaults.
func LoadPolicies(path string) (middleware.PolicySet, error) {
	policies := middleware.DefaultPolicies()

	data, err := os.ReadFile(path)
	if err != nil {
		return policies, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return policies, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for name, entry := range file.Policies {
		var target *middleware.Policy
		switch name {
		case "general":
			target = &policies.General
		case "sensitive":
			target = &policies.Sensitive
		case "metrics":
			target = &policies.Metrics
		case "export":
			target = &policies.Export
		case "batch":
			target = &policies.Batch
		default:
			return policies, fmt.Errorf("unknown policy %q in %s", name, path)
		}
		if err := entry.apply(target); err != nil {
			return policies, fmt.Errorf("policy %q: %w", name, err)
		}
	}
	return policies, nil
}

func (e policyEntry) apply(p *middleware.Policy) error {
	if e.Window != "" {
		window, err := time.ParseDuration(e.Window)
		if err != nil {
			return fmt.Errorf("invalid window %q: %w", e.Window, err)
		}
		if window <= 0 {
			return fmt.Errorf("window must be positive")
		}
		p.Window = window
	}
	if e.Max != 0 {
		if e.Max < 0 {
			return fmt.Errorf("max must be positive")
		}
		p.Max = e.Max
	}
	if e.RoleMax != nil {
		p.RoleMax = e.RoleMax
	}
	if e.Message != "" {
		p.Message = e.Message
	}
	if e.KeyByIP {
		p.KeyByIP = true
	}
	if e.Headers != nil {
		p.Headers = *e.Headers
	}
	return nil
}

// WatchPolicies reloads the policy file whenever it changes and pushes the
// merged tier set through onChange. A file that fails to parse keeps the
// previous tiers in effect. Blocks until ctx is done.
func WatchPolicies(ctx context.Context, path string, logger *observability.Logger, onChange func(middleware.PolicySet)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and config mounts replace
	// the file, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			policies, err := LoadPolicies(path)
			if err != nil {
				logger.WithError(err).Warn("policy reload failed, keeping previous tiers")
				continue
			}
			logger.WithField("path", path).Info("rate limit policies reloaded")
			onChange(policies)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("policy watcher error")
		}
	}
}
