package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/interfaces"
)

// Service is the live configuration holder: one atomic value behind a
// RWMutex, swapped whole on reload or update, with subscriber fan-out on
// every successful swap.
type Service struct {
	logger    arbor.ILogger
	configDir string

	mu     sync.RWMutex
	config *common.Config

	subMu       sync.Mutex
	subscribers map[string]interfaces.ConfigChangeCallback

	watcher *watcher
}

// NewService creates a config service holding an already-loaded configuration.
// configDir is the hierarchy root used by reloads and the file watcher.
func NewService(config *common.Config, configDir string, logger arbor.ILogger) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Service{
		logger:      logger,
		configDir:   configDir,
		config:      config,
		subscribers: map[string]interfaces.ConfigChangeCallback{},
	}, nil
}

// GetConfig returns the current configuration. Callers must treat the value
// as read-only; mutation goes through UpdateConfig.
func (s *Service) GetConfig() *common.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// GetMaskedConfig returns a copy with secrets replaced, safe for logs and
// diagnostics.
func (s *Service) GetMaskedConfig() *common.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Masked()
}

// ReloadConfig re-reads the file hierarchy. On any load or validation
// failure the previous configuration stays in force and no subscriber is
// invoked.
func (s *Service) ReloadConfig() error {
	if s.configDir == "" {
		return common.NewConfigLoadError("no configuration directory available for reload", nil)
	}

	newConfig, err := common.LoadHierarchy(s.configDir)
	if err != nil {
		s.logger.Warn().Err(err).Str("dir", s.configDir).Msg("Configuration reload failed, previous value stays in force")
		return err
	}

	s.swap(newConfig)
	s.logger.Info().Str("dir", s.configDir).Msg("Configuration reloaded")
	return nil
}

// UpdateConfig deep-merges a partial tree onto the live configuration.
// Refused in prod; a merge that fails validation leaves the live value
// untouched.
func (s *Service) UpdateConfig(overlay map[string]interface{}) error {
	s.mu.RLock()
	current := s.config
	s.mu.RUnlock()

	if current.IsProduction() {
		return common.NewConfigUpdateError("runtime configuration updates are disabled in prod")
	}

	merged, err := common.ApplyOverlay(current, overlay)
	if err != nil {
		return err
	}
	if err := merged.Validate(); err != nil {
		return err
	}

	s.swap(merged)
	s.logger.Info().Msg("Configuration updated at runtime")
	return nil
}

// Subscribe registers a change callback under a name, replacing any previous
// callback with that name. The returned function deregisters it.
func (s *Service) Subscribe(name string, callback interfaces.ConfigChangeCallback) func() {
	s.subMu.Lock()
	s.subscribers[name] = callback
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, name)
		s.subMu.Unlock()
	}
}

// swap installs the new configuration and notifies every subscriber exactly
// once. A panicking subscriber is logged and skipped; it never unwinds into
// the swap.
func (s *Service) swap(newConfig *common.Config) {
	s.mu.Lock()
	s.config = newConfig
	s.mu.Unlock()

	s.subMu.Lock()
	names := make([]string, 0, len(s.subscribers))
	for name := range s.subscribers {
		names = append(names, name)
	}
	sort.Strings(names)
	callbacks := make([]interfaces.ConfigChangeCallback, 0, len(names))
	for _, name := range names {
		callbacks = append(callbacks, s.subscribers[name])
	}
	s.subMu.Unlock()

	for i, callback := range callbacks {
		s.notify(names[i], callback, newConfig)
	}
}

func (s *Service) notify(name string, callback interfaces.ConfigChangeCallback, config *common.Config) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("subscriber", name).Msgf("Config subscriber panicked: %v", r)
		}
	}()
	callback(config)
}
