package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of write events editors and atomic
// renames produce into a single reload.
const debounceWindow = 2 * time.Second

type watcher struct {
	fw     *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// StartWatching begins debounced file watching on the configuration
// directory and its sites.d subdirectory. Each settled burst of changes
// triggers one ReloadConfig; a failed reload keeps the previous value.
func (s *Service) StartWatching(ctx context.Context) error {
	if s.configDir == "" {
		return fmt.Errorf("no configuration directory to watch")
	}
	if s.watcher != nil {
		return fmt.Errorf("configuration watcher already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(s.configDir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", s.configDir, err)
	}
	// sites.d is optional; absence is not an error
	if err := fw.Add(filepath.Join(s.configDir, "sites.d")); err == nil {
		s.logger.Debug().Msg("Watching sites.d for configuration changes")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &watcher{fw: fw, cancel: cancel, done: make(chan struct{})}
	s.watcher = w

	go s.watchLoop(watchCtx, w)
	s.logger.Info().Str("dir", s.configDir).Msg("Configuration hot reload enabled")
	return nil
}

// StopWatching stops the watcher and waits for the loop to drain
func (s *Service) StopWatching() {
	if s.watcher == nil {
		return
	}
	s.watcher.cancel()
	s.watcher.fw.Close()
	<-s.watcher.done
	s.watcher = nil
	s.logger.Info().Msg("Configuration watcher stopped")
}

func (s *Service) watchLoop(ctx context.Context, w *watcher) {
	defer close(w.done)

	var timerMu sync.Mutex
	var timer *time.Timer

	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceWindow, func() {
			if ctx.Err() != nil {
				return
			}
			if err := s.ReloadConfig(); err != nil {
				s.logger.Warn().Err(err).Msg("Hot reload rejected")
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Configuration file changed")
			schedule()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("Configuration watcher error")
		}
	}
}

func isConfigFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
