package interfaces

import (
	"context"

	"github.com/scriptorium-dev/scriptorium/internal/common"
)

// ConfigChangeCallback is invoked once per successful configuration swap
// with the new value. Panics are isolated and never reach the swap.
type ConfigChangeCallback func(config *common.Config)

// ConfigService - interface for the live configuration holder
type ConfigService interface {
	// GetConfig returns the current configuration. The returned value is
	// shared and must be treated as read-only.
	GetConfig() *common.Config
	GetMaskedConfig() *common.Config

	// ReloadConfig re-reads the file hierarchy; on validation failure the
	// previous value stays in force.
	ReloadConfig() error

	// UpdateConfig deep-merges a partial tree onto the live value. Refused
	// in prod.
	UpdateConfig(overlay map[string]interface{}) error

	// Subscribe registers a change callback under a name; the returned
	// function deregisters it.
	Subscribe(name string, callback ConfigChangeCallback) func()

	// StartWatching begins debounced file watching for hot reload.
	StartWatching(ctx context.Context) error
	StopWatching()
}
