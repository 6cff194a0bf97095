// Package capability is the bridge between the frontend and the system
// capabilities installed at startup. Plugins are registered once, in a
// fixed order, and then invoked by name.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrCapabilityUnavailable = errors.New("capability not available")
	ErrUnknownCommand        = errors.New("unknown command")
	ErrPluginConflict        = errors.New("plugin already registered")
	ErrSealed                = errors.New("registry is sealed")
	ErrInvalidPayload        = errors.New("invalid payload")
)

// Plugin grants the frontend one system capability.
type Plugin interface {
	Name() string
	Commands() []string
	Invoke(ctx context.Context, command string, payload json.RawMessage) (any, error)
}

// Shutdowner is implemented by plugins that hold processes, watchers or
// other resources that must be released when the application exits.
type Shutdowner interface {
	Shutdown()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode unmarshals a command payload into v and runs its validate tags.
// An empty payload decodes as an empty object.
func Decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// UnknownCommand builds the error returned for a command a plugin does not serve.
func UnknownCommand(plugin, command string) error {
	return fmt.Errorf("%s.%s: %w", plugin, command, ErrUnknownCommand)
}
