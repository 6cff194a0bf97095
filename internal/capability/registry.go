package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"meatycapture/internal/logger"
)

const eventBufferSize = 256

// Request is one frontend call across the bridge.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Plugin  string          `json:"plugin"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Registry is the process-wide, ordered set of installed plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	index   map[string]Plugin
	sealed  bool
	events  *Events
	logger  logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		index:  make(map[string]Plugin),
		events: NewEvents(eventBufferSize, log),
		logger: log,
	}
}

// Events returns the bus plugins use to push notifications to the frontend.
func (r *Registry) Events() *Events {
	return r.events
}

// Register appends p. Names are unique and registration stops once the
// registry has been sealed.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %s: %w", p.Name(), ErrSealed)
	}
	if _, exists := r.index[p.Name()]; exists {
		return fmt.Errorf("register %s: %w", p.Name(), ErrPluginConflict)
	}

	r.plugins = append(r.plugins, p)
	r.index[p.Name()] = p

	r.logger.Debug("Registry", "plugin registered", map[string]interface{}{
		"plugin":   p.Name(),
		"position": len(r.plugins) - 1,
		"commands": p.Commands(),
	})
	return nil
}

// Seal freezes the plugin set.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Names returns plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[name]
	return ok
}

// Invoke dispatches req to its plugin.
func (r *Registry) Invoke(ctx context.Context, req Request) (any, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	r.mu.RLock()
	p, ok := r.index[req.Plugin]
	r.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%s: %w", req.Plugin, ErrCapabilityUnavailable)
		r.logger.Warning("Registry", "call to missing capability", map[string]interface{}{
			"request_id": req.ID,
			"plugin":     req.Plugin,
			"command":    req.Command,
		})
		return nil, err
	}

	start := time.Now()
	result, err := p.Invoke(ctx, req.Command, req.Payload)
	fields := map[string]interface{}{
		"request_id":  req.ID,
		"plugin":      req.Plugin,
		"command":     req.Command,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		r.logger.Error("Registry", err, fields)
		return nil, err
	}
	r.logger.Debug("Registry", "command completed", fields)
	return result, nil
}

// Shutdown releases plugin resources in reverse registration order, then
// stops the event bus.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	plugins := make([]Plugin, len(r.plugins))
	copy(plugins, r.plugins)
	r.mu.RUnlock()

	for i := len(plugins) - 1; i >= 0; i-- {
		if s, ok := plugins[i].(Shutdowner); ok {
			s.Shutdown()
			r.logger.Debug("Registry", "plugin shut down", map[string]interface{}{
				"plugin": plugins[i].Name(),
			})
		}
	}

	r.events.Shutdown()
}
