// Package bootstrap assembles the startup configuration and hands control
// to the host runtime, once per process.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"meatycapture/internal/appctx"
	"meatycapture/internal/capability"
	"meatycapture/internal/config"
	"meatycapture/internal/host"
	"meatycapture/internal/logger"
	"meatycapture/internal/platform"
	"meatycapture/internal/shutdown"
)

var ErrAlreadyStarted = errors.New("application already started")

// StartupError is the single failure kind of the bootstrapper. Stage names
// the step that failed.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Config is the startup configuration: built once, consumed by Run.
type Config struct {
	Class    platform.Class
	Context  *appctx.Context
	Registry *capability.Registry
}

// Build constructs a fresh configuration for class, registering plugins in
// plan order. Nothing is shared between builds.
func Build(class platform.Class, deps Deps) (*Config, error) {
	plan, err := Plan(class)
	if err != nil {
		return nil, &StartupError{Stage: "plan", Err: err}
	}

	reg := capability.NewRegistry(deps.Logger)
	deps.Events = reg.Events()

	for _, f := range plan {
		p, err := f.New(deps)
		if err == nil {
			err = reg.Register(p)
		}
		if err != nil {
			reg.Shutdown()
			return nil, &StartupError{Stage: "plugin " + f.Name, Err: err}
		}
	}

	return &Config{Class: class, Context: deps.Context, Registry: reg}, nil
}

const (
	stateNotStarted int32 = iota
	stateRunning
)

type Bootstrapper struct {
	class        platform.Class
	loadSettings func() (*config.Config, error)
	loadContext  func() (*appctx.Context, error)
	resolveDirs  func(identifier string) (appctx.Dirs, error)
	newRuntime   func(sm *shutdown.Manager, log logger.Logger) host.Runtime
	logger       logger.Logger
	state        atomic.Int32
}

type Option func(*Bootstrapper)

func WithClass(c platform.Class) Option {
	return func(b *Bootstrapper) { b.class = c }
}

func WithSettings(fn func() (*config.Config, error)) Option {
	return func(b *Bootstrapper) { b.loadSettings = fn }
}

func WithContext(fn func() (*appctx.Context, error)) Option {
	return func(b *Bootstrapper) { b.loadContext = fn }
}

func WithDirs(fn func(identifier string) (appctx.Dirs, error)) Option {
	return func(b *Bootstrapper) { b.resolveDirs = fn }
}

func WithRuntime(fn func(sm *shutdown.Manager, log logger.Logger) host.Runtime) Option {
	return func(b *Bootstrapper) { b.newRuntime = fn }
}

// WithLogger overrides the logger otherwise derived from settings.
func WithLogger(log logger.Logger) Option {
	return func(b *Bootstrapper) { b.logger = log }
}

func New(opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		class:        platform.Current(),
		loadSettings: defaultSettings,
		loadContext:  appctx.Load,
		resolveDirs:  appctx.SystemDirs,
		newRuntime: func(sm *shutdown.Manager, log logger.Logger) host.Runtime {
			return host.NewFyneRuntime(sm, log)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// defaultSettings reads settings.yaml from the per-user config directory
// when one exists.
func defaultSettings() (*config.Config, error) {
	dir := ""
	if base, err := os.UserConfigDir(); err == nil {
		if c, err := appctx.Load(); err == nil {
			dir = filepath.Join(base, c.Identifier)
		}
	}
	return config.Load(dir)
}

// Start builds the configuration and blocks in the host event loop. It
// returns nil once the loop exits normally and a *StartupError if the
// application could not be brought up.
func (b *Bootstrapper) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(stateNotStarted, stateRunning) {
		return ErrAlreadyStarted
	}

	settings, err := b.loadSettings()
	if err != nil {
		return &StartupError{Stage: "settings", Err: err}
	}
	log := b.logger
	if log == nil {
		log = settings.NewLogger()
	}

	appCtx, err := b.loadContext()
	if err != nil {
		return &StartupError{Stage: "context", Err: err}
	}
	dirs, err := b.resolveDirs(appCtx.Identifier)
	if err != nil {
		return &StartupError{Stage: "dirs", Err: err}
	}

	cfg, err := Build(b.class, Deps{
		Context:  appCtx,
		Settings: settings,
		Dirs:     dirs,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	cfg.Registry.Seal()

	log.Info("Bootstrap", "capabilities registered", map[string]interface{}{
		"platform": cfg.Class.String(),
		"plugins":  cfg.Registry.Names(),
		"version":  appCtx.Version,
	})

	sm := shutdown.NewManager(log)
	sm.Register("capabilities", cfg.Registry)
	sm.Listen()
	defer sm.Shutdown()

	if err := b.newRuntime(sm, log).Run(ctx, cfg.Context, cfg.Registry); err != nil {
		return &StartupError{Stage: "host", Err: err}
	}
	return nil
}

// FailurePolicy decides what happens to a startup error at the process
// boundary.
type FailurePolicy func(err error)

// ExitOnFailure logs the startup error and terminates with code 1.
func ExitOnFailure(log logger.Logger, exit func(code int)) FailurePolicy {
	return func(err error) {
		fields := map[string]interface{}{"diagnostic": "startup failed"}
		var se *StartupError
		if errors.As(err, &se) {
			fields["stage"] = se.Stage
		}
		log.Error("Bootstrap", err, fields)
		exit(1)
	}
}

// Main runs b and applies onFailure to any startup error.
func Main(ctx context.Context, b *Bootstrapper, onFailure FailurePolicy) {
	if err := b.Start(ctx); err != nil {
		onFailure(err)
	}
}
