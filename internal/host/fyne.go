package host

import (
	"context"
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"meatycapture/internal/appctx"
	"meatycapture/internal/capability"
	"meatycapture/internal/logger"
	"meatycapture/internal/shutdown"
)

// Frontend builds the content of a window. It receives the registry so
// the UI can reach the installed capabilities.
type Frontend func(win appctx.Window, app *appctx.Context, reg *capability.Registry) fyne.CanvasObject

type FyneRuntime struct {
	newApp   func(id string) fyne.App
	frontend Frontend
	shutdown *shutdown.Manager
	logger   logger.Logger
}

type Option func(*FyneRuntime)

// WithAppFactory replaces fyne's app constructor, e.g. with the headless
// test driver.
func WithAppFactory(fn func(id string) fyne.App) Option {
	return func(r *FyneRuntime) { r.newApp = fn }
}

func WithFrontend(fn Frontend) Option {
	return func(r *FyneRuntime) { r.frontend = fn }
}

func NewFyneRuntime(sm *shutdown.Manager, log logger.Logger, opts ...Option) *FyneRuntime {
	r := &FyneRuntime{
		newApp:   fyneapp.NewWithID,
		frontend: StatusView,
		shutdown: sm,
		logger:   log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *FyneRuntime) Run(ctx context.Context, c *appctx.Context, reg *capability.Registry) error {
	if c == nil {
		return fmt.Errorf("%w: missing application context", ErrHostStart)
	}

	a, err := r.open(c, reg)
	if err != nil {
		return err
	}

	r.shutdown.Register("host", shutdown.Func(func() {
		fyne.Do(a.Quit)
	}))

	go func() {
		select {
		case <-ctx.Done():
			r.logger.Info("Host", "context cancelled, quitting", nil)
			r.shutdown.Shutdown()
		case <-r.shutdown.Context().Done():
		}
	}()

	r.logger.Info("Host", "entering event loop", map[string]interface{}{
		"identifier": c.Identifier,
		"windows":    len(c.Windows),
	})
	a.Run()

	r.logger.Info("Host", "event loop exited", nil)
	r.shutdown.Shutdown()
	return nil
}

// open creates the app and its windows. Drivers panic when no display is
// available; that is reported as a startup error.
func (r *FyneRuntime) open(c *appctx.Context, reg *capability.Registry) (a fyne.App, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a = nil
			err = fmt.Errorf("%w: %v", ErrHostStart, rec)
		}
	}()

	a = r.newApp(c.Identifier)
	if a == nil {
		return nil, fmt.Errorf("%w: no application driver", ErrHostStart)
	}

	master := c.MainWindow().Label
	for _, def := range c.Windows {
		title := def.Title
		if title == "" {
			title = c.ProductName
		}

		w := a.NewWindow(title)
		if def.Width > 0 && def.Height > 0 {
			w.Resize(fyne.NewSize(def.Width, def.Height))
		}
		w.SetFixedSize(!def.Resizable)
		if def.Center {
			w.CenterOnScreen()
		}
		if def.Label == master {
			w.SetMaster()
			w.SetCloseIntercept(r.closeRequested(def.Label))
		}

		label := def.Label
		w.SetOnClosed(func() {
			r.logger.Debug("Host", "window closed", map[string]interface{}{"window": label})
		})
		w.SetContent(r.frontend(def, c, reg))
		w.Show()
	}

	return a, nil
}

// closeRequested runs the shutdown sequence when the master window is
// closed; the sequence quits the app, which closes every window.
func (r *FyneRuntime) closeRequested(label string) func() {
	return func() {
		r.logger.Info("Host", "close requested", map[string]interface{}{"window": label})
		go r.shutdown.Shutdown()
	}
}

// StatusView is the content shown until a frontend is attached: product
// name, version and the installed capabilities.
func StatusView(_ appctx.Window, c *appctx.Context, reg *capability.Registry) fyne.CanvasObject {
	title := widget.NewLabelWithStyle(c.ProductName, fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	version := widget.NewLabelWithStyle("v"+c.Version, fyne.TextAlignCenter, fyne.TextStyle{Italic: true})
	caps := widget.NewLabel("Capabilities: " + strings.Join(reg.Names(), ", "))

	return container.NewCenter(container.NewVBox(title, version, caps))
}
