// Package host owns the windowing runtime and its blocking event loop.
package host

import (
	"context"
	"errors"

	"meatycapture/internal/appctx"
	"meatycapture/internal/capability"
)

var ErrHostStart = errors.New("host runtime failed to start")

// Runtime blocks in the event loop until the application quits. It only
// returns an error when the loop could not be entered.
type Runtime interface {
	Run(ctx context.Context, app *appctx.Context, reg *capability.Registry) error
}
