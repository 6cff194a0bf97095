package shell

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/storage"
)

var errNoApp = errors.New("no running application to open with")

// openTarget converts an allowed target into the URL handed to the
// system handler. Absolute paths become file URIs.
func openTarget(target string) (*url.URL, error) {
	if filepath.IsAbs(target) {
		return url.Parse(storage.NewFileURI(target).String())
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %q", ErrForbidden, target)
	}
	switch {
	case (u.Scheme == "http" || u.Scheme == "https") && u.Host != "":
		return u, nil
	case u.Scheme == "mailto" && u.Opaque != "":
		return u, nil
	default:
		return nil, fmt.Errorf("%w: cannot open %q", ErrForbidden, target)
	}
}

// fyneOpen opens u through the running fyne app.
func fyneOpen(_ context.Context, u *url.URL) error {
	a := fyne.CurrentApp()
	if a == nil {
		return errNoApp
	}
	if err := a.OpenURL(u); err != nil {
		return fmt.Errorf("open %s: %w", u, err)
	}
	return nil
}
