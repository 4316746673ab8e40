package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/justestif/go-overachiever/internal/steam"
)

// Common errors.
var (
	// ErrStore wraps every failure reported by the Store.
	ErrStore = errors.New("store error")

	// ErrAuthRequired is returned when a flow starts without usable credentials.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotConfigured means no Steam API key (and therefore no Source) is available.
	ErrNotConfigured = fmt.Errorf("%w: Steam API key not configured", ErrAuthRequired)

	// ErrNotAuthenticated means the session carries no Steam ID.
	ErrNotAuthenticated = fmt.Errorf("%w: not logged in to Steam", ErrAuthRequired)
)

// Error kinds reported by Kind.
const (
	KindAuthRequired    = "auth_required"
	KindTransport       = "transport"
	KindDataUnavailable = "data_unavailable"
	KindStore           = "store"
	KindCanceled        = "canceled"
	KindUnknown         = "unknown"
)

// Kind classifies err into one of the Kind* constants for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, steam.ErrTransport):
		return KindCanceled
	case errors.Is(err, steam.ErrTransport), errors.Is(err, steam.ErrInvalidAPIKey):
		return KindTransport
	case errors.Is(err, steam.ErrDataUnavailable):
		return KindDataUnavailable
	case errors.Is(err, ErrStore):
		return KindStore
	default:
		return KindUnknown
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
