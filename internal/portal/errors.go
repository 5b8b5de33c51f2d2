package portal

import (
	"errors"

	"github.com/bryanchriswhite/gamescope-portal/internal/session"
)

var (
	// ErrStreamUnavailable wraps every stream discovery failure of StartCast
	ErrStreamUnavailable = errors.New("gamescope stream not available")
	// ErrNoDestinationDirectory means no pictures directory could be determined
	ErrNoDestinationDirectory = errors.New("no XDG pictures directory to save screenshot to")
	// ErrInvalidPath means the screenshot path cannot be expressed as a file URI
	ErrInvalidPath = errors.New("invalid file path")
	// ErrHelperFailed means gamescopectl failed to start or exited non-zero
	ErrHelperFailed = errors.New("failed to take screenshot")
	// ErrUnsupported is returned by operations this backend does not implement
	ErrUnsupported = errors.New("method is not implemented")
)

// Kind classifies an error for the caller of the portal
type Kind int

const (
	KindFailed Kind = iota
	KindNotFound
	KindExists
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindExists:
		return "exists"
	default:
		return "failed"
	}
}

// Classify maps an operation error to the kind reported to the caller.
// Unsupported operations surface as not found.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, session.ErrAlreadyExists):
		return KindExists
	case errors.Is(err, session.ErrNotFound), errors.Is(err, ErrUnsupported):
		return KindNotFound
	default:
		return KindFailed
	}
}
