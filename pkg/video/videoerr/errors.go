// Package videoerr holds the failure taxonomy shared by sources, targets
// and factories. Every concrete error wraps one of the four category
// errors so callers can branch with errors.Is.
package videoerr

import (
	"errors"

	"github.com/tauraamui/xerror"
)

var (
	// ErrConfiguration covers bad locators, unsupported enum values and
	// unwritable outputs. Raised at construction time only.
	ErrConfiguration = xerror.New("configuration error")
	// ErrDecode is a failure to produce a single frame.
	ErrDecode = xerror.New("decode error")
	// ErrObserver wraps anything an observer returned or panicked with.
	ErrObserver = xerror.New("observer error")
	// ErrLifecycle is an operation attempted in a state that forbids it.
	ErrLifecycle = xerror.New("lifecycle error")
)

var (
	ErrInvalidLocator         = xerror.Errorf("%w: invalid locator", ErrConfiguration)
	ErrUnsupportedColourSpace = xerror.Errorf("%w: unsupported colour space", ErrConfiguration)
	ErrUnsupportedCodec       = xerror.Errorf("%w: unsupported codec", ErrConfiguration)
	ErrUnwritablePath         = xerror.Errorf("%w: unwritable output path", ErrConfiguration)
	ErrUnsupportedFileType    = xerror.Errorf("%w: unsupported output file type", ErrConfiguration)
	ErrInvalidFrameRate       = xerror.Errorf("%w: invalid frame rate", ErrConfiguration)
	ErrNonComparableObserver  = xerror.Errorf("%w: observer type is not comparable", ErrConfiguration)
)

var (
	// ErrEndOfStream and ErrSourceLost are unrecoverable decode failures,
	// they move a source to stopping instead of skipping the tick.
	ErrEndOfStream = xerror.Errorf("%w: end of stream", ErrDecode)
	ErrSourceLost  = xerror.Errorf("%w: source connection lost", ErrDecode)
)

var (
	ErrSourceStopped   = xerror.Errorf("%w: source is stopped", ErrLifecycle)
	ErrTargetFinalised = xerror.Errorf("%w: target is finalised", ErrLifecycle)
	ErrRegistryClosed  = xerror.Errorf("%w: registry is closed", ErrLifecycle)
)

// Unrecoverable reports whether a decode failure must end production.
func Unrecoverable(err error) bool {
	return errors.Is(err, ErrEndOfStream) || errors.Is(err, ErrSourceLost)
}
