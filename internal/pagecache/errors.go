package pagecache

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a Cache-surfaced error so that callers above (the FUSE
// layer, the control socket) can map it to a concrete errno without string
// matching.
type Kind int

const (
	// KindUnknown is the zero value; never returned by this package.
	KindUnknown Kind = iota

	// KindNoSuchFileOrDirectory mirrors ENOENT.
	KindNoSuchFileOrDirectory
	// KindPermissionDenied mirrors EACCES/EPERM.
	KindPermissionDenied
	// KindFileExists mirrors EEXIST.
	KindFileExists
	// KindNotADirectory mirrors ENOTDIR.
	KindNotADirectory
	// KindIsADirectory mirrors EISDIR.
	KindIsADirectory
	// KindInvalidArgument mirrors EINVAL.
	KindInvalidArgument
	// KindDirectoryNotEmpty mirrors ENOTEMPTY.
	KindDirectoryNotEmpty
	// KindIoError is a generic, non-semantic transport failure.
	KindIoError
	// KindDisconnected means the transport lost the device mid-call.
	KindDisconnected

	// kindAlreadyInFlight is internal: InFlightMap.Begin called on a key
	// that already has a producer. Treated as a precondition violation,
	// never surfaced past this package.
	kindAlreadyInFlight
	// kindReconfigured resolves waiters whose page was still being
	// fetched when set_page_size/set_max_pages discarded the in-flight
	// table out from under them.
	kindReconfigured
)

func (k Kind) String() string {
	switch k {
	case KindNoSuchFileOrDirectory:
		return "no such file or directory"
	case KindPermissionDenied:
		return "permission denied"
	case KindFileExists:
		return "file exists"
	case KindNotADirectory:
		return "not a directory"
	case KindIsADirectory:
		return "is a directory"
	case KindInvalidArgument:
		return "invalid argument"
	case KindDirectoryNotEmpty:
		return "directory not empty"
	case KindIoError:
		return "I/O error"
	case KindDisconnected:
		return "device disconnected"
	case kindAlreadyInFlight:
		return "page already in flight"
	case kindReconfigured:
		return "cache reconfigured while fetch was outstanding"
	default:
		return "unknown error"
	}
}

// Error is the error type this package returns. It carries a Kind so callers
// can dispatch on it with errors.As, plus whatever transport error caused it.
type Error struct {
	Kind  Kind
	cause error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap annotates a transport-surfaced error with a Kind, preserving the
// original error as its cause via github.com/pkg/errors so stack traces
// survive up to the FUSE layer's logging.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return newError(kind, errors.WithStack(cause))
}

var errReconfigured = newError(kindReconfigured, nil)

var errAlreadyInFlight = newError(kindAlreadyInFlight, nil)
