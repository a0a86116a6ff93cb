package fail2ban

import (
	"errors"
	"fmt"
)

// ExecErrorKind classifies a failed fail2ban-client invocation.
type ExecErrorKind int

const (
	// ExecTimeout: the command exceeded its deadline and was killed.
	ExecTimeout ExecErrorKind = iota
	// ExecDaemonRejected: the daemon answered with a non-zero exit or
	// output that could not be parsed.
	ExecDaemonRejected
	// ExecNotAvailable: fail2ban-client is not installed or the server
	// is unreachable.
	ExecNotAvailable
	// ExecPermissionDenied: the socket or binary refused access.
	ExecPermissionDenied
)

var execKindNames = map[ExecErrorKind]string{
	ExecTimeout:          "timeout",
	ExecDaemonRejected:   "daemon rejected",
	ExecNotAvailable:     "not available",
	ExecPermissionDenied: "permission denied",
}

// ExecError is returned for any failed daemon command. Message carries
// the raw daemon output so callers can surface what failed and why.
type ExecError struct {
	Kind    ExecErrorKind
	Message string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("fail2ban-client %s: %s", execKindNames[e.Kind], e.Message)
	}
	return fmt.Sprintf("fail2ban-client %s", execKindNames[e.Kind])
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ErrKind returns the ExecErrorKind of err, or (0, false) when err is
// not an ExecError.
func ErrKind(err error) (ExecErrorKind, bool) {
	var ee *ExecError
	if !errors.As(err, &ee) {
		return 0, false
	}
	return ee.Kind, true
}

// IsTimeout reports whether err is an ExecError of kind ExecTimeout.
func IsTimeout(err error) bool {
	k, ok := ErrKind(err)
	return ok && k == ExecTimeout
}

// IsNotAvailable reports whether err indicates the daemon is unreachable
// or not installed.
func IsNotAvailable(err error) bool {
	k, ok := ErrKind(err)
	return ok && k == ExecNotAvailable
}
