package errorsx

import "errors"

// Error tags an underlying error with the reason it is reported under.
// Op optionally names the failed operation, e.g. "get_states".
type Error struct {
	Reason ReasonCode
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with reason. The innermost reason wins: an error that
// already carries one is returned unchanged.
func Wrap(err error, reason ReasonCode) error {
	return WrapOp(err, reason, "")
}

// WrapOp is Wrap with the name of the failed operation.
func WrapOp(err error, reason ReasonCode, op string) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Reason: reason, Op: op, Err: err}
}

// Reason returns the reason attached to err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// Permanent reports whether an error with this reason will fail the same
// way when retried.
func Permanent(reason ReasonCode) bool {
	switch reason {
	case ReasonHAAuth, ReasonConfigInvalid, ReasonAgentUnknown:
		return true
	}
	return false
}
