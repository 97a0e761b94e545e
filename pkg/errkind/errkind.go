// Package errkind attaches an operation name and a sentinel kind to errors so
// callers can branch with errors.Is on either the kind or the cause.
package errkind

import "strings"

// Error is an operation failure classified by a sentinel kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// New returns an error of the given kind without an underlying cause.
func New(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap classifies err as kind. A nil err yields New(op, kind).
func Wrap(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
