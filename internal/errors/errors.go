// Package errors provides error helpers shared across isak packages.
package errors

import (
	"github.com/pkg/errors"
)

// Wrap returns a new error wrapping the passed error and annotating it with
// the stack trace at the point Wrap was called. If the passed error is nil,
// nil is returned.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	return errors.WithStack(err)
}

// Wrapf is Wrap with an additional message prefixed to err.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	return errors.Wrapf(err, format, args...)
}
