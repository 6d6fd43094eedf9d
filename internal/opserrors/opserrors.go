// Package opserrors supplies short-hand wrapped-error constructors for
// ambient, non-domain code (configuration loading, persistence setup) that
// does not need the typed Kind taxonomy in internal/errors.
package opserrors

import "fmt"

// FailedTo wraps cause with a "failed to <action>" prefix.
func FailedTo(action string, cause error) error {
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// Wrapf wraps cause with a formatted message.
func Wrapf(cause error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, cause)...)
}

// Chain joins a sequence of causes into a single error, preserving order.
func Chain(messages ...string) error {
	if len(messages) == 0 {
		return nil
	}
	msg := messages[0]
	for _, m := range messages[1:] {
		msg = msg + "; " + m
	}
	return fmt.Errorf("%s", msg)
}
