// Package panicerr turns panics in background work into ordinary errors so a
// single misbehaving job cannot take the process down.
package panicerr

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// Safe runs fn and returns its error, or the recovered panic as an error.
func Safe(fn func() error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = fn()
	})
	if r := catcher.Recovered(); r != nil {
		return fmt.Errorf("recovered panic: %w", r.AsError())
	}
	return err
}

// SafeContext is Safe for functions taking a context.
func SafeContext(ctx context.Context, fn func(context.Context) error) error {
	return Safe(func() error {
		return fn(ctx)
	})
}
