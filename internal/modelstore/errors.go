package modelstore

import (
	"errors"
	"fmt"
)

var (
	ErrLocatorUnresolvable  = errors.New("model locator unresolvable")
	ErrIncompatibleArtifact = errors.New("incompatible model artifact")
	ErrPlacementFailed      = errors.New("model placement failed")
)

// LoadError reports why a load failed. It matches both its Kind and the
// underlying cause with errors.Is.
type LoadError struct {
	Kind    error
	Locator string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model %q: %v: %v", e.Locator, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newLoadError(kind error, locator string, err error) *LoadError {
	return &LoadError{Kind: kind, Locator: locator, Err: err}
}
