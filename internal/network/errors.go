package network

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrInvalidFeature is the sentinel matched by every InvalidFeatureError.
var ErrInvalidFeature = eris.New("invalid feature")

// InvalidFeatureError reports a feature that cannot be part of a Network:
// a missing id, a duplicate id, or a geometry that does not match its kind.
type InvalidFeatureError struct {
	Kind   Kind
	ID     string
	Index  int
	Reason string
}

func (e *InvalidFeatureError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s at index %d: %s", e.Kind, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.ID, e.Reason)
}

func (e *InvalidFeatureError) Unwrap() error {
	return ErrInvalidFeature
}
