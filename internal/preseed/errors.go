package preseed

import (
	"errors"
	"fmt"
)

// ErrClusterUnavailable marks failures to reach any rack controller for a
// machine's boot queries. Fatal for the request; the booting machine
// retries on its own cadence.
var ErrClusterUnavailable = errors.New("unable to reach the machine's rack controller")

// TemplateNotFoundError is returned when the resolver exhausted every
// candidate name across every provider.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template not found: %s", e.Name)
}

// IsTemplateNotFound reports whether err is a TemplateNotFoundError.
func IsTemplateNotFound(err error) bool {
	var tnf *TemplateNotFoundError
	return errors.As(err, &tnf)
}

// MissingBootImageError is returned when the rack controller is reachable
// but its catalog has no entry for the selection tuple. The message names
// the full tuple for operator diagnosis.
type MissingBootImageError struct {
	OSystem string
	Arch    string
	Subarch string
	Series  string
	Purpose string
}

func (e *MissingBootImageError) Error() string {
	return fmt.Sprintf(
		"No image could be found for the given selection: os=%s, arch=%s, subarch=%s, series=%s, purpose=%s.",
		e.OSystem, e.Arch, e.Subarch, e.Series, e.Purpose)
}

// UnknownStatusError marks a machine status the type selector does not
// handle. This is a programming error, never a user-facing condition.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("no preseed type for machine status %q", e.Status)
}
