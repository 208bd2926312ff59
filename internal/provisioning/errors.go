package provisioning

import (
	"errors"
	"fmt"

	"mediasite-provisioning/internal/canvas"
	"mediasite-provisioning/internal/mediasite"
)

var (
	ErrMissingSISCourseID = errors.New("course has no SIS course id")
	ErrMissingYear        = errors.New("could not determine the academic year for the course term")
	ErrMissingRootFolder  = errors.New("no root folder configured for the account")
	ErrMissingCatalogURL  = errors.New("catalog has no public url")
	ErrMissingCredentials = errors.New("no LTI consumer key configured for the account")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindCanvas
	KindUnauthorized
	KindMediasite
	KindConflict
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindCanvas:
		return "canvas"
	case KindUnauthorized:
		return "unauthorized"
	case KindMediasite:
		return "mediasite"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Error is returned by Run. Step names the state the run was trying to reach.
type Error struct {
	Kind Kind
	Step State
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning: %s (before %s): %v", e.Category(), e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Category is the label shown to users next to the message.
func (e *Error) Category() string {
	switch e.Kind {
	case KindCanvas, KindUnauthorized:
		return "Canvas error"
	case KindMediasite, KindConflict:
		return "Mediasite error"
	case KindPrecondition:
		return "Course error"
	default:
		return "unknown error"
	}
}

func classify(err error) Kind {
	var ce *canvas.ServiceError
	var me *mediasite.ServiceError
	switch {
	case errors.Is(err, mediasite.ErrRoleConflict):
		return KindConflict
	case errors.As(err, &ce):
		if ce.Unauthorized() {
			return KindUnauthorized
		}
		return KindCanvas
	case errors.As(err, &me), errors.Is(err, mediasite.ErrAmbiguousModule), errors.Is(err, mediasite.ErrInvalidProfileID):
		return KindMediasite
	case errors.Is(err, ErrMissingSISCourseID), errors.Is(err, ErrMissingYear),
		errors.Is(err, ErrMissingRootFolder), errors.Is(err, ErrMissingCatalogURL),
		errors.Is(err, ErrMissingCredentials):
		return KindPrecondition
	default:
		return KindUnknown
	}
}

// IsUnauthorized reports whether err means the user's Canvas token must be renewed.
func IsUnauthorized(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindUnauthorized
	}
	return canvas.IsUnauthorized(err)
}
