// Package apperr maps domain errors onto the user-facing error taxonomy
// shared by the HTTP API and the CLI.
package apperr

import (
	"errors"
	"net/http"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/matcher"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"github.com/quickfix/quickfix-api/internal/services/listings"
)

// Kind names a class of failure.
type Kind string

const (
	AuthFailure          Kind = "AUTH_FAILURE"
	QueryFailed          Kind = "QUERY_FAILED"
	IndexRequired        Kind = "INDEX_REQUIRED"
	GeocodeUnavailable   Kind = "GEOCODE_UNAVAILABLE"
	GeolocationDenied    Kind = "GEOLOCATION_DENIED_OR_TIMEOUT"
	NotFound             Kind = "NOT_FOUND"
	OwnershipRedirect    Kind = "OWNERSHIP_REDIRECT"
	ValidationFailed     Kind = "VALIDATION_FAILED"
	Forbidden            Kind = "FORBIDDEN"
	ConfirmationRequired Kind = "CONFIRMATION_REQUIRED"
	Internal             Kind = "INTERNAL"
)

// Problem is the classified form of an error.
type Problem struct {
	Kind    Kind
	Status  int
	Message string
	// Retryable tells the client a retry affordance makes sense.
	Retryable bool
	// Fields carries per-field validation messages.
	Fields map[string]string
}

const (
	indexRequiredMessage = "this search needs a database index that has not been created yet; ask an operator to run `configure indexes`"
	queryFailedMessage   = "failed to load providers"
	internalMessage      = "internal server error"
)

// Classify maps err onto the taxonomy. Unknown errors are Internal and
// their text is not exposed.
func Classify(err error) Problem {
	var qe *matcher.QueryError
	var ve *listings.ValidationError

	switch {
	case err == nil:
		return Problem{Kind: Internal, Status: http.StatusInternalServerError, Message: internalMessage}

	case errors.As(err, &qe):
		if qe.Kind == matcher.KindIndexRequired {
			return Problem{Kind: IndexRequired, Status: http.StatusServiceUnavailable, Message: indexRequiredMessage, Retryable: true}
		}
		return Problem{Kind: QueryFailed, Status: http.StatusInternalServerError, Message: queryFailedMessage, Retryable: true}

	case docstore.IsIndexRequired(err):
		return Problem{Kind: IndexRequired, Status: http.StatusServiceUnavailable, Message: indexRequiredMessage, Retryable: true}

	case errors.As(err, &ve):
		return Problem{Kind: ValidationFailed, Status: http.StatusBadRequest, Message: ve.Error(), Fields: ve.Fields}

	case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrWeakPassword):
		return Problem{Kind: AuthFailure, Status: http.StatusBadRequest, Message: rootMessage(err)}
	case errors.Is(err, identity.ErrEmailInUse):
		return Problem{Kind: AuthFailure, Status: http.StatusConflict, Message: rootMessage(err)}
	case identity.IsAuthFailure(err), errors.Is(err, listings.ErrNotSignedIn):
		return Problem{Kind: AuthFailure, Status: http.StatusUnauthorized, Message: rootMessage(err)}

	case errors.Is(err, listings.ErrOwnListing):
		return Problem{Kind: OwnershipRedirect, Status: http.StatusSeeOther, Message: "this is your listing; manage it from My Listings"}
	case errors.Is(err, listings.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		return Problem{Kind: NotFound, Status: http.StatusNotFound, Message: "provider not found"}
	case errors.Is(err, listings.ErrForbidden):
		return Problem{Kind: Forbidden, Status: http.StatusForbidden, Message: rootMessage(err)}
	case errors.Is(err, listings.ErrConfirmationRequired):
		return Problem{Kind: ConfirmationRequired, Status: http.StatusPreconditionRequired, Message: "confirm the deletion with confirm=true"}

	case errors.Is(err, location.ErrGeolocationUnavailable):
		return Problem{Kind: GeolocationDenied, Status: http.StatusUnprocessableEntity, Message: location.ErrGeolocationUnavailable.Error()}
	}

	return Problem{Kind: Internal, Status: http.StatusInternalServerError, Message: internalMessage}
}

// rootMessage returns the message of the innermost wrapped error, which for
// sentinel errors is the user-facing text.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
