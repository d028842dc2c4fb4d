package apierror_test

import (
	"errors"
	"fmt"
	"testing"

	"tillpos/internal/apierror"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(apierror.NotFound("session %s not found", "x")))
	assert.Equal(t, apierror.KindConflict, apierror.KindOf(apierror.Conflict("taken")))
	assert.Equal(t, apierror.KindInsufficientStock, apierror.KindOf(apierror.InsufficientStock("short")))

	// Wrapped errors keep their kind.
	wrapped := fmt.Errorf("handler: %w", apierror.InvalidState("closed"))
	assert.Equal(t, apierror.KindInvalidState, apierror.KindOf(wrapped))

	// Unknown errors are internal.
	assert.Equal(t, apierror.KindInternal, apierror.KindOf(errors.New("pq: connection refused")))
}

func TestEnvelope_HidesInternalCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
	env := apierror.Envelope(apierror.Internal("could not open session", cause))
	assert.Equal(t, "internal", env.Code)
	assert.Equal(t, "could not open session", env.Detail)
	assert.NotContains(t, env.Detail, "10.0.0.5")

	// The cause still surfaces through Error() for logging.
	err := apierror.Internal("could not open session", cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnvelope_UnknownError(t *testing.T) {
	env := apierror.Envelope(errors.New("boom"))
	assert.Equal(t, "internal", env.Code)
	assert.Equal(t, "internal server error", env.Detail)
}
