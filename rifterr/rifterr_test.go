package rifterr_test

import (
	"errors"
	"testing"

	"github.com/riftdb/rift/rifterr"
	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesByCodeAlone(t *testing.T) {
	a := rifterr.OCC("conflict at ts %d", 5)
	b := rifterr.OCC("conflict at ts %d", 9)
	require.True(t, errors.Is(a, b))

	forbidden := rifterr.Forbidden("nope")
	require.False(t, errors.Is(a, forbidden))
}

func TestUnwrapExposesWrappedCause(t *testing.T) {
	cause := errors.New("disk full")
	err := rifterr.PersistenceUnavailable(cause, "write failed")
	require.ErrorIs(t, err, cause)
}

func TestErrorMessageIncludesCodeAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := rifterr.FetchFailed(cause, "request to %s failed", "example.com")
	require.Contains(t, err.Error(), "FetchFailed")
	require.Contains(t, err.Error(), "boom")
}

func TestAsRejectedBeforeExecutionConvertsToOverloaded(t *testing.T) {
	err := rifterr.RejectedBeforeExecution("queue full")
	converted := rifterr.AsRejectedBeforeExecution(err)

	var asErr *rifterr.Error
	require.ErrorAs(t, converted, &asErr)
	require.Equal(t, rifterr.CodeOverloaded, asErr.Code)
}

func TestAsRejectedBeforeExecutionLeavesOtherErrorsUntouched(t *testing.T) {
	err := rifterr.Bug("unexpected nil pointer")
	require.Equal(t, err, rifterr.AsRejectedBeforeExecution(err))
}
