package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNudgeError_Error(t *testing.T) {
	err := errclass.ErrInvalidDeferral.WithMessage("deadline has passed")
	assert.Equal(t, "E_INVALID_DEFERRAL: deadline has passed", err.Error())
	assert.Equal(t, "E_LEDGER_CORRUPT", errclass.ErrLedgerCorrupt.Error())
}

func TestNudgeError_Is(t *testing.T) {
	err := errclass.ErrPersistenceFailure.WithMessagef("after %d attempts", 4)
	require.True(t, errors.Is(err, errclass.ErrPersistenceFailure))
	require.False(t, errors.Is(err, errclass.ErrInvalidDeferral))
}

func TestNudgeError_IsThroughWrapping(t *testing.T) {
	cause := errclass.ErrPersistenceFailure.WithMessage("disk full")
	err := fmt.Errorf("%w: %w", errclass.ErrInvalidDeferral.WithMessage("deferral not recorded"), cause)

	assert.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.ErrorIs(t, err, errclass.ErrPersistenceFailure)
	assert.NotErrorIs(t, err, errclass.ErrUpdateLaunchFailed)
}

func TestNudgeError_CodesAreDistinct(t *testing.T) {
	all := []*errclass.NudgeError{
		errclass.ErrInvalidDeferral,
		errclass.ErrPersistenceFailure,
		errclass.ErrUpdateLaunchFailed,
		errclass.ErrConfigurationInvalid,
		errclass.ErrLedgerCorrupt,
		errclass.ErrAuditChainBroken,
	}
	seen := make(map[string]bool)
	for _, e := range all {
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
	}
}
