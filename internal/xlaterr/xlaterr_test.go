package xlaterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAuthorization(t *testing.T) {
	require.True(t, IsAuthorization(ErrClientNotAllowed))
	require.True(t, IsAuthorization(ErrWrongPrefix))
	require.False(t, IsAuthorization(ErrAssignmentNotFound))
	require.False(t, IsAuthorization(errors.New("unrelated")))
}

func TestIsResource(t *testing.T) {
	require.True(t, IsResource(ErrAssignmentNotFound))
	require.True(t, IsResource(ErrSubstituteSpaceFull))
	require.False(t, IsResource(ErrClientNotAllowed))
}

func TestFaultError(t *testing.T) {
	f := NewFault("bad state: %d", 42)
	require.Equal(t, "programming fault: bad state: 42", f.Error())
}

func TestRecoverCatchesFaultAndCallsCrashHandler(t *testing.T) {
	var caught *Fault
	SetCrashHandler(func(f *Fault) { caught = f })
	defer SetCrashHandler(nil)

	func() {
		defer Recover()
		Crash(NewFault("invariant violated"))
	}()

	require.NotNil(t, caught)
	require.Equal(t, "programming fault: invariant violated", caught.Error())
}

func TestRecoverRepanicsNonFaultValues(t *testing.T) {
	SetCrashHandler(func(*Fault) {})
	defer SetCrashHandler(nil)

	require.Panics(t, func() {
		func() {
			defer Recover()
			panic("not a fault")
		}()
	})
}

func TestRecoverIsNoOpWithoutPanic(t *testing.T) {
	require.NotPanics(t, func() {
		defer Recover()
	})
}
