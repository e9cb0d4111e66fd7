package assert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssert(t *testing.T) {
	mustBeTrue := True(true, "must be true")
	require.True(t, mustBeTrue.Eval())
	require.NoError(t, mustBeTrue.Check())
	require.Equal(t, "must be true", mustBeTrue.String())

	mustBeFalse := False(false, "must be false")
	require.True(t, mustBeFalse.Eval())
	require.NoError(t, mustBeFalse.Check())
	require.Equal(t, "must be false", mustBeFalse.String())

	require.NoError(t, All(mustBeTrue, mustBeFalse).Check())

	require.Error(t, All(mustBeTrue, mustBeFalse, newCond("foo", func() bool {
		return false
	})).Check())
}

func TestNot(t *testing.T) {
	c := Not(True(true, "inner"))
	require.False(t, c.Eval())
	require.Error(t, c.Check())
	require.Equal(t, "[not](inner)", c.String())
}

func TestCheckErr(t *testing.T) {
	errDomain := errors.New("domain rejection")

	require.NoError(t, CheckErr(True(true, "ok"), errDomain))
	require.ErrorIs(t, CheckErr(True(false, "fails"), errDomain), errDomain)
}
