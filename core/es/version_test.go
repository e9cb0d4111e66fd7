package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	v := Version(7)
	require.EqualValues(t, 7, v.Uint64())
	require.Equal(t, "version", v.SlogAttr().Key)
	require.Equal(t, "min_version", v.SlogAttrWithKey("min_version").Key)
}

func TestVersionAny(t *testing.T) {
	// sentinel must not collide with any reachable stream version
	require.Equal(t, ^Version(0), VersionAny)
	require.NotEqual(t, Version(0), VersionAny)
}
