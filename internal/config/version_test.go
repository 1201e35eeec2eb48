package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	valid := map[string]SchemaVersion{
		"":      {1, 0},
		"1.0":   {1, 0},
		"1.3":   {1, 3},
		"10.20": {10, 20},
	}
	for in, want := range valid {
		got, err := ParseVersion(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	for _, in := range []string{"1", "1.0.0", "a.b", "-1.0", "1.-2", "v1.0"} {
		_, err := ParseVersion(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestSchemaVersion_CompareAndString(t *testing.T) {
	v10, v11, v19, v20 := SchemaVersion{1, 0}, SchemaVersion{1, 1}, SchemaVersion{1, 9}, SchemaVersion{2, 0}

	assert.Zero(t, v10.Compare(v10))
	assert.Equal(t, -1, v10.Compare(v11))
	assert.Equal(t, 1, v11.Compare(v10))
	assert.Equal(t, -1, v19.Compare(v20))
	assert.Equal(t, 1, v20.Compare(v19))

	assert.Equal(t, "1.9", v19.String())
}

func TestIsSupportedVersion(t *testing.T) {
	// Minor bumps stay readable by the 1.x parser
	assert.True(t, IsSupportedVersion(SchemaVersion{1, 4}))
	assert.False(t, IsSupportedVersion(SchemaVersion{2, 0}))
	assert.False(t, IsSupportedVersion(SchemaVersion{0, 9}))
}
