package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"production":   Production,
		" PRODUCTION ": Production,
		"staging":      Staging,
		"testing":      Testing,
		"":             Development,
	}
	for in, want := range cases {
		got, err := ParseEnvironment(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEnvironment("prod")
	assert.Error(t, err)
}

func TestEnvironmentDecode(t *testing.T) {
	var e Environment
	require.NoError(t, e.Decode("Production"))
	assert.True(t, e.IsProduction())
	assert.Equal(t, "production", e.String())

	assert.Error(t, e.Decode("qa"))
	assert.Equal(t, Production, e, "failed decode keeps the previous value")
}

func TestStructuredLogs(t *testing.T) {
	assert.True(t, Production.StructuredLogs())
	assert.True(t, Staging.StructuredLogs())
	assert.False(t, Development.StructuredLogs())
	assert.False(t, Testing.StructuredLogs())
}
