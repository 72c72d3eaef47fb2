package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	require.NotNil(t, rootCmd)

	expected := map[string]bool{
		"serve":   false,
		"consume": false,
		"seed":    false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := expected[cmd.Use]; ok {
			expected[cmd.Use] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "command %q should be registered", name)
	}
}

func TestSeedRequiresScenario(t *testing.T) {
	flag := seedCmd.Flags().Lookup("scenario")
	require.NotNil(t, flag)

	err := seedCmd.ValidateRequiredFlags()
	assert.Error(t, err)
}

func TestConfigFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}
