package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetEnvDefault(t *testing.T) {
	require.Equal(t, "fallback", getEnv("CONFIG_TEST_UNSET", "fallback"))

	t.Setenv("CONFIG_TEST_SET", "value")
	require.Equal(t, "value", getEnv("CONFIG_TEST_SET", "fallback"))
}

func TestGetInt(t *testing.T) {
	require.Equal(t, 64, getInt("CONFIG_TEST_INT", 64))

	t.Setenv("CONFIG_TEST_INT", "128")
	require.Equal(t, 128, getInt("CONFIG_TEST_INT", 64))

	t.Setenv("CONFIG_TEST_INT", "not-a-number")
	require.Equal(t, 64, getInt("CONFIG_TEST_INT", 64))
}

func TestGetBool(t *testing.T) {
	require.False(t, getBool("CONFIG_TEST_BOOL", false))

	for _, truthy := range []string{"true", "1", "yes"} {
		t.Setenv("CONFIG_TEST_BOOL", truthy)
		require.True(t, getBool("CONFIG_TEST_BOOL", false))
	}

	t.Setenv("CONFIG_TEST_BOOL", "false")
	require.False(t, getBool("CONFIG_TEST_BOOL", true))
}

func TestGetDuration(t *testing.T) {
	require.Equal(t, 5*time.Second, getDuration("CONFIG_TEST_DUR", 5*time.Second))

	t.Setenv("CONFIG_TEST_DUR", "30s")
	require.Equal(t, 30*time.Second, getDuration("CONFIG_TEST_DUR", 5*time.Second))

	// bare numbers are seconds
	t.Setenv("CONFIG_TEST_DUR", "45")
	require.Equal(t, 45*time.Second, getDuration("CONFIG_TEST_DUR", 5*time.Second))

	t.Setenv("CONFIG_TEST_DUR", "garbage")
	require.Equal(t, 5*time.Second, getDuration("CONFIG_TEST_DUR", 5*time.Second))
}
