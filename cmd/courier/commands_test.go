package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCounterSetThenShow(t *testing.T) {
	for _, driver := range []string{"sqlite", "badger"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "counter")
			flags := []string{"--storage-driver", driver, "--storage", path}

			out, err := runCLI(t, append([]string{"counter", "show"}, flags...)...)
			require.NoError(t, err)
			assert.Equal(t, "pioneerCorrelationId: unset\n", out)

			out, err = runCLI(t, append([]string{"counter", "set", "5000"}, flags...)...)
			require.NoError(t, err)
			assert.Equal(t, "pioneerCorrelationId: 5000\n", out)

			// lowering is allowed offline
			_, err = runCLI(t, append([]string{"counter", "set", "12"}, flags...)...)
			require.NoError(t, err)

			out, err = runCLI(t, append([]string{"counter", "show"}, flags...)...)
			require.NoError(t, err)
			assert.Equal(t, "pioneerCorrelationId: 12\n", out)
		})
	}
}

func TestCounterCustomKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.db")
	flags := []string{"--storage-driver", "sqlite", "--storage", path, "--counter-key", "other"}

	_, err := runCLI(t, append([]string{"counter", "set", "3"}, flags...)...)
	require.NoError(t, err)

	out, err := runCLI(t, "counter", "show", "--storage-driver", "sqlite", "--storage", path)
	require.NoError(t, err)
	assert.Equal(t, "pioneerCorrelationId: unset\n", out)
}

func TestCounterSetRejectsBadValues(t *testing.T) {
	for _, arg := range []string{"abc", "-1", "1.5"} {
		t.Run(arg, func(t *testing.T) {
			_, err := runCLI(t, "counter", "set", "--storage-driver", "memory", "--", arg)
			assert.ErrorContains(t, err, "non-negative integer")
		})
	}

	_, err := runCLI(t, "counter", "set", "--storage-driver", "memory")
	assert.Error(t, err)
}

func TestEnvironmentSelectsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.db")
	t.Setenv("COURIER_STORAGE_DRIVER", "sqlite")
	t.Setenv("COURIER_STORAGE_PATH", path)

	_, err := runCLI(t, "counter", "set", "77")
	require.NoError(t, err)

	out, err := runCLI(t, "counter", "show")
	require.NoError(t, err)
	assert.Equal(t, "pioneerCorrelationId: 77\n", out)
}

func TestInvalidConfigurationIsReported(t *testing.T) {
	_, err := runCLI(t, "counter", "show", "--storage-driver", "floppy")
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("COURIER_RELAY_URL", "ws://127.0.0.1:1/ws")
	f := &flags{
		relayURL:  "ws://127.0.0.1:2/ws",
		apiPort:   "0",
		directory: "/etc/courier/containers.toml",
		proxy:     "127.0.0.1:0",
		dev:       true,
	}

	cfg, err := f.load()
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:2/ws", cfg.Relay.URL)
	assert.Equal(t, "0", cfg.API.Port)
	assert.Equal(t, "file", cfg.Directory.Source)
	assert.Equal(t, "/etc/courier/containers.toml", cfg.Directory.Path)
	assert.True(t, cfg.Proxy.Enabled)
	assert.Equal(t, "127.0.0.1:0", cfg.Proxy.Addr)
	assert.True(t, cfg.Logging.Development)
}

func TestServeRejectsArgs(t *testing.T) {
	_, err := runCLI(t, "serve", "extra")
	assert.Error(t, err)
}
