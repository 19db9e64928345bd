package internal

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSecretReference_PlainValue(t *testing.T) {
	resolved, wasRef, err := ResolveSecretReference(context.Background(), "plain-password")
	require.NoError(t, err)
	assert.False(t, wasRef)
	assert.Equal(t, "plain-password", resolved)
}

func TestResolveSecretReference_Env(t *testing.T) {
	t.Setenv("GATEWAY_TOKEN", "from-env")

	resolved, wasRef, err := ResolveSecretReference(context.Background(), "env://GATEWAY_TOKEN")
	require.NoError(t, err)
	assert.True(t, wasRef)
	assert.Equal(t, "from-env", resolved)
}

func TestResolveSecretReference_EnvMissing(t *testing.T) {
	_, wasRef, err := ResolveSecretReference(context.Background(), "env://DEFINITELY_NOT_SET_ANYWHERE")
	assert.True(t, wasRef)
	assert.ErrorContains(t, err, "DEFINITELY_NOT_SET_ANYWHERE")
}

func TestResolveSecretReference_OnePassword(t *testing.T) {
	origLookPath := LookPath
	origCommandContext := CommandContext
	t.Cleanup(func() {
		LookPath = origLookPath
		CommandContext = origCommandContext
	})

	LookPath = func(file string) (string, error) {
		assert.Equal(t, "op", file)
		return "/usr/local/bin/op", nil
	}
	CommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		assert.Equal(t, "op", name)
		assert.Equal(t, []string{"read", "op://vault/gateway/token"}, args)
		return exec.CommandContext(ctx, "echo", "op-secret")
	}

	resolved, wasRef, err := ResolveSecretReference(context.Background(), "op://vault/gateway/token")
	require.NoError(t, err)
	assert.True(t, wasRef)
	assert.Equal(t, "op-secret", resolved)
}

func TestResolveSecretReference_OnePasswordMissingCLI(t *testing.T) {
	origLookPath := LookPath
	t.Cleanup(func() { LookPath = origLookPath })

	LookPath = func(file string) (string, error) {
		return "", exec.ErrNotFound
	}

	_, wasRef, err := ResolveSecretReference(context.Background(), "op://vault/gateway/token")
	assert.True(t, wasRef)
	assert.ErrorContains(t, err, "op) not found in PATH")
}
