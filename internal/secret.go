// Package internal holds small helpers shared by the command-line entry
// point.
package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	// CommandContext allows overriding command creation for testing.
	CommandContext = exec.CommandContext
	// LookPath allows overriding executable lookup for testing.
	LookPath = exec.LookPath
)

// ResolveSecretReference resolves a secret reference in a configuration
// value. Two schemes are supported: op://vault/item/field reads from the
// 1Password CLI, and env://NAME reads from the environment. Returns the
// resolved value and whether the input was a reference.
func ResolveSecretReference(ctx context.Context, value string) (string, bool, error) {
	if name, ok := strings.CutPrefix(value, "env://"); ok {
		resolved, found := os.LookupEnv(name)
		if !found {
			return "", true, fmt.Errorf("environment variable %s is not set", name)
		}
		return resolved, true, nil
	}

	if !strings.HasPrefix(value, "op://") {
		return value, false, nil
	}

	if _, err := LookPath("op"); err != nil {
		return "", true, fmt.Errorf("1Password CLI (op) not found in PATH: %w", err)
	}

	cmd := CommandContext(ctx, "op", "read", value)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", true, fmt.Errorf("failed to read secret from 1Password: %s", string(exitErr.Stderr))
		}
		return "", true, fmt.Errorf("failed to read secret from 1Password: %w", err)
	}

	return strings.TrimSpace(string(output)), true, nil
}
