package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a cobra command with the given arguments and returns
// its combined output.
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// resetFlags restores every changed flag to its default so the package-level
// serveFlags state doesn't leak between tests.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestRootHelpListsServe(t *testing.T) {
	root := newRootCmd()
	defer resetFlags(root)

	out, err := executeCommand(root, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "serve")
}

func TestServeRejectsRPCAuthWithoutSecret(t *testing.T) {
	root := newRootCmd()
	defer resetFlags(root)

	_, err := executeCommand(root, "serve", "--rpc-auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--jwt-secret")
}

func TestServeRejectsBootstrapUserWithoutPassword(t *testing.T) {
	root := newRootCmd()
	defer resetFlags(root)

	_, err := executeCommand(root, "serve",
		"--auth", "--auth-bootstrap-user", "alice",
		"--data-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--auth-bootstrap-password")
}
