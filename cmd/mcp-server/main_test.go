package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sap-mcp-sse/internal/config"
)

func TestRootCmd_MissingCredentialsIsFatal(t *testing.T) {
	t.Setenv("SAP_USERNAME", "")
	t.Setenv("SAP_PASSWORD", "")

	for _, args := range [][]string{
		{},
		{"--user", "alice"},
		{"--password", "secret"},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)

		err := cmd.Execute()
		require.Error(t, err, "args %v", args)
		assert.ErrorIs(t, err, config.ErrMissingCredentials)
	}
}

func TestRootCmd_InvalidFlagValue(t *testing.T) {
	t.Setenv("SAP_USERNAME", "alice")
	t.Setenv("SAP_PASSWORD", "secret")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--log-level", "loud"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.NotErrorIs(t, err, config.ErrMissingCredentials)
}
