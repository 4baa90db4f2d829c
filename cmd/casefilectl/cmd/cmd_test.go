package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/casefile/internal/auth"
	"github.com/jw6ventures/casefile/internal/store"
	"github.com/jw6ventures/casefile/internal/syncer"
)

const testJWTSecret = "fedcba9876543210fedcba9876543210"

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_DB_DSN", "postgres://app:pw@127.0.0.1:1/casefile?sslmode=disable")
	t.Setenv("APP_GOOGLE_CLIENT_ID", "client")
	t.Setenv("APP_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("APP_TOKEN_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("APP_JWT_SECRET", testJWTSecret)
	t.Setenv("APP_S3_BUCKET", "casefile")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	setEnv(t)
	out, err := execute(t, "token", "user-42", "--ttl", "1h")
	require.NoError(t, err)

	userID, err := auth.NewIssuer(testJWTSecret, time.Hour).Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "user-42", userID)
}

func TestCommandsValidateArgs(t *testing.T) {
	setEnv(t)
	_, err := execute(t, "sync")
	require.Error(t, err)
	_, err = execute(t, "connections", "a", "b")
	require.Error(t, err)
	_, err = execute(t, "migrate", "extra")
	require.Error(t, err)
}

func TestMissingConfigFails(t *testing.T) {
	setEnv(t)
	t.Setenv("APP_JWT_SECRET", "")
	_, err := execute(t, "token", "u1")
	require.ErrorContains(t, err, "APP_JWT_SECRET")
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	printResult(cmd, &syncer.Result{
		Processed: 3, Succeeded: 2, Skipped: 1, Failed: 1,
		Errors:    []syncer.ItemError{{Name: "b.exe", Message: "disallowed file type"}},
		StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
	})
	require.Equal(t, "processed 3: 2 succeeded (1 unchanged), 1 failed in 1.5s\n  b.exe: disallowed file type\n", out.String())
}

func TestPrintConnections(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	printConnections(cmd, nil)
	require.Equal(t, "no connections\n", out.String())

	out.Reset()
	msg := "oauth token refresh failed"
	synced := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	printConnections(cmd, []store.Connection{
		{ID: "c1", Kind: store.KindDrive, Status: store.StatusConnected, TotalItems: 3, FailedItems: 1, LastSyncAt: &synced},
		{ID: "c2", Kind: store.KindCalendar, Status: store.StatusError, LastError: &msg},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "ID"))
	require.Contains(t, lines[1], "2026-03-01T09:00:00Z")
	require.Contains(t, lines[2], "never")
	require.Contains(t, lines[2], msg)
}
