package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &v), raw)
	return v
}

func TestRootCommandStructure(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"migrate"},
		{"user", "create"},
		{"slot", "create"}, {"slot", "list"}, {"slot", "market"}, {"slot", "status"}, {"slot", "delete"},
		{"swap", "propose"}, {"swap", "accept"}, {"swap", "reject"},
		{"swap", "incoming"}, {"swap", "outgoing"}, {"swap", "delete"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	for _, flag := range []string{"driver", "db", "as", "format"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := run(t, "--format", "yaml", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestActingUserRequired(t *testing.T) {
	db := filepath.Join(t.TempDir(), "swap.db")
	mustRun(t, "--db", db, "migrate")
	_, err := run(t, "--db", db, "slot", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSwapFlow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "swap.db")
	out := mustRun(t, "--db", db, "migrate")
	assert.Contains(t, out, "schema version")

	alice := strings.TrimSpace(mustRun(t, "--db", db, "user", "create",
		"--email", "alice@example.com", "--name", "Alice", "--password", "password1", "--bcrypt-cost", "4"))
	bob := strings.TrimSpace(mustRun(t, "--db", db, "user", "create",
		"--email", "bob@example.com", "--name", "Bob", "--password", "password1", "--bcrypt-cost", "4"))
	require.NotEmpty(t, alice)
	require.NotEmpty(t, bob)

	as := func(user string, args ...string) []string {
		return append([]string{"--db", db, "--as", user, "--format", "json"}, args...)
	}

	aSlot := decode(t, mustRun(t, as(alice, "slot", "create", "--title", "Standup",
		"--start", "2026-01-05T09:00:00Z", "--end", "2026-01-05T10:00:00Z")...))
	bSlot := decode(t, mustRun(t, as(bob, "slot", "create", "--title", "Review",
		"--start", "2026-01-06T14:00:00Z", "--end", "2026-01-06T15:00:00Z")...))
	assert.Equal(t, "BUSY", aSlot["trade_status"])
	aID, bID := aSlot["id"].(string), bSlot["id"].(string)

	mustRun(t, as(alice, "slot", "status", aID, "TRADABLE")...)
	mustRun(t, as(bob, "slot", "status", bID, "tradable")...)

	market := mustRun(t, "--db", db, "--as", alice, "slot", "market")
	assert.Contains(t, market, "Review")
	assert.Contains(t, market, "Bob")
	assert.NotContains(t, market, "Standup")

	req := decode(t, mustRun(t, as(alice, "swap", "propose", "--mine", aID, "--theirs", bID, "--receiver", bob)...))
	assert.Equal(t, "PENDING", req["status"])
	reqID := req["id"].(string)

	incoming := mustRun(t, "--db", db, "--as", bob, "swap", "incoming")
	assert.Contains(t, incoming, reqID)

	_, err := run(t, as(alice, "swap", "accept", reqID)...)
	require.Error(t, err, "only the receiver may accept")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	done := decode(t, mustRun(t, as(bob, "swap", "accept", reqID)...))
	assert.Equal(t, "ACCEPTED", done["status"])

	mine := mustRun(t, "--db", db, "--as", alice, "slot", "list")
	assert.Contains(t, mine, "Review")
	assert.NotContains(t, mine, "Standup")

	out = mustRun(t, "--db", db, "--as", alice, "swap", "delete", reqID)
	assert.Contains(t, out, "deleted")
	assert.NotContains(t, mustRun(t, "--db", db, "--as", alice, "swap", "outgoing"), reqID)
}

func TestEngineRefusalExitsWithFailure(t *testing.T) {
	db := filepath.Join(t.TempDir(), "swap.db")
	mustRun(t, "--db", db, "migrate")
	_, err := run(t, "--db", db, "--as", "nobody", "slot", "delete", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
