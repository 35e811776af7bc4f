package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/activity-points-api/internal/workflow"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	jsonOutput = false
	dumpType = ""
	dumpFormat = "yaml"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestDumpYAMLRoundTrips(t *testing.T) {
	stdout, err := executeCommand(t, "dump")
	require.NoError(t, err)

	var doc policyDocument
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, workflow.DefaultPolicy().Edges(""), doc.Edges)
}

func TestDumpFilteredTable(t *testing.T) {
	stdout, err := executeCommand(t, "dump", "--type", "event", "--format", "table")
	require.NoError(t, err)

	assert.Contains(t, stdout, "TYPE")
	assert.Contains(t, stdout, "approve")
	assert.NotContains(t, stdout, "activity_claim")
	assert.Equal(t, 3, bytes.Count([]byte(stdout), []byte("\n")))
}

func TestDumpRejectsUnknownInput(t *testing.T) {
	_, err := executeCommand(t, "dump", "--type", "badge")
	require.ErrorContains(t, err, "unknown entity type")

	_, err = executeCommand(t, "dump", "--format", "xml")
	require.ErrorContains(t, err, "unknown format")
}

func TestCheckAllowedShowsGuard(t *testing.T) {
	stdout, err := executeCommand(t, "check", "activity_claim", "pending", "approve", "HOD")
	require.NoError(t, err)
	assert.Contains(t, stdout, "allowed: activity_claim pending --approve--> approved")
	assert.Contains(t, stdout, "guard: proctor_signoff_waived")
}

func TestCheckForbiddenListsAvailable(t *testing.T) {
	stdout, err := executeCommand(t, "check", "activity_claim", "pending", "approve", "proctor")
	require.ErrorContains(t, err, "forbidden")
	assert.Contains(t, stdout, "available: reject -> proctor_rejected")
	assert.Contains(t, stdout, "available: verify -> proctor_verified")
}

func TestCheckJSON(t *testing.T) {
	stdout, err := executeCommand(t, "--json", "check", "document", "rejected", "override_verify", "hod")
	require.NoError(t, err)

	var result checkResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	require.True(t, result.Allowed)
	require.NotNil(t, result.Edge)
	assert.Equal(t, workflow.StateApproved, result.Edge.To)
}

func TestValidateDumpedPolicy(t *testing.T) {
	dumped, err := executeCommand(t, "dump")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(dumped), 0o600))

	stdout, err := executeCommand(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "14 edges ok")
}

func TestValidateReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	candidate := `edges:
  - entity_type: event
    from: pending
    action: approve
    roles: [hod, student]
    to: active
`
	require.NoError(t, os.WriteFile(path, []byte(candidate), 0o600))

	stdout, err := executeCommand(t, "validate", path)
	require.ErrorContains(t, err, "1 problem(s)")
	assert.Contains(t, stdout, "students may not act")
}

func TestValidateRejectsEmptyPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("edges: []\n"), 0o600))

	_, err := executeCommand(t, "validate", path)
	require.ErrorContains(t, err, "declares no edges")
}
