package detect

import (
	"os"
	"path/filepath"
	"testing"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validRuleYAML = `
rules:
  - id: bf-1
    name: ssh brute force
    enabled: true
    severity: high
    conditions:
      - field: event_type
        operator: equals
        value: login_failure
    aggregation:
      function: count
      size: 5
      unit: minutes
      group_by: [username]
      having:
        field: count
        operator: greater_than
        value: 5
`

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRuleLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "bruteforce.yaml", validRuleYAML)
	writeRuleFile(t, dir, "single.yml", `
id: port-scan
name: port scan
enabled: true
severity: medium
conditions:
  - field: event_type
    operator: equals
    value: connection_attempt
`)
	writeRuleFile(t, dir, "notes.txt", "not a rule file")

	store := core.NewSnapshotStore()
	loader := NewRuleLoader(dir, store, zap.NewNop().Sugar())

	version, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	snap := store.Current()
	require.Len(t, snap.Rules, 2)
	// Files load in name order.
	assert.Equal(t, "bf-1", snap.Rules[0].ID)
	assert.Equal(t, "port-scan", snap.Rules[1].ID)
}

func TestRuleLoader_InvalidRuleRejectsWholeReload(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "good.yaml", validRuleYAML)
	writeRuleFile(t, dir, "bad.yaml", `
rules:
  - id: broken
    name: broken rule
    enabled: true
    severity: high
    conditions:
      - field: event_type
        operator: no_such_operator
        value: x
`)

	store := core.NewSnapshotStore()
	loader := NewRuleLoader(dir, store, zap.NewNop().Sugar())

	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_operator")

	// The previous (empty) snapshot stays active.
	assert.Empty(t, store.Current().Rules)
	assert.Zero(t, store.Current().Version)
}

func TestRuleLoader_DuplicateRuleID(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a.yaml", validRuleYAML)
	writeRuleFile(t, dir, "b.yaml", validRuleYAML)

	loader := NewRuleLoader(dir, core.NewSnapshotStore(), zap.NewNop().Sugar())
	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule ID")
}

func TestRuleLoader_MissingSeverityFailsValidation(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a.yaml", `
rules:
  - id: r1
    name: missing severity
    enabled: true
`)
	loader := NewRuleLoader(dir, core.NewSnapshotStore(), zap.NewNop().Sugar())
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestRuleLoader_ReloadBumpsVersion(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a.yaml", validRuleYAML)

	store := core.NewSnapshotStore()
	loader := NewRuleLoader(dir, store, zap.NewNop().Sugar())

	v1, err := loader.Load()
	require.NoError(t, err)
	v2, err := loader.Load()
	require.NoError(t, err)
	assert.Greater(t, v2, v1)
}

func TestRuleLoader_MissingDirectory(t *testing.T) {
	loader := NewRuleLoader("/nonexistent/rules", core.NewSnapshotStore(), zap.NewNop().Sugar())
	_, err := loader.Load()
	assert.Error(t, err)
}
