package policy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePolicy() *Document {
	return &Document{
		ID:            "default",
		Name:          "default policy",
		DefaultEffect: EffectDeny,
		Rules: []Rule{
			{ID: "r1", Effect: EffectAllow, Description: "allow safe reads",
				Condition: Condition{Predicate: Predicate{Field: FieldActionType, Operator: OpStartsWith, Value: "safe.read."}}},
		},
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, Save(path, samplePolicy()))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", loaded.Version)
	assert.Len(t, loaded.Rules, 1)
}

func TestSaveBumpsVersionAndBacksUpPrior(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, Save(path, samplePolicy()))
	require.NoError(t, Save(path, samplePolicy()))
	require.NoError(t, Save(path, samplePolicy()))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "v3", loaded.Version)

	v1, err := LoadVersion(path, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", v1.Version)

	v2, err := LoadVersion(path, 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.Version)
}

func TestListVersionsSortedDescending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, Save(path, samplePolicy()))
	require.NoError(t, Save(path, samplePolicy()))
	require.NoError(t, Save(path, samplePolicy()))

	versions, err := ListVersions(path)
	require.NoError(t, err)
	require.Len(t, versions, 2) // v1, v2 backed up; v3 is the live file
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[1].Version)
}

func TestListVersionsOnMissingDirReturnsEmpty(t *testing.T) {
	versions, err := ListVersions(filepath.Join(t.TempDir(), "nope", "policy.json"))
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestRollbackRestoresContentAsNewForwardVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	v1 := samplePolicy()
	v1.Name = "original"
	require.NoError(t, Save(path, v1))

	v2 := samplePolicy()
	v2.Name = "modified"
	require.NoError(t, Save(path, v2))

	restored, err := Rollback(path, 1)
	require.NoError(t, err)
	assert.Equal(t, "original", restored.Name)
	assert.Equal(t, "v3", restored.Version, "rollback creates a new forward version, not a revival of v1")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "original", loaded.Name)
	assert.Equal(t, "v3", loaded.Version)
}

func TestVersionIntExtractsDigits(t *testing.T) {
	assert.Equal(t, 3, versionInt("v3"))
	assert.Equal(t, 12, versionInt("version-12"))
	assert.Equal(t, 0, versionInt("no-digits-here"))
}

func TestSaveNeverDeletesOlderBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	for i := 0; i < 5; i++ {
		require.NoError(t, Save(path, samplePolicy()))
	}
	versions, err := ListVersions(path)
	require.NoError(t, err)
	assert.Len(t, versions, 4)
}
