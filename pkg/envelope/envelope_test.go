package envelope

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSafeRead(t *testing.T) {
	assert.True(t, IsSafeRead("safe.read.file"))
	assert.True(t, IsSafeRead("safe.read.glob"))
	assert.False(t, IsSafeRead("filesystem.write"))
	assert.False(t, IsSafeRead("code.exec"))
}

func TestIsFilesystem(t *testing.T) {
	assert.True(t, IsFilesystem("filesystem.write"))
	assert.False(t, IsFilesystem("safe.read.file"))
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("a", 500)
	truncated := Truncate(long)
	assert.Len(t, []rune(truncated), MaxResourceLen)
}

func TestRiskSignalsDedup(t *testing.T) {
	rs := NewRiskSignals(RiskBroadDestructive, RiskBroadDestructive, RiskPipeToExternal)
	assert.Equal(t, 2, rs.Len())
	assert.True(t, rs.Has(RiskBroadDestructive))
	assert.True(t, rs.Has(RiskPipeToExternal))
	assert.False(t, rs.Has(RiskObfuscatedExecution))
}

func TestRiskSignalsEmptyMarshalsArray(t *testing.T) {
	rs := NewRiskSignals()
	data, err := json.Marshal(rs)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRiskSignalsMarshalOrder(t *testing.T) {
	rs := NewRiskSignals(RiskPipeToExternal, RiskCredentialAdjacent)
	data, err := json.Marshal(rs)
	require.NoError(t, err)
	assert.Equal(t, `["pipe_to_external","credential_adjacent"]`, string(data))
}

func TestOutcomeValid(t *testing.T) {
	assert.True(t, OutcomeAllow.Valid())
	assert.True(t, OutcomeDeny.Valid())
	assert.True(t, OutcomeRequireApproval.Valid())
	assert.False(t, Outcome("bogus").Valid())
	assert.False(t, OutcomeUnknown.Valid())
}

func TestDecisionHelpers(t *testing.T) {
	a := Allow("Local pre-filter")
	assert.True(t, a.IsAllow())
	d := Deny("fail-closed")
	assert.False(t, d.IsAllow())
}
