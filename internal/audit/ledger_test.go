package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeclaw/core/pkg/envelope"
)

func tempLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	return Open(filepath.Join(dir, "audit.jsonl"))
}

func sampleEntry(actionType string, outcome envelope.Outcome) Entry {
	return Entry{
		Timestamp:   "2026-07-30T00:00:00Z",
		ToolName:    "Bash",
		ActionType:  actionType,
		Resource:    "ls -la",
		Outcome:     outcome,
		Profile:     "default",
		Source:      SourceLocalPrefilter,
		RiskSignals: envelope.NewRiskSignals(),
	}
}

func TestFirstAppendUsesGenesis(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))

	entries, err := l.Read(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Genesis, entries[0].PrevHash)
}

func TestAppendChainsPrevHash(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))
	require.NoError(t, l.Append(sampleEntry("filesystem.write", envelope.OutcomeDeny)))

	entries, err := l.Read(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest-first: entries[0] is the second append.
	assert.NotEqual(t, Genesis, entries[0].PrevHash)
}

func TestReadIsNewestFirst(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("a.1", envelope.OutcomeAllow)))
	require.NoError(t, l.Append(sampleEntry("a.2", envelope.OutcomeAllow)))
	require.NoError(t, l.Append(sampleEntry("a.3", envelope.OutcomeAllow)))

	entries, err := l.Read(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a.3", entries[0].ActionType)
	assert.Equal(t, "a.1", entries[2].ActionType)
}

func TestReadFiltersByActionTypePrefixAndOutcome(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("safe.read.file", envelope.OutcomeAllow)))
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeDeny)))
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))

	entries, err := l.Read(Filter{ActionTypePrefix: "code.", HasOutcome: true, Outcome: envelope.OutcomeAllow})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "code.exec", entries[0].ActionType)
}

func TestReadRespectsLimit(t *testing.T) {
	l := tempLedger(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))
	}
	entries, err := l.Read(Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := l.Read(Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadOnMissingFileReturnsEmpty(t *testing.T) {
	l := tempLedger(t)
	entries, err := l.Read(Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVerifyValidChain(t *testing.T) {
	l := tempLedger(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))
	}
	result, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 4, result.TotalEntries)
	assert.Equal(t, 4, result.ChainedEntries)
	assert.Empty(t, result.Errors)
}

func TestVerifyDetectsTamperedLine(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))
	require.NoError(t, l.Append(sampleEntry("filesystem.write", envelope.OutcomeDeny)))
	require.NoError(t, l.Append(sampleEntry("network.http", envelope.OutcomeAllow)))

	raw, err := os.ReadFile(l.path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimRight(raw, "\n"), []byte("\n"))
	require.Len(t, lines, 3)

	var mid Entry
	require.NoError(t, json.Unmarshal(lines[1], &mid))
	mid.Resource = "tampered"
	tampered, err := json.Marshal(mid)
	require.NoError(t, err)
	lines[1] = tampered

	require.NoError(t, os.WriteFile(l.path, bytes.Join(lines, []byte("\n")), 0o600))

	result, err := l.Verify()
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestVerifyOnMissingFileIsValid(t *testing.T) {
	l := tempLedger(t)
	result, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 0, result.TotalEntries)
}

func TestRotateMovesFileAsideAndResetsChain(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))

	require.NoError(t, l.Rotate())

	_, err := os.Stat(l.path + ".1")
	require.NoError(t, err)

	entries, err := l.Read(Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))
	entries, err = l.Read(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Genesis, entries[0].PrevHash)
}

func TestRotateUnlinksPriorBackup(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))
	require.NoError(t, l.Rotate())
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))
	require.NoError(t, l.Rotate())

	data, err := os.ReadFile(l.path + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "code.exec")
}

func TestAppendCreatesOwnerOnlyFile(t *testing.T) {
	l := tempLedger(t)
	require.NoError(t, l.Append(sampleEntry("code.exec", envelope.OutcomeAllow)))

	info, err := os.Stat(l.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestExportCSVIncludesHeaderAndRows(t *testing.T) {
	l := tempLedger(t)
	e := sampleEntry("code.exec", envelope.OutcomeAllow)
	e.RiskSignals = envelope.NewRiskSignals(envelope.RiskBroadDestructive)
	require.NoError(t, l.Append(e))

	entries, err := l.Read(Filter{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, entries))
	out := buf.String()
	assert.Contains(t, out, "timestamp,toolName,actionType")
	assert.Contains(t, out, "broad_destructive")
}
