package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExtract(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRecords_ParsesFlexibleScalars(t *testing.T) {
	path := writeExtract(t, `
{"source_row_id": "row-1", "external_id": 1001, "payload": {"first_name": "Jane", "postal_code": 94601, "source_deleted_flag": true}}
{"source_row_id": "row-2", "external_id": "ext-2", "payload": {"first_name": "Sam"}, "alternate_emails": ["sam@alt.example.com"], "source_deleted": true}
`)

	records, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "row-1", records[0].SourceRowID)
	assert.Equal(t, "1001", records[0].ExternalID)
	assert.Equal(t, "94601", records[0].Payload["postal_code"])
	assert.Equal(t, "true", records[0].Payload["source_deleted_flag"])
	assert.False(t, records[0].SourceDeleted)

	assert.Equal(t, "ext-2", records[1].ExternalID)
	assert.Equal(t, []string{"sam@alt.example.com"}, records[1].AlternateEmails)
	assert.True(t, records[1].SourceDeleted)
}

func TestReadRecords_MissingRowIDGetsLineFallback(t *testing.T) {
	path := writeExtract(t, `{"external_id": "ext-9", "payload": {}}`)

	records, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "line-1", records[0].SourceRowID)
}

func TestReadRecords_MalformedLineFailsWhole(t *testing.T) {
	path := writeExtract(t, `
{"source_row_id": "row-1", "external_id": "ext-1", "payload": {}}
{not json}
`)

	_, err := readRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestParseOverrides(t *testing.T) {
	overrides, err := parseOverrides([]string{"first_name=Jane M", "notes="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"first_name": "Jane M", "notes": ""}, overrides)

	_, err = parseOverrides([]string{"no-separator"})
	assert.Error(t, err)

	overrides, err = parseOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, overrides)
}

func TestBuildRun(t *testing.T) {
	run, err := buildRun("", "legacy_crm", "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, "legacy_crm", run.ExternalSystem)
	assert.Equal(t, "2026-08-30", run.IngestVersion)

	explicit, err := buildRun(run.ID.String(), "legacy_crm", "")
	require.NoError(t, err)
	assert.Equal(t, run.ID, explicit.ID)

	_, err = buildRun("not-a-uuid", "legacy_crm", "")
	assert.Error(t, err)
}
