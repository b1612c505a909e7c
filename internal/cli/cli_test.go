package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/tagnotes/internal/exporters"
)

const sampleBundle = `{
  "version": "2.0",
  "records": [
    {"content": "go concurrency", "createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-02T00:00:00Z"},
    {"content": "sqlite wal", "createdAt": "2024-01-03T00:00:00Z", "updatedAt": "2024-01-03T00:00:00Z"},
    {"content": "Café notes", "createdAt": "2024-01-04T00:00:00Z", "updatedAt": "2024-01-05T00:00:00Z"}
  ]
}`

var sessionLine = regexp.MustCompile(`Session:\s+(\S+)`)

type testCLI struct {
	t      *testing.T
	dbPath string
	dir    string
}

func newTestCLI(t *testing.T) *testCLI {
	dir := t.TempDir()
	return &testCLI{t: t, dbPath: filepath.Join(dir, "cli.db"), dir: dir}
}

// run executes one command and returns its stdout.
func (c *testCLI) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := NewRootCommand("test")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--db", c.dbPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (c *testCLI) writeFile(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func sessionID(t *testing.T, out string) string {
	t.Helper()
	m := sessionLine.FindStringSubmatch(out)
	require.Len(t, m, 2, "no session in output: %s", out)
	return m[1]
}

func TestImportAndExport(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("bundle.json", sampleBundle)

	out, err := c.run("import", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "Imported: 3")

	out, err = c.run("import", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported: 0")
	assert.Contains(t, out, "Skipped:  3")

	out, err = c.run("export")
	require.NoError(t, err)
	var exported exporters.Bundle
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	assert.Equal(t, "2.0", string(exported.Version))
	require.Len(t, exported.Records, 3)
	assert.Equal(t, "go concurrency", exported.Records[0].Content)
}

func TestImport_ChunkSizeFlag(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("bundle.json", sampleBundle)

	out, err := c.run("import", "--chunk-size", "1", bundle)
	require.NoError(t, err)
	id := sessionID(t, out)

	out, err = c.run("sessions", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Chunk:     1 records")
	assert.Contains(t, out, "Progress:  3/3")
}

func TestImport_Rejected(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("broken.json", `{"version": "2.0", "records": [`)
	reports := filepath.Join(c.dir, "reports")

	out, err := c.run("import", "--report-dir", reports, bundle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEMA_VALIDATION_FAILED")
	assert.Contains(t, out, "- INVALID_JSON: ")
	assert.NotContains(t, out, "Session:")

	entries, err := os.ReadDir(reports)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".json"))
}

func TestImport_SchemaErrors(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("schema.json", `{"version": "2.0", "records": [{"createdAt": "2024-01-01T00:00:00Z"}]}`)

	out, err := c.run("import", bundle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEMA_VALIDATION_FAILED")
	assert.Contains(t, out, "record 0: MISSING_FIELD: records.0.content: is required")
}

func TestImport_ReportDir(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("bundle.json", sampleBundle)
	reports := filepath.Join(c.dir, "reports")

	out, err := c.run("import", "--report-dir", reports, bundle)
	require.NoError(t, err)
	id := sessionID(t, out)

	data, err := os.ReadFile(filepath.Join(reports, "import-"+id+".json"))
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, id, report["sessionId"])
	assert.EqualValues(t, 3, report["imported"])
}

func TestImport_MissingFile(t *testing.T) {
	c := newTestCLI(t)

	_, err := c.run("import", filepath.Join(c.dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read bundle")
}

func TestImport_UnknownUser(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("bundle.json", sampleBundle)

	_, err := c.run("import", "--user", "nobody", bundle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown user "nobody"`)
}

func TestExport_ToDirectory(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("bundle.json", sampleBundle)
	_, err := c.run("import", bundle)
	require.NoError(t, err)

	exportDir := filepath.Join(c.dir, "exports") + string(os.PathSeparator)
	_, err = c.run("export", "--version", "1.0", "--out", exportDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "default-records-"))

	data, err := os.ReadFile(filepath.Join(exportDir, entries[0].Name()))
	require.NoError(t, err)
	var exported map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, "1.0", exported["version"])
	records := exported["records"].([]any)
	require.Len(t, records, 3)
	assert.NotContains(t, records[0], "updatedAt")
}

func TestExport_InvalidVersion(t *testing.T) {
	c := newTestCLI(t)

	_, err := c.run("export", "--version", "3.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export version")
}

func TestSessions_Empty(t *testing.T) {
	c := newTestCLI(t)

	out, err := c.run("sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No resumable sessions.")
}

func TestSessionsShow_Unknown(t *testing.T) {
	c := newTestCLI(t)

	_, err := c.run("sessions", "show", "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResume(t *testing.T) {
	c := newTestCLI(t)
	bundle := c.writeFile("bundle.json", sampleBundle)
	out, err := c.run("import", bundle)
	require.NoError(t, err)
	id := sessionID(t, out)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "resume completed", args: []string{"resume", id}, wantErr: "cannot resume"},
		{name: "retry completed", args: []string{"resume", "--retry", id}, wantErr: "cannot retry"},
		{name: "unknown session", args: []string{"resume", "nope"}, wantErr: "not found"},
		{name: "negative start", args: []string{"resume", "--from", "-1", id}, wantErr: "--from must not be negative"},
		{name: "conflicting actions", args: []string{"resume", "--retry", "--cancel", id}, wantErr: "none of the others can be"},
		{name: "missing id", args: []string{"resume"}, wantErr: "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResumeOptions_Request(t *testing.T) {
	cmd := newResumeCmd(&cliState{})
	require.NoError(t, cmd.ParseFlags([]string{"--skip-errors", "--from", "40", "--pause"}))

	opts := &resumeOptions{skipErrors: true, from: 40, pause: true}
	req, err := opts.request(cmd, "abc")
	require.NoError(t, err)
	assert.Equal(t, "pause", string(req.Action))
	assert.Equal(t, "abc", req.SessionID)
	assert.True(t, req.SkipErrors)
	require.NotNil(t, req.StartFromIndex)
	assert.Equal(t, 40, *req.StartFromIndex)

	cmd = newResumeCmd(&cliState{})
	require.NoError(t, cmd.ParseFlags(nil))
	req, err = (&resumeOptions{}).request(cmd, "abc")
	require.NoError(t, err)
	assert.Equal(t, "resume", string(req.Action))
	assert.Nil(t, req.StartFromIndex)
}

func TestSettingsNormalization(t *testing.T) {
	c := newTestCLI(t)

	out, err := c.run("settings", "normalization")
	require.NoError(t, err)
	assert.Contains(t, out, "caseSensitive: false")
	assert.Contains(t, out, "version:       1")

	out, err = c.run("settings", "normalization", "--remove-accents=true")
	require.NoError(t, err)
	assert.Contains(t, out, "removeAccents: true")
	assert.Contains(t, out, "version:       2")

	out, err = c.run("settings", "normalization", "--case-sensitive")
	require.NoError(t, err)
	assert.Contains(t, out, "caseSensitive: true")
	assert.Contains(t, out, "removeAccents: true")
	assert.Contains(t, out, "version:       3")
}

func TestIsDirTarget(t *testing.T) {
	dir := t.TempDir()

	assert.True(t, isDirTarget(dir))
	assert.True(t, isDirTarget(filepath.Join(dir, "new")+"/"))
	assert.False(t, isDirTarget(filepath.Join(dir, "out.json")))
}
