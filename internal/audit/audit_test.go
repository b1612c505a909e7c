package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	archive := NewReportArchive(dir)

	t.Run("Save writes a named report", func(t *testing.T) {
		report := map[string]any{
			"sessionId": "abc-123",
			"imported":  42,
			"errors":    []string{"record 3: content is empty"},
		}

		filename, err := archive.Save("abc-123", report)
		require.NoError(t, err)
		assert.Equal(t, "abc-123.json", filename)

		content, err := os.ReadFile(filepath.Join(dir, filename))
		require.NoError(t, err)

		var saved map[string]any
		require.NoError(t, json.Unmarshal(content, &saved))
		assert.Equal(t, "abc-123", saved["sessionId"])
		assert.Equal(t, float64(42), saved["imported"])
		assert.Equal(t, []any{"record 3: content is empty"}, saved["errors"])
	})

	t.Run("Save generates unique names for unnamed reports", func(t *testing.T) {
		first, err := archive.Save("", map[string]string{"key": "value"})
		require.NoError(t, err)

		second, err := archive.Save("", map[string]string{"key": "value"})
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
		assert.FileExists(t, filepath.Join(dir, first))
	})

	t.Run("Save sanitizes the name", func(t *testing.T) {
		filename, err := archive.Save("../escape", map[string]string{})
		require.NoError(t, err)
		assert.NotContains(t, filename, "/")
		assert.FileExists(t, filepath.Join(dir, filename))
	})

	t.Run("Save rejects values that cannot be encoded", func(t *testing.T) {
		_, err := archive.Save("bad", map[string]any{"ch": make(chan int)})
		assert.Error(t, err)
	})
}
