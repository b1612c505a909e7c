package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mrlokans/tagnotes/internal/utils"
)

// ReportArchive keeps import reports as JSON files in a directory.
type ReportArchive struct {
	Dir string
}

func NewReportArchive(dir string) *ReportArchive {
	return &ReportArchive{
		Dir: dir,
	}
}

// Save writes data to <name>.json and returns the file name. An empty name is
// replaced by a random UUID.
func (a *ReportArchive) Save(name string, data any) (string, error) {
	if err := a.ensureDir(); err != nil {
		return "", fmt.Errorf("failed to ensure report directory: %w", err)
	}

	if name == "" {
		name = uuid.NewString()
	}
	filename := utils.SanitizeFilename(name) + ".json"
	path := filepath.Join(a.Dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return filename, nil
}

// ensureDir creates the report directory if it doesn't exist
func (a *ReportArchive) ensureDir() error {
	if _, err := os.Stat(a.Dir); os.IsNotExist(err) {
		if err := os.MkdirAll(a.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	return nil
}
