package exporters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrlokans/tagnotes/internal/utils"
)

// FileName returns the default file name of an export taken at t.
func FileName(username string, t time.Time) string {
	return utils.SanitizeFilename(fmt.Sprintf("%s-records-%s", username, t.UTC().Format("20060102-150405"))) + ".json"
}

// WriteFile writes bundle as indented JSON to path, creating parent
// directories as needed.
func WriteFile(bundle *Bundle, path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
