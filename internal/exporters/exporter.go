package exporters

import (
	"fmt"
	"time"

	"github.com/mrlokans/tagnotes/internal/importers"
	"github.com/mrlokans/tagnotes/internal/services"
	"github.com/mrlokans/tagnotes/internal/tagging"
)

// timestampLayout is used for every exported timestamp.
const timestampLayout = time.RFC3339Nano

type ExportRecord struct {
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type ExportMetadata struct {
	ExportedAt         string         `json:"exportedAt"`
	RecordCount        int            `json:"recordCount"`
	NormalizationRules *tagging.Rules `json:"normalizationRules,omitempty"`
}

// Bundle is an export in the same shape the importer accepts.
type Bundle struct {
	Version  importers.Version `json:"version"`
	Records  []ExportRecord    `json:"records"`
	Metadata ExportMetadata    `json:"metadata"`
}

// Exporter writes a user's records as an import bundle.
type Exporter struct {
	records services.RecordReader
	rules   services.NormalizationRulesProvider
	now     func() time.Time
}

func NewExporter(records services.RecordReader, rules services.NormalizationRulesProvider) *Exporter {
	return &Exporter{
		records: records,
		rules:   rules,
		now:     time.Now,
	}
}

// Export returns all records of userID in insertion order. Version 2.0
// carries updatedAt and the normalization rules, 1.0 omits both.
func (e *Exporter) Export(userID uint, version importers.Version) (*Bundle, error) {
	if version == "" {
		version = importers.Version2
	}
	if !version.Valid() {
		return nil, fmt.Errorf("unsupported export version %q", version)
	}

	stored, err := e.records.ListRecords(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	bundle := &Bundle{
		Version: version,
		Records: make([]ExportRecord, 0, len(stored)),
		Metadata: ExportMetadata{
			ExportedAt:  e.now().UTC().Format(timestampLayout),
			RecordCount: len(stored),
		},
	}
	for _, r := range stored {
		rec := ExportRecord{
			Content:   r.Content,
			CreatedAt: r.CreatedAt.UTC().Format(timestampLayout),
		}
		if version == importers.Version2 {
			rec.UpdatedAt = r.UpdatedAt.UTC().Format(timestampLayout)
		}
		bundle.Records = append(bundle.Records, rec)
	}

	if version == importers.Version2 {
		settings, err := e.rules.GetNormalizationSettings(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load normalization settings: %w", err)
		}
		rules := tagging.RulesFromSettings(settings)
		bundle.Metadata.NormalizationRules = &rules
	}
	return bundle, nil
}
