package importers

import (
	"fmt"

	"github.com/mrlokans/tagnotes/internal/tagging"
)

// Migrator converts validated payloads of any supported version into the
// canonical record shape.
type Migrator struct{}

func NewMigrator() *Migrator {
	return &Migrator{}
}

// Migrate maps payload to a Bundle. v1 records get UpdatedAt = CreatedAt;
// v2 records pass through. Record order is preserved and becomes the record
// index used by the rest of the pipeline.
func (m *Migrator) Migrate(payload any) (*Bundle, error) {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil, &SchemaValidationError{Fields: []FieldError{{Code: CodeInvalidType, Message: "payload must be a JSON object"}}}
	}
	rawVersion, _ := root["version"].(string)
	version := Version(rawVersion)
	if !version.Valid() {
		return nil, &SchemaValidationError{Fields: []FieldError{{
			Path:    "version",
			Code:    CodeUnsupportedVersion,
			Message: fmt.Sprintf("unsupported version %q", rawVersion),
		}}}
	}

	items, _ := root["records"].([]any)
	bundle := &Bundle{
		Version: version,
		Records: make([]CanonicalRecord, 0, len(items)),
	}

	for i, item := range items {
		record, err := migrateRecord(i, item, version)
		if err != nil {
			return nil, err
		}
		bundle.Records = append(bundle.Records, record)
	}

	if metadata, ok := root["metadata"].(map[string]any); ok {
		bundle.Metadata = metadata
		bundle.Rules = rulesFromMetadata(metadata)
	}
	return bundle, nil
}

func migrateRecord(index int, item any, version Version) (CanonicalRecord, error) {
	path := fmt.Sprintf("records.%d", index)
	fields, _ := item.(map[string]any)
	content, _ := fields["content"].(string)

	createdRaw, _ := fields["createdAt"].(string)
	createdAt, err := ParseTimestamp(createdRaw)
	if err != nil {
		return CanonicalRecord{}, &SchemaValidationError{Fields: []FieldError{{
			Path: path + ".createdAt", Code: CodeInvalidDate, Message: err.Error(),
		}}}
	}

	updatedAt := createdAt
	if version == Version2 {
		updatedRaw, _ := fields["updatedAt"].(string)
		if updatedAt, err = ParseTimestamp(updatedRaw); err != nil {
			return CanonicalRecord{}, &SchemaValidationError{Fields: []FieldError{{
				Path: path + ".updatedAt", Code: CodeInvalidDate, Message: err.Error(),
			}}}
		}
	}

	return CanonicalRecord{
		Index:     index,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// rulesFromMetadata reads metadata.normalizationRules written by an export.
func rulesFromMetadata(metadata map[string]any) *tagging.Rules {
	raw, ok := metadata["normalizationRules"].(map[string]any)
	if !ok {
		return nil
	}
	rules := &tagging.Rules{}
	rules.CaseSensitive, _ = raw["caseSensitive"].(bool)
	rules.RemoveAccents, _ = raw["removeAccents"].(bool)
	return rules
}
