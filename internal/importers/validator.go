package importers

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mrlokans/tagnotes/internal/entities"
)

// timestampLayouts are the accepted ISO-8601 forms. Layouts without an
// offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 date or date-time. The timezone offset is
// optional but must be well-formed when present.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", value)
}

// Validator checks untyped payloads against the two recognized bundle schemas.
type Validator struct {
	maxContentLength int
}

func NewValidator() *Validator {
	return &Validator{maxContentLength: entities.MaxContentLength}
}

// Validate checks payload and returns its schema version. Every violated field
// is reported in the returned *SchemaValidationError.
func (v *Validator) Validate(payload any) (Version, error) {
	var errs []FieldError
	fail := func(path, code, format string, args ...any) {
		errs = append(errs, FieldError{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	root, ok := payload.(map[string]any)
	if !ok {
		fail("", CodeInvalidType, "payload must be a JSON object")
		return "", &SchemaValidationError{Fields: errs}
	}

	var version Version
	switch raw, present := root["version"]; {
	case !present:
		fail("version", CodeMissingField, "is required")
	default:
		s, isString := raw.(string)
		switch {
		case !isString:
			fail("version", CodeInvalidType, "must be a string")
		case !Version(s).Valid():
			fail("version", CodeUnsupportedVersion, "unsupported version %q, expected %q or %q", s, Version1, Version2)
		default:
			version = Version(s)
		}
	}

	if raw, present := root["metadata"]; present && raw != nil {
		if _, isObject := raw.(map[string]any); !isObject {
			fail("metadata", CodeInvalidType, "must be an object")
		}
	}

	raw, present := root["records"]
	records, isArray := raw.([]any)
	switch {
	case !present:
		fail("records", CodeMissingField, "is required")
	case !isArray:
		fail("records", CodeInvalidType, "must be an array")
	default:
		for i, item := range records {
			errs = append(errs, v.validateRecord(fmt.Sprintf("records.%d", i), item, version)...)
		}
	}

	if len(errs) > 0 {
		return "", &SchemaValidationError{Fields: errs}
	}
	return version, nil
}

func (v *Validator) validateRecord(path string, item any, version Version) []FieldError {
	record, ok := item.(map[string]any)
	if !ok {
		return []FieldError{{Path: path, Code: CodeInvalidType, Message: "must be an object"}}
	}

	var errs []FieldError
	content, present := record["content"]
	text, isString := content.(string)
	switch {
	case !present:
		errs = append(errs, FieldError{Path: path + ".content", Code: CodeMissingField, Message: "is required"})
	case !isString:
		errs = append(errs, FieldError{Path: path + ".content", Code: CodeInvalidType, Message: "must be a string"})
	case text == "":
		errs = append(errs, FieldError{Path: path + ".content", Code: CodeEmptyContent, Message: "must not be empty"})
	case utf8.RuneCountInString(text) > v.maxContentLength:
		errs = append(errs, FieldError{
			Path:    path + ".content",
			Code:    CodeContentTooLong,
			Message: fmt.Sprintf("must be at most %d characters, got %d", v.maxContentLength, utf8.RuneCountInString(text)),
		})
	}

	if fe, ok := checkTimestamp(path+".createdAt", record, true); !ok {
		errs = append(errs, fe)
	}
	// v1 records carry no updatedAt; migration derives it from createdAt.
	if version != Version1 {
		if fe, ok := checkTimestamp(path+".updatedAt", record, version == Version2); !ok {
			errs = append(errs, fe)
		}
	}
	return errs
}

func checkTimestamp(path string, record map[string]any, required bool) (FieldError, bool) {
	key := path[strings.LastIndexByte(path, '.')+1:]
	raw, present := record[key]
	if !present || raw == nil {
		if required {
			return FieldError{Path: path, Code: CodeMissingField, Message: "is required"}, false
		}
		return FieldError{}, true
	}
	s, ok := raw.(string)
	if !ok {
		return FieldError{Path: path, Code: CodeInvalidType, Message: "must be an ISO-8601 string"}, false
	}
	if _, err := ParseTimestamp(s); err != nil {
		return FieldError{
			Path:    path,
			Code:    CodeInvalidDate,
			Message: fmt.Sprintf("%q is not an ISO-8601 timestamp, expected e.g. 2024-01-01T00:00:00Z", s),
		}, false
	}
	return FieldError{}, true
}
