// Package tagging derives tags from record content and normalizes them into
// the duplicate key used by the import pipeline.
//
// Tags are the whitespace-separated tokens of the content in their original
// order. The normalized form is the set of tags after case and diacritic
// folding, sorted and de-duplicated, so that two contents with the same tokens
// in any order and any repetition share a key.
package tagging

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mrlokans/tagnotes/internal/entities"
)

// Rules controls how tags are folded before comparison.
type Rules struct {
	CaseSensitive bool `json:"caseSensitive"`
	RemoveAccents bool `json:"removeAccents"`
	Version       int  `json:"-"`
}

// RulesFromSettings converts persisted settings into extractor rules.
func RulesFromSettings(s *entities.NormalizationSettings) Rules {
	if s == nil {
		return Rules{Version: 1}
	}
	return Rules{
		CaseSensitive: s.CaseSensitive,
		RemoveAccents: s.RemoveAccents,
		Version:       s.Version,
	}
}

// RulesFromSession returns the rules pinned on an import session.
func RulesFromSession(s *entities.ImportSession) Rules {
	return Rules{
		CaseSensitive: s.CaseSensitive,
		RemoveAccents: s.RemoveAccents,
		Version:       s.NormalizationVersion,
	}
}

// Equivalent reports whether two rule sets fold tags identically.
func (r Rules) Equivalent(other Rules) bool {
	return r.CaseSensitive == other.CaseSensitive && r.RemoveAccents == other.RemoveAccents
}

// Analysis is everything the pipeline derives from one record's content.
type Analysis struct {
	Tags       []string
	Normalized []string
	Key        string
}

// Extractor applies one fixed set of rules. It is safe for concurrent use.
type Extractor struct {
	rules Rules
}

func NewExtractor(rules Rules) *Extractor {
	return &Extractor{rules: rules}
}

func (e *Extractor) Rules() Rules {
	return e.rules
}

// Extract splits content on runs of Unicode whitespace, dropping empty tokens.
func Extract(content string) []string {
	return strings.Fields(content)
}

// Normalize folds each tag and returns the sorted set of non-empty results.
func (e *Extractor) Normalize(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		folded := e.fold(tag)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		normalized = append(normalized, folded)
	}
	sort.Strings(normalized)
	return normalized
}

func (e *Extractor) fold(tag string) string {
	if !e.rules.CaseSensitive {
		tag = cases.Lower(language.Und).String(tag)
	}
	if e.rules.RemoveAccents {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if stripped, _, err := transform.String(t, tag); err == nil {
			tag = stripped
		}
	}
	return tag
}

// Key returns the hex blake2b-256 digest of a normalized tag set. Each tag is
// length-prefixed so that tag boundaries are part of the digest. An empty set
// has no key.
func Key(normalized []string) string {
	if len(normalized) == 0 {
		return ""
	}
	h, _ := blake2b.New256(nil)
	var prefix [binary.MaxVarintLen64]byte
	for _, tag := range normalized {
		n := binary.PutUvarint(prefix[:], uint64(len(tag)))
		h.Write(prefix[:n])
		h.Write([]byte(tag))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze extracts, normalizes and keys content in one pass.
func (e *Extractor) Analyze(content string) Analysis {
	tags := Extract(content)
	normalized := e.Normalize(tags)
	return Analysis{
		Tags:       tags,
		Normalized: normalized,
		Key:        Key(normalized),
	}
}
