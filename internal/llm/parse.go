package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/ppiankov/applytrail/internal/model"
)

// ParseClassification reads a YES/NO answer. The first recognized token wins.
func ParseClassification(text string) (bool, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, f := range fields {
		switch strings.ToUpper(f) {
		case "YES", "TRUE":
			return true, nil
		case "NO", "FALSE":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: unrecognized classification answer %q", model.ErrInference, truncate(text, 80))
}

type extractionPayload struct {
	Company  *string `json:"company"`
	Position *string `json:"position"`
	Date     *string `json:"date"`
}

// ParseExtraction locates the JSON object inside a response and normalizes
// its fields. Both fields absent yields model.ErrExtractionIncomplete.
func ParseExtraction(text string) (model.Extraction, error) {
	block, ok := locateJSON(text)
	if !ok {
		return model.Extraction{}, fmt.Errorf("%w: no JSON object in response", model.ErrInference)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return model.Extraction{}, fmt.Errorf("%w: decode extraction: %w", model.ErrInference, err)
	}

	ext := model.Extraction{
		Company:       normalizeField(payload.Company),
		Position:      normalizeField(payload.Position),
		MentionedDate: normalizeField(payload.Date),
	}
	if !ext.Complete() {
		return ext, model.ErrExtractionIncomplete
	}
	return ext, nil
}

// normalizeField maps JSON null, blanks and null-like words to ""
func normalizeField(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	switch strings.ToLower(s) {
	case "", "null", "none", "nil", "n/a", "unknown":
		return ""
	}
	return s
}

// locateJSON returns the first balanced {...} block in text, skipping braces
// inside string literals.
func locateJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
