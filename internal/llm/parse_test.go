package llm

import (
	"errors"
	"testing"

	"github.com/ppiankov/applytrail/internal/model"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"YES", true},
		{"yes.", true},
		{"Answer: NO", false},
		{"**No**, this is a rejection.", false},
		{"true", true},
	}

	for _, tt := range tests {
		got, err := ParseClassification(tt.text)
		if err != nil {
			t.Errorf("ParseClassification(%q) error: %v", tt.text, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClassification(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestParseClassification_Unrecognized(t *testing.T) {
	_, err := ParseClassification("maybe")
	if !errors.Is(err, model.ErrInference) {
		t.Fatalf("Expected ErrInference, got %v", err)
	}
}

func TestParseExtraction_SurroundingText(t *testing.T) {
	text := "Sure! Here is the data:\n```json\n{\"company\": \"Acme {Labs}\", \"position\": \"Backend Engineer\"}\n```\nLet me know."

	ext, err := ParseExtraction(text)
	if err != nil {
		t.Fatalf("ParseExtraction failed: %v", err)
	}
	if ext.Company != "Acme {Labs}" {
		t.Errorf("Expected company with braces, got %q", ext.Company)
	}
	if ext.Position != "Backend Engineer" {
		t.Errorf("Unexpected position %q", ext.Position)
	}
}

func TestParseExtraction_NullNormalization(t *testing.T) {
	ext, err := ParseExtraction(`{"company": "Acme", "position": "null", "date": "NONE"}`)
	if err != nil {
		t.Fatalf("ParseExtraction failed: %v", err)
	}
	if ext.Position != "" {
		t.Errorf("Expected absent position, got %q", ext.Position)
	}
	if ext.MentionedDate != "" {
		t.Errorf("Expected absent date, got %q", ext.MentionedDate)
	}

	ext, err = ParseExtraction(`{"company": null, "position": " Null "}`)
	if !errors.Is(err, model.ErrExtractionIncomplete) {
		t.Fatalf("Expected ErrExtractionIncomplete, got %v", err)
	}
	if ext.Company != "" || ext.Position != "" {
		t.Errorf("Expected both fields absent, got %+v", ext)
	}
}

func TestParseExtraction_EitherFieldSuffices(t *testing.T) {
	ext, err := ParseExtraction(`{"company": "", "position": "Data Analyst"}`)
	if err != nil {
		t.Fatalf("Expected position alone to suffice, got %v", err)
	}
	if ext.Position != "Data Analyst" {
		t.Errorf("Unexpected position %q", ext.Position)
	}
}

func TestParseExtraction_NoJSON(t *testing.T) {
	_, err := ParseExtraction("I could not find anything.")
	if !errors.Is(err, model.ErrInference) {
		t.Fatalf("Expected ErrInference, got %v", err)
	}
	if errors.Is(err, model.ErrExtractionIncomplete) {
		t.Errorf("Missing JSON is not an incomplete extraction")
	}
}

func TestLocateJSON_SkipsUnbalanced(t *testing.T) {
	block, ok := locateJSON(`note { unbalanced then {"a": "}"}`)
	if !ok || block != `{"a": "}"}` {
		t.Errorf("Expected inner balanced block, got %q (ok=%v)", block, ok)
	}

	block, ok = locateJSON(`prefix {"a": "x\"}"} suffix`)
	if !ok || block != `{"a": "x\"}"}` {
		t.Errorf("Unexpected block %q (ok=%v)", block, ok)
	}
}
