package validation

import (
	"strings"
	"testing"

	"huddle/pkg/models"
)

func TestValidateMessage(t *testing.T) {
	SetRules(Rules{MaxTextBytes: 32})
	defer SetRules(Rules{})

	if err := ValidateMessage(models.Message{Text: "hello"}); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	if err := ValidateMessage(models.Message{Text: "   "}); err == nil {
		t.Fatalf("whitespace-only text accepted")
	}
	if err := ValidateMessage(models.Message{Text: strings.Repeat("a", 33)}); err == nil {
		t.Fatalf("oversized text accepted")
	}
	if err := ValidateMessage(models.Message{Text: string([]byte{0xff, 0xfe})}); err == nil {
		t.Fatalf("invalid utf-8 accepted")
	}
}

func TestValidateEmoji(t *testing.T) {
	SetRules(Rules{})
	if err := ValidateEmoji("🔥"); err != nil {
		t.Fatalf("emoji rejected: %v", err)
	}
	if err := ValidateEmoji(""); err == nil {
		t.Fatalf("empty emoji accepted")
	}
	if err := ValidateEmoji(strings.Repeat("🔥", 9)); err == nil {
		t.Fatalf("oversized emoji accepted")
	}

	SetRules(Rules{AllowedEmojis: []string{"🔥", "💪"}})
	defer SetRules(Rules{})
	if err := ValidateEmoji("💪"); err != nil {
		t.Fatalf("allowed emoji rejected: %v", err)
	}
	if err := ValidateEmoji("🎉"); err == nil {
		t.Fatalf("disallowed emoji accepted")
	}
}

func TestValidateReportReason(t *testing.T) {
	if err := ValidateReportReason("spam"); err != nil {
		t.Fatalf("valid reason rejected: %v", err)
	}
	if err := ValidateReportReason(" "); err == nil {
		t.Fatalf("blank reason accepted")
	}
	if err := ValidateReportReason(strings.Repeat("x", 1025)); err == nil {
		t.Fatalf("oversized reason accepted")
	}
}
