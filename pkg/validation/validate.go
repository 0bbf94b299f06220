package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"huddle/pkg/models"
)

// Rules drives message validation. Zero values disable a check.
type Rules struct {
	// MaxTextBytes caps the UTF-8 byte length of message text.
	MaxTextBytes int
	// MaxEmojiRunes caps a reaction emoji's rune count.
	MaxEmojiRunes int
	// AllowedEmojis restricts reactions to a fixed set when non-empty.
	AllowedEmojis []string
}

var rules = Rules{MaxTextBytes: 4096, MaxEmojiRunes: 8}

func SetRules(r Rules) {
	if r.MaxTextBytes <= 0 {
		r.MaxTextBytes = 4096
	}
	if r.MaxEmojiRunes <= 0 {
		r.MaxEmojiRunes = 8
	}
	rules = r
}

// ValidateMessage checks an incoming message body before it reaches the
// store. Empty and whitespace-only text is rejected.
func ValidateMessage(m models.Message) error {
	var errs []string
	if strings.TrimSpace(m.Text) == "" {
		errs = append(errs, "text is required")
	}
	if len(m.Text) > rules.MaxTextBytes {
		errs = append(errs, fmt.Sprintf("text too long: %d > %d bytes", len(m.Text), rules.MaxTextBytes))
	}
	if !utf8.ValidString(m.Text) {
		errs = append(errs, "text is not valid utf-8")
	}
	for _, re := range m.Reactions {
		if err := ValidateEmoji(re.Emoji); err != nil {
			errs = append(errs, err.Error())
			break
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateEmoji checks a reaction emoji value.
func ValidateEmoji(e string) error {
	if strings.TrimSpace(e) == "" {
		return errors.New("emoji is required")
	}
	if utf8.RuneCountInString(e) > rules.MaxEmojiRunes {
		return fmt.Errorf("emoji too long: %d > %d runes", utf8.RuneCountInString(e), rules.MaxEmojiRunes)
	}
	if len(rules.AllowedEmojis) > 0 {
		for _, a := range rules.AllowedEmojis {
			if a == e {
				return nil
			}
		}
		return fmt.Errorf("emoji not allowed: %q", e)
	}
	return nil
}

// ValidateReportReason checks a moderation report's reason text.
func ValidateReportReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("reason is required")
	}
	if len(reason) > 1024 {
		return errors.New("reason too long")
	}
	return nil
}
