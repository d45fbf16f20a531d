package item

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxTextLength is the display length items are tidied to
const DefaultMaxTextLength = 80

const ellipsis = " ..."

// Item is one piece of content produced by a source
type Item struct {
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Link      string    `json:"link"`
}

// TidyText collapses whitespace runs into single spaces and trims the result.
// Text longer than maxLen runes is cut to maxLen-4 runes and gets " ..." appended,
// so the output never exceeds maxLen.
func TidyText(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	keep := maxLen - utf8.RuneCountInString(ellipsis)
	if keep <= 0 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:keep]) + ellipsis
}

// StoredTime is t as it survives a cache round trip: UTC with millisecond precision
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
