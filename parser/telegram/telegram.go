package telegram

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/scipunch/feedsorter/fetcher/types"
	"github.com/scipunch/feedsorter/item"
	"github.com/scipunch/feedsorter/parser"
)

var (
	codeBlockRe  = regexp.MustCompile("```([^`]+)```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	boldRe       = regexp.MustCompile(`\*\*([^\*]+)\*\*`)
	italicRe     = regexp.MustCompile(`__([^_]+)__`)
	strikeRe     = regexp.MustCompile(`~~([^~]+)~~`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^\)]+)\)`)
)

// Parser turns a fetched channel payload into one item per message
type Parser struct{}

func New() Parser {
	return Parser{}
}

func (p Parser) Parse(payload []byte) ([]item.Item, error) {
	var channel types.ChannelPayload
	if err := json.Unmarshal(payload, &channel); err != nil {
		return nil, fmt.Errorf("%w: invalid channel payload: %w", parser.ErrTransform, err)
	}
	if channel.Channel == "" {
		return nil, fmt.Errorf("%w: channel payload without channel name", parser.ErrTransform)
	}

	author := channel.Title
	if author == "" {
		author = "@" + channel.Channel
	}

	items := make([]item.Item, 0, len(channel.Messages))
	for _, msg := range channel.Messages {
		text := stripMarkup(msg.Text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		items = append(items, item.Item{
			Timestamp: time.Unix(msg.Date, 0).UTC(),
			Author:    author,
			Text:      text,
			Link:      fmt.Sprintf("https://t.me/%s/%d", channel.Channel, msg.ID),
		})
	}
	return items, nil
}

// stripMarkup removes Telegram formatting, keeping the visible text.
// Links keep their label only.
func stripMarkup(text string) string {
	if text == "" {
		return ""
	}
	text = codeBlockRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = strikeRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	return text
}
