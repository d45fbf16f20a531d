package rss

import (
	"bytes"
	"fmt"
	"html"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/scipunch/feedsorter/item"
	"github.com/scipunch/feedsorter/parser"
)

// Parser converts RSS, Atom and JSON feeds using gofeed
type Parser struct {
	fp     *gofeed.Parser
	policy *bluemonday.Policy
}

func New() *Parser {
	return &Parser{
		fp:     gofeed.NewParser(),
		policy: bluemonday.StrictPolicy(),
	}
}

// Parse decodes the feed document. The item title becomes the text,
// the item author (or the feed title) becomes the author.
func (p *Parser) Parse(payload []byte) ([]item.Item, error) {
	feed, err := p.fp.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed: %w", parser.ErrTransform, err)
	}

	items := make([]item.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi == nil {
			continue
		}
		items = append(items, item.Item{
			Timestamp: published(fi, feed),
			Author:    author(fi, feed),
			Text:      p.text(fi),
			Link:      fi.Link,
		})
	}
	return items, nil
}

func published(fi *gofeed.Item, feed *gofeed.Feed) time.Time {
	switch {
	case fi.PublishedParsed != nil:
		return fi.PublishedParsed.UTC()
	case fi.UpdatedParsed != nil:
		return fi.UpdatedParsed.UTC()
	case feed.UpdatedParsed != nil:
		return feed.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}

func author(fi *gofeed.Item, feed *gofeed.Feed) string {
	if fi.Author != nil && fi.Author.Name != "" {
		return fi.Author.Name
	}
	if len(fi.Authors) > 0 && fi.Authors[0] != nil && fi.Authors[0].Name != "" {
		return fi.Authors[0].Name
	}
	return feed.Title
}

// text prefers the title and falls back to the description, both stripped of markup
func (p *Parser) text(fi *gofeed.Item) string {
	raw := fi.Title
	if raw == "" {
		raw = fi.Description
	}
	return html.UnescapeString(p.policy.Sanitize(raw))
}
