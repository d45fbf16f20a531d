package html

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scipunch/feedsorter/config"
	"github.com/scipunch/feedsorter/item"
	"github.com/scipunch/feedsorter/parser"
)

// Parser extracts items from an HTML listing page using CSS selectors
type Parser struct {
	sel    config.HTMLSelectors
	base   *url.URL
	author string
}

// New builds a parser for pages served at pageURL. Relative links are resolved against it.
func New(sel config.HTMLSelectors, pageURL string) (*Parser, error) {
	if sel.Item == "" {
		return nil, fmt.Errorf("item selector is required")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url '%s': %w", pageURL, err)
	}
	if sel.TimeLayout == "" {
		sel.TimeLayout = time.RFC3339
	}
	return &Parser{sel: sel, base: base, author: base.Host}, nil
}

func (p *Parser) Parse(payload []byte) ([]item.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read html: %w", parser.ErrTransform, err)
	}

	author := p.author
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		author = title
	}

	var items []item.Item
	doc.Find(p.sel.Item).Each(func(_ int, s *goquery.Selection) {
		it := item.Item{
			Author:    author,
			Text:      p.text(s),
			Link:      p.link(s),
			Timestamp: p.timestamp(s),
		}
		if p.sel.Author != "" {
			if a := strings.TrimSpace(s.Find(p.sel.Author).First().Text()); a != "" {
				it.Author = a
			}
		}
		if strings.TrimSpace(it.Text) == "" {
			return
		}
		items = append(items, it)
	})
	return items, nil
}

func (p *Parser) text(s *goquery.Selection) string {
	if p.sel.Title == "" {
		return s.Text()
	}
	return s.Find(p.sel.Title).First().Text()
}

func (p *Parser) link(s *goquery.Selection) string {
	var a *goquery.Selection
	switch {
	case p.sel.Link != "":
		a = s.Find(p.sel.Link).First()
	case goquery.NodeName(s) == "a":
		a = s
	default:
		a = s.Find("a").First()
	}
	href, ok := a.Attr("href")
	if !ok {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return p.base.ResolveReference(ref).String()
}

func (p *Parser) timestamp(s *goquery.Selection) time.Time {
	if p.sel.Time == "" {
		return time.Time{}
	}
	node := s.Find(p.sel.Time).First()
	raw := node.Text()
	if p.sel.TimeAttr != "" {
		raw, _ = node.Attr(p.sel.TimeAttr)
	}
	ts, err := time.Parse(p.sel.TimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
