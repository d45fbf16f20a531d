package factory

import (
	"fmt"

	"github.com/scipunch/feedsorter/config"
	"github.com/scipunch/feedsorter/filter"
	"github.com/scipunch/feedsorter/item"
	"github.com/scipunch/feedsorter/parser"
	"github.com/scipunch/feedsorter/parser/html"
	"github.com/scipunch/feedsorter/parser/rss"
	"github.com/scipunch/feedsorter/parser/telegram"
)

// New builds the transform of a source: parse the payload, drop items rejected by the
// source's filters, then tidy every text to maxLen runes.
// pipeline may be nil when no filters are configured.
func New(src config.SourceConfig, pipeline *filter.Pipeline, maxLen int) (parser.Parser, error) {
	var p parser.Parser
	switch src.ParserT {
	case parser.RSS:
		p = rss.New()
	case parser.HTML:
		hp, err := html.New(src.HTML, src.URL)
		if err != nil {
			return nil, fmt.Errorf("html parser for '%s': %w", src.ID, err)
		}
		p = hp
	case parser.Telegram:
		p = telegram.New()
	default:
		return nil, fmt.Errorf("unexpected parser type '%s'", src.ParserT)
	}

	if len(src.FilterNames) > 0 && pipeline == nil {
		return nil, fmt.Errorf("source '%s' uses filters but no filter pipeline was given", src.ID)
	}

	return parser.Func(func(payload []byte) ([]item.Item, error) {
		items, err := p.Parse(payload)
		if err != nil {
			return nil, err
		}
		if pipeline != nil {
			items = pipeline.Apply(items, src.FilterNames)
		}
		for i := range items {
			items[i].Text = item.TidyText(items[i].Text, maxLen)
		}
		return items, nil
	}), nil
}
