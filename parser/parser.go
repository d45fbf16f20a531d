package parser

import (
	"errors"

	"github.com/scipunch/feedsorter/item"
)

type Type = string

var (
	RSS      = Type("rss")
	HTML     = Type("html")
	Telegram = Type("telegram")
)

// ErrTransform marks a payload that could not be turned into items
var ErrTransform = errors.New("transform failed")

// Parser turns a fetched payload into items.
// Items carry the raw text; normalisation happens in the pipeline built by parser/factory.
type Parser interface {
	Parse(payload []byte) ([]item.Item, error)
}

// Func adapts a plain function to Parser
type Func func(payload []byte) ([]item.Item, error)

func (f Func) Parse(payload []byte) ([]item.Item, error) {
	return f(payload)
}
