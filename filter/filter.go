package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scipunch/feedsorter/config"
	"github.com/scipunch/feedsorter/item"
)

// Pipeline applies a series of named filters to items
type Pipeline struct {
	filters map[string]*compiledFilter
}

type compiledFilter struct {
	config          config.Filter
	excludePatterns []*regexp.Regexp
}

// NewPipeline compiles the named filters from config.
// An invalid exclude pattern is an error.
func NewPipeline(filtersConfig map[string]config.Filter) (*Pipeline, error) {
	compiled := make(map[string]*compiledFilter, len(filtersConfig))

	for name, filterCfg := range filtersConfig {
		cf := &compiledFilter{
			config:          filterCfg,
			excludePatterns: make([]*regexp.Regexp, 0, len(filterCfg.ExcludePatterns)),
		}
		for _, pattern := range filterCfg.ExcludePatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("filter '%s' has invalid pattern '%s': %w", name, pattern, err)
			}
			cf.excludePatterns = append(cf.excludePatterns, re)
		}
		compiled[name] = cf
	}

	return &Pipeline{filters: compiled}, nil
}

// ShouldInclude returns true if the item passes all named filters in order.
// The second value names the rule that rejected the item.
func (p *Pipeline) ShouldInclude(it item.Item, filterNames []string) (bool, string) {
	for _, filterName := range filterNames {
		f, exists := p.filters[filterName]
		if !exists {
			slog.Warn("filter not found, skipping", "filter_name", filterName)
			continue
		}
		if ok, reason := f.apply(it.Text, filterName); !ok {
			return false, reason
		}
	}
	return true, ""
}

// Apply keeps the items passing every named filter, preserving order
func (p *Pipeline) Apply(items []item.Item, filterNames []string) []item.Item {
	if len(filterNames) == 0 {
		return items
	}
	kept := make([]item.Item, 0, len(items))
	for _, it := range items {
		ok, reason := p.ShouldInclude(it, filterNames)
		if !ok {
			slog.Debug("item filtered out", "link", it.Link, "reason", reason)
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

func (f *compiledFilter) apply(text, filterName string) (bool, string) {
	if f.config.MinLength > 0 && utf8.RuneCountInString(text) < f.config.MinLength {
		return false, filterName + ":min_length"
	}

	if f.config.MinWords > 0 && countWords(text) < f.config.MinWords {
		return false, filterName + ":min_words"
	}

	for i, pattern := range f.excludePatterns {
		if pattern.MatchString(text) {
			return false, filterName + ":exclude_pattern[" + f.config.ExcludePatterns[i] + "]"
		}
	}

	if f.config.RequireParagraphs && !hasMultipleParagraphs(text) {
		return false, filterName + ":require_paragraphs"
	}

	return true, ""
}

func countWords(text string) int {
	words := 0
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				words++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	return words
}

func hasMultipleParagraphs(text string) bool {
	nonEmptyLines := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			nonEmptyLines++
		}
	}
	return nonEmptyLines >= 2
}
