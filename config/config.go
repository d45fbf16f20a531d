package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scipunch/feedsorter/cache"
	"github.com/scipunch/feedsorter/item"
	"github.com/scipunch/feedsorter/parser"
)

type ResourceType = string

var (
	HTTP            = ResourceType("http")
	RSS             = ResourceType("rss") // alias of HTTP kept for older configs
	TelegramChannel = ResourceType("telegram_channel")
)

type CacheBackend = string

var (
	SQLite = CacheBackend("sqlite")
	Redis  = CacheBackend("redis")
)

const baseCfgPath = "feedsorter/config.toml"

const (
	DefaultItems         = 20
	DefaultMaxFreshFeeds = 1
	DefaultCacheTimeout  = 1800 * time.Second
	DefaultMaxTextLength = item.DefaultMaxTextLength
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultListen        = "127.0.0.1:8080"
)

type Config struct {
	Sources       []SourceConfig    `toml:"sources"`
	DatabasePath  string            `toml:"database_path"`
	CacheBackend  CacheBackend      `toml:"cache_backend"`   // "sqlite" (default) or "redis"
	RedisAddr     string            `toml:"redis_addr"`      // Used when cache_backend = "redis"
	RedisPrefix   string            `toml:"redis_prefix"`    // Key prefix, defaults to "feedsorter:cache:"
	Items         int               `toml:"items"`           // Number of merged items to return
	MaxFreshFeeds int               `toml:"max_fresh_feeds"` // Sources allowed to hit the network per cycle
	CacheTimeout  Duration          `toml:"cache_timeout"`   // Age after which a cache entry is stale
	MaxTextLength int               `toml:"max_text_length"` // Display length of item texts
	Workers       int               `toml:"workers"`         // Concurrent sources per cycle, 0 = all
	Schedule      string            `toml:"schedule"`        // Cron spec for background cycles, empty disables
	Listen        string            `toml:"listen"`          // Address of the HTTP API in serve mode
	HTTP          HTTPConfig        `toml:"http"`
	Filters       map[string]Filter `toml:"filters"` // Named filters that can be referenced by sources
}

// HTTPConfig is fixed request metadata for HTTP sources
type HTTPConfig struct {
	Timeout      Duration `toml:"timeout"`
	UserAgent    string   `toml:"user_agent"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
	HostInterval Duration `toml:"host_interval"` // Minimum spacing of requests to one host
}

type SourceConfig struct {
	ID          string        `toml:"id"` // Stable cache key
	URL         string        `toml:"url"`
	T           ResourceType  `toml:"type"`
	ParserT     parser.Type   `toml:"parser"`
	Enabled     *bool         `toml:"enabled"` // Whether this source is active (defaults to true if not set)
	FilterNames []string      `toml:"filters"` // Names of filters to apply (pipeline)
	HTML        HTMLSelectors `toml:"html"`    // Only used by the html parser
}

// HTMLSelectors describe where items live in an HTML page
type HTMLSelectors struct {
	Item       string `toml:"item"`        // Selector of one item container
	Title      string `toml:"title"`       // Selector of the text inside the item, empty = item text
	Link       string `toml:"link"`        // Selector of the anchor inside the item, empty = first "a"
	Author     string `toml:"author"`      // Optional author selector
	Time       string `toml:"time"`        // Optional timestamp selector
	TimeAttr   string `toml:"time_attr"`   // Attribute holding the timestamp, empty = element text
	TimeLayout string `toml:"time_layout"` // Go time layout, defaults to RFC 3339
}

// Filter defines rules for filtering feed items
type Filter struct {
	MinLength         int      `toml:"min_length"`         // Minimum character count (0 = no limit)
	MinWords          int      `toml:"min_words"`          // Minimum word count (0 = no limit)
	ExcludePatterns   []string `toml:"exclude_patterns"`   // Regex patterns to exclude
	RequireParagraphs bool     `toml:"require_paragraphs"` // Require at least two non-empty lines
}

// Duration is a time.Duration written as a Go duration string ("30m", "10s")
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsEnabled returns true if the source is enabled (defaults to true if not explicitly set)
func (s SourceConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// EnabledSources returns the sources that take part in aggregation
func (c Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports configuration mistakes that would make a source unusable
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source #%d has no id", i+1)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate source id '%s'", s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.URL == "" {
			return fmt.Errorf("source '%s' has no url", s.ID)
		}
		switch s.T {
		case HTTP, RSS, TelegramChannel:
		default:
			return fmt.Errorf("source '%s' has unknown type '%s'", s.ID, s.T)
		}
		switch s.ParserT {
		case parser.RSS, parser.Telegram:
		case parser.HTML:
			if s.HTML.Item == "" {
				return fmt.Errorf("source '%s' uses the html parser without an item selector", s.ID)
			}
		default:
			return fmt.Errorf("source '%s' has unknown parser '%s'", s.ID, s.ParserT)
		}
		for _, name := range s.FilterNames {
			if _, ok := c.Filters[name]; !ok {
				return fmt.Errorf("source '%s' references unknown filter '%s'", s.ID, name)
			}
		}
	}

	switch c.CacheBackend {
	case SQLite:
	case Redis:
		if c.RedisAddr == "" {
			return fmt.Errorf("cache_backend is redis but redis_addr is empty")
		}
	default:
		return fmt.Errorf("unknown cache_backend '%s'", c.CacheBackend)
	}

	if c.Items <= 0 {
		return fmt.Errorf("items must be positive, got %d", c.Items)
	}
	if c.MaxFreshFeeds < 0 {
		return fmt.Errorf("max_fresh_feeds must not be negative, got %d", c.MaxFreshFeeds)
	}
	return nil
}

func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	_, err = toml.Decode(string(dat), &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	return conf, nil
}

func Write(cfgPath string, cfg Config) error {
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

func Default() Config {
	return Config{
		DatabasePath:  cache.DefaultCachePath(),
		CacheBackend:  SQLite,
		Items:         DefaultItems,
		MaxFreshFeeds: DefaultMaxFreshFeeds,
		CacheTimeout:  Duration{DefaultCacheTimeout},
		MaxTextLength: DefaultMaxTextLength,
		Listen:        DefaultListen,
		HTTP: HTTPConfig{
			Timeout: Duration{DefaultHTTPTimeout},
		},
		Sources: []SourceConfig{},
	}
}

func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	panic("unclear where to search for the config file")
}
