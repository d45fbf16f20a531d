package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scipunch/feedsorter/parser"
)

const sample = `
items = 15
max_fresh_feeds = 2
cache_timeout = "45m"
cache_backend = "redis"
redis_addr = "localhost:6379"

[http]
timeout = "5s"
user_agent = "feedsorter-test/1.0"
max_body_bytes = 1048576

[filters.no_memes]
exclude_patterns = ["^[Дд]ержите"]

[[sources]]
id = "board"
url = "https://uni.example.org/board"
type = "http"
parser = "html"
filters = ["no_memes"]

[sources.html]
item = "li.entry"
time = "time"
time_attr = "datetime"

[[sources]]
id = "golang"
url = "https://t.me/golang_news"
type = "telegram_channel"
parser = "telegram"
enabled = false
`

func TestRead(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := Read(cfgPath)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if conf.Items != 15 || conf.MaxFreshFeeds != 2 {
		t.Errorf("unexpected counts: items=%d max_fresh_feeds=%d", conf.Items, conf.MaxFreshFeeds)
	}
	if conf.CacheTimeout.Duration != 45*time.Minute {
		t.Errorf("unexpected cache timeout %v", conf.CacheTimeout.Duration)
	}
	if conf.HTTP.Timeout.Duration != 5*time.Second || conf.HTTP.UserAgent != "feedsorter-test/1.0" {
		t.Errorf("unexpected http config %+v", conf.HTTP)
	}
	// unset keys keep their defaults
	if conf.MaxTextLength != DefaultMaxTextLength {
		t.Errorf("expected default max text length, got %d", conf.MaxTextLength)
	}

	if len(conf.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(conf.Sources))
	}
	board := conf.Sources[0]
	if board.ParserT != parser.HTML || board.HTML.Item != "li.entry" || board.HTML.TimeAttr != "datetime" {
		t.Errorf("unexpected html source %+v", board)
	}
	if !board.IsEnabled() || conf.Sources[1].IsEnabled() {
		t.Error("unexpected enabled flags")
	}
	if got := conf.EnabledSources(); len(got) != 1 || got[0].ID != "board" {
		t.Errorf("unexpected enabled sources %+v", got)
	}

	if err := conf.Validate(); err != nil {
		t.Errorf("sample config should be valid: %v", err)
	}
}

func TestRead_InvalidDuration(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte(`cache_timeout = "soon"`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(cfgPath); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.toml")
	conf := Default()
	conf.Sources = []SourceConfig{{ID: "hn", URL: "https://news.ycombinator.com/rss", T: HTTP, ParserT: parser.RSS}}

	if err := Write(cfgPath, conf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte(`cache_timeout = "30m0s"`)) {
		t.Errorf("expected duration to be written as text, got:\n%s", raw)
	}

	got, err := Read(cfgPath)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.CacheTimeout.Duration != DefaultCacheTimeout || len(got.Sources) != 1 || got.Sources[0].ID != "hn" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Sources = []SourceConfig{{ID: "a", URL: "https://example.org/rss", T: HTTP, ParserT: parser.RSS}}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "legacy rss type", mutate: func(c *Config) { c.Sources[0].T = RSS }},
		{name: "missing id", mutate: func(c *Config) { c.Sources[0].ID = "" }, wantErr: "no id"},
		{name: "duplicate id", mutate: func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }, wantErr: "duplicate"},
		{name: "missing url", mutate: func(c *Config) { c.Sources[0].URL = "" }, wantErr: "no url"},
		{name: "unknown type", mutate: func(c *Config) { c.Sources[0].T = "ftp" }, wantErr: "unknown type"},
		{name: "unknown parser", mutate: func(c *Config) { c.Sources[0].ParserT = "pdf" }, wantErr: "unknown parser"},
		{name: "html without item", mutate: func(c *Config) { c.Sources[0].ParserT = parser.HTML }, wantErr: "item selector"},
		{name: "unknown filter", mutate: func(c *Config) { c.Sources[0].FilterNames = []string{"nope"} }, wantErr: "unknown filter"},
		{name: "redis without addr", mutate: func(c *Config) { c.CacheBackend = Redis }, wantErr: "redis_addr"},
		{name: "unknown backend", mutate: func(c *Config) { c.CacheBackend = "memcached" }, wantErr: "cache_backend"},
		{name: "zero items", mutate: func(c *Config) { c.Items = 0 }, wantErr: "items"},
		{name: "negative budget", mutate: func(c *Config) { c.MaxFreshFeeds = -1 }, wantErr: "max_fresh_feeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != "/tmp/xdg/feedsorter/config.toml" {
		t.Errorf("unexpected path %q", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/test")
	if got := DefaultPath(); got != "/home/test/.config/feedsorter/config.toml" {
		t.Errorf("unexpected path %q", got)
	}
}

func TestCredentials(t *testing.T) {
	credPath := filepath.Join(t.TempDir(), "creds.toml")
	creds := Credentials{Telegram: TelegramCredentials{AppID: 42, AppHash: "hash", PhoneNumber: "+1"}}

	if err := WriteCredentials(credPath, creds); err != nil {
		t.Fatalf("WriteCredentials failed: %v", err)
	}
	info, err := os.Stat(credPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	got, err := ReadCredentials(credPath)
	if err != nil {
		t.Fatalf("ReadCredentials failed: %v", err)
	}
	if got.Telegram != creds.Telegram || !got.Telegram.IsValid() {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestPromptTelegramCredentials(t *testing.T) {
	var out bytes.Buffer
	creds, err := PromptTelegramCredentials(strings.NewReader("12345\nabcdef\n+15550001\n"), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := TelegramCredentials{AppID: 12345, AppHash: "abcdef", PhoneNumber: "+15550001"}
	if creds != want {
		t.Errorf("got %+v, want %+v", creds, want)
	}
	if !strings.Contains(out.String(), "Enter API_HASH: ") {
		t.Errorf("expected prompts in output, got %q", out.String())
	}

	if _, err := PromptTelegramCredentials(strings.NewReader("not-a-number\n"), &out); err == nil {
		t.Error("expected error for invalid API_ID")
	}
	if _, err := PromptTelegramCredentials(strings.NewReader("1\n\n\n"), &out); err == nil {
		t.Error("expected error for missing fields")
	}
}

func TestCredentialsPath(t *testing.T) {
	if got := CredentialsPath("/etc/feedsorter"); got != "/etc/feedsorter/creds.toml" {
		t.Errorf("unexpected path %q", got)
	}
}

func TestReadCredentials_Missing(t *testing.T) {
	if _, err := ReadCredentials(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing credentials file")
	}
}
