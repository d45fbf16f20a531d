package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scipunch/feedsorter/aggregator"
	"github.com/scipunch/feedsorter/cache"
	"github.com/scipunch/feedsorter/config"
	"github.com/scipunch/feedsorter/fetcher"
	"github.com/scipunch/feedsorter/filter"
	"github.com/scipunch/feedsorter/item"
	"github.com/scipunch/feedsorter/parser/factory"
	"github.com/scipunch/feedsorter/scheduler"
	"github.com/scipunch/feedsorter/server"
	"github.com/scipunch/feedsorter/source"
)

func main() {
	debug := os.Getenv("DEBUG") != ""
	if debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var (
		cfgPath    string
		cleanCache bool
		showStats  bool
		serve      bool
		limit      int
	)
	flag.StringVar(&cfgPath, "config", config.DefaultPath(), "path to a TOML config")
	flag.BoolVar(&cleanCache, "clean", false, "remove all cache entries")
	flag.BoolVar(&showStats, "stats", false, "print cache statistics and exit")
	flag.BoolVar(&serve, "serve", false, "serve merged items over HTTP")
	flag.IntVar(&limit, "n", 0, "number of items to print (defaults to config items)")
	flag.Parse()

	// Read config and create if default is missing
	conf, err := config.Read(cfgPath)
	if errors.Is(err, os.ErrNotExist) && cfgPath == config.DefaultPath() {
		if err := config.Write(cfgPath, conf); err != nil {
			log.Fatalf("failed to write default config with %s", err)
		}
	} else if err != nil {
		log.Fatalf("failed to read config with %s", err)
	}
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid config at %s: %s", cfgPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, conf)
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}
	defer store.Close()

	if cleanCache || showStats {
		if err := maintain(ctx, store, cleanCache, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	sources, err := buildSources(conf, path.Dir(cfgPath), store)
	if err != nil {
		log.Fatalf("failed to initialize sources with %s", err)
	}
	slog.Info("sources initialized", "count", len(sources), "cache", conf.CacheBackend)

	agg := aggregator.New(sources, conf.Items,
		aggregator.WithMaxFreshFeeds(conf.MaxFreshFeeds),
		aggregator.WithWorkers(conf.Workers),
		aggregator.WithLogger(slog.With("component", "aggregator")),
	)

	if serve {
		if err := runServer(ctx, conf, agg, debug); err != nil {
			log.Fatalf("server failed: %s", err)
		}
		return
	}

	printItems(os.Stdout, agg.GetItems(ctx, limit))
}

func openStore(ctx context.Context, conf config.Config) (cache.Store, error) {
	switch conf.CacheBackend {
	case config.Redis:
		client, err := cache.DialRedis(ctx, conf.RedisAddr)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisStore(client, conf.RedisPrefix), nil
	default:
		dbPath := conf.DatabasePath
		if dbPath == "" {
			dbPath = cache.DefaultCachePath()
		}
		return cache.NewSQLiteStore(dbPath)
	}
}

func maintain(ctx context.Context, store cache.Store, clean bool, out io.Writer) error {
	m, ok := store.(cache.Maintainer)
	if !ok {
		return fmt.Errorf("cache backend does not support maintenance")
	}

	if clean {
		if err := m.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		slog.Info("cache cleared successfully")
		return nil
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}
	fmt.Fprintf(out, "entries: %d\nitems: %d\n", stats.Entries, stats.Items)
	if !stats.OldestWrite.IsZero() {
		fmt.Fprintf(out, "oldest write: %s\n", stats.OldestWrite.Local().Format(time.RFC3339))
	}
	return nil
}

func buildSources(conf config.Config, configDir string, store cache.Store) ([]aggregator.Source, error) {
	enabled := conf.EnabledSources()

	var resourceTypes []config.ResourceType
	needsTelegram := false
	for _, s := range enabled {
		resourceTypes = append(resourceTypes, s.T)
		if s.T == config.TelegramChannel {
			needsTelegram = true
		}
	}

	var creds config.TelegramCredentials
	if needsTelegram {
		var err error
		creds, err = config.LoadOrPromptTelegramCredentials(config.CredentialsPath(configDir))
		if err != nil {
			return nil, fmt.Errorf("telegram credentials: %w", err)
		}
	}

	fetchers, err := fetcher.GetFetchers(resourceTypes, conf.HTTP, creds, configDir)
	if err != nil {
		return nil, err
	}

	pipeline, err := filter.NewPipeline(conf.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filters: %w", err)
	}
	if len(conf.Filters) > 0 {
		slog.Info("initialized filters", "count", len(conf.Filters))
	}

	sources := make([]aggregator.Source, 0, len(enabled))
	for _, s := range enabled {
		p, err := factory.New(s, pipeline, conf.MaxTextLength)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source.New(s.ID, s.URL, fetchers[s.T], p, store,
			source.WithTimeout(conf.CacheTimeout.Duration),
			source.WithLogger(slog.With("type", s.T, "parser", s.ParserT)),
		))
	}
	return sources, nil
}

func runServer(ctx context.Context, conf config.Config, agg *aggregator.Aggregator, debug bool) error {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if conf.Schedule != "" {
		// a cycle may fetch every source once in the worst case
		cycleTimeout := conf.HTTP.Timeout.Duration * time.Duration(len(conf.Sources)+1)
		sched, err := scheduler.New(conf.Schedule, agg, cycleTimeout)
		if err != nil {
			return fmt.Errorf("invalid schedule '%s': %w", conf.Schedule, err)
		}
		sched.Start()
		defer sched.Stop()
		go sched.RunOnce()
	}

	srv := &http.Server{
		Addr:    conf.Listen,
		Handler: server.New(agg, 10*conf.Items).Engine(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", conf.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printItems(out io.Writer, items []item.Item) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, it := range items {
		ts := "-"
		if !it.Timestamp.IsZero() {
			ts = it.Timestamp.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ts, it.Author, it.Text, it.Link)
	}
	w.Flush()
}
