package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	tdauth "github.com/gotd/td/telegram/auth"
)

// SessionFile is the name of the persisted MTProto session inside the session directory
const SessionFile = "telegram-session.json"

// ClientRunner is a function that runs with an authenticated client
type ClientRunner func(ctx context.Context, client *telegram.Client) error

// deadline cancels a run once timeout of non-interactive work has passed.
// The clock is paused while the user answers login prompts.
type deadline struct {
	timeout time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func startDeadline(timeout time.Duration, cancel context.CancelFunc) *deadline {
	return &deadline{
		timeout: timeout,
		timer:   time.AfterFunc(timeout, cancel),
	}
}

func (d *deadline) pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer.Stop()
}

func (d *deadline) resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer.Reset(d.timeout)
}

func (d *deadline) stop() {
	d.pause()
}

// newClientLogger builds the zap logger gotd writes to
func newClientLogger() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return config.Build()
}

// runWithAuth creates a Telegram client, authenticates it and runs runner.
// Interactive login pauses dl.
func runWithAuth(ctx context.Context, creds credentials, dl *deadline, runner ClientRunner) error {
	sessionStorage := &session.FileStorage{
		Path: filepath.Join(creds.sessionDir, SessionFile),
	}

	waiter := floodwait.NewWaiter().WithCallback(func(ctx context.Context, wait floodwait.FloodWait) {
		slog.Warn("telegram rate limit", "retry_after", wait.Duration)
	})

	logger, err := newClientLogger()
	if err != nil {
		return fmt.Errorf("failed to build telegram logger: %w", err)
	}
	defer logger.Sync()

	client := telegram.NewClient(creds.appID, creds.appHash, telegram.Options{
		SessionStorage: sessionStorage,
		Logger:         logger,
		Middlewares:    []telegram.Middleware{waiter},
	})

	flow := tdauth.NewFlow(
		NewTerminalUserAuthenticator(creds.phoneNumber),
		tdauth.SendCodeOptions{},
	)

	return waiter.Run(ctx, func(ctx context.Context) error {
		err := client.Run(ctx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get auth status: %w", err)
			}
			if !status.Authorized {
				dl.pause()
				err := client.Auth().IfNecessary(ctx, flow)
				dl.resume()
				if err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
			}
			slog.Debug("telegram client authenticated")
			return runner(ctx, client)
		})
		if err != nil {
			slog.Error("telegram client run failed", "error", err)
		}
		return err
	})
}
