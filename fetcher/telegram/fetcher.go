package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/scipunch/feedsorter/fetcher/types"
)

const (
	defaultMessageLimit = 50
	// DefaultTimeout bounds one channel fetch, login prompts excluded
	DefaultTimeout = 10 * time.Second
)

type credentials struct {
	sessionDir  string
	appID       int
	appHash     string
	phoneNumber string
}

// runFunc runs runner with an authenticated client
type runFunc func(ctx context.Context, creds credentials, dl *deadline, runner ClientRunner) error

// Fetcher fetches the latest messages of public Telegram channels.
// The freshness token of a channel is the id of its newest message.
// Fetches share one session file and run one at a time.
type Fetcher struct {
	creds   credentials
	limit   int
	timeout time.Duration

	// gate admits one client run at a time
	gate chan struct{}
	run  runFunc
}

type Option func(*Fetcher)

// WithTimeout bounds a single fetch, zero keeps DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher creates a new Telegram fetcher with provided credentials
func NewFetcher(sessionDir string, appID int, appHash string, phoneNumber string, opts ...Option) *Fetcher {
	f := &Fetcher{
		creds: credentials{
			sessionDir:  sessionDir,
			appID:       appID,
			appHash:     appHash,
			phoneNumber: phoneNumber,
		},
		limit:   defaultMessageLimit,
		timeout: DefaultTimeout,
		gate:    make(chan struct{}, 1),
		run:     runWithAuth,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the channel at url. A hint whose token matches the newest message yields NotModified.
func (f *Fetcher) Fetch(ctx context.Context, url string, hint *types.Hint) types.Outcome {
	username, err := parseChannelURL(url)
	if err != nil {
		return types.FailedOutcome(fmt.Errorf("invalid channel URL: %w", err))
	}

	select {
	case f.gate <- struct{}{}:
		defer func() { <-f.gate }()
	case <-ctx.Done():
		return types.FailedOutcome(fmt.Errorf("waiting for telegram client: %w", ctx.Err()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	dl := startDeadline(f.timeout, cancel)
	defer dl.stop()

	var payload types.ChannelPayload
	err = f.run(ctx, f.creds, dl, func(ctx context.Context, client *telegram.Client) error {
		api := client.API()

		resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: username,
		})
		if err != nil {
			return fmt.Errorf("failed to resolve channel @%s: %w", username, err)
		}

		var channel *tg.Channel
		for _, chat := range resolved.Chats {
			if ch, ok := chat.(*tg.Channel); ok {
				channel = ch
				break
			}
		}
		if channel == nil {
			return fmt.Errorf("channel @%s not found in resolved peers", username)
		}
		if !channel.Broadcast {
			return fmt.Errorf("@%s is not a channel (it's a group or supergroup)", username)
		}

		payload.Channel = username
		payload.Title = channel.Title

		messagesData, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer: &tg.InputPeerChannel{
				ChannelID:  channel.ID,
				AccessHash: channel.AccessHash,
			},
			Limit: f.limit,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch messages from @%s: %w", username, err)
		}

		var messages []tg.MessageClass
		switch m := messagesData.(type) {
		case *tg.MessagesMessages:
			messages = m.Messages
		case *tg.MessagesMessagesSlice:
			messages = m.Messages
		case *tg.MessagesChannelMessages:
			messages = m.Messages
		default:
			return fmt.Errorf("unexpected messages type: %T", messagesData)
		}

		payload.Messages = collectMessages(messages)
		return nil
	})
	if err != nil {
		return types.FailedOutcome(fmt.Errorf("failed to fetch @%s: %w", username, err))
	}

	token := freshnessToken(payload.Messages)
	if hint != nil && hint.ETag != "" && hint.ETag == token {
		slog.Debug("telegram channel not modified", "channel", username, "token", token)
		return types.Outcome{Status: types.NotModified}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return types.FailedOutcome(fmt.Errorf("failed to encode channel payload: %w", err))
	}

	slog.Info("fetched Telegram channel", "channel", username, "messages", len(payload.Messages))
	return types.Outcome{Status: types.Modified, Payload: data, ETag: token}
}

// collectMessages keeps non-empty text messages in the order returned by the API (newest first)
func collectMessages(messages []tg.MessageClass) []types.ChannelMessage {
	out := make([]types.ChannelMessage, 0, len(messages))
	for _, msgClass := range messages {
		msg, ok := msgClass.(*tg.Message)
		if !ok {
			continue // Skip service messages
		}
		if msg.Message == "" {
			continue
		}
		out = append(out, types.ChannelMessage{
			ID:   msg.ID,
			Date: int64(msg.Date),
			Text: msg.Message,
		})
	}
	return out
}

// freshnessToken returns the id of the newest message, empty for an empty channel
func freshnessToken(messages []types.ChannelMessage) string {
	newest := 0
	for _, m := range messages {
		if m.ID > newest {
			newest = m.ID
		}
	}
	if newest == 0 {
		return ""
	}
	return strconv.Itoa(newest)
}

// parseChannelURL extracts the channel username from various URL formats
// Supports:
//   - https://t.me/channelname
//   - http://t.me/channelname
//   - t.me/channelname
//   - @channelname
//   - channelname
func parseChannelURL(url string) (string, error) {
	url = strings.TrimSpace(url)

	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "t.me/")
	url = strings.TrimPrefix(url, "@")
	url = strings.TrimSuffix(url, "/")

	if url == "" {
		return "", fmt.Errorf("empty channel username")
	}

	// Username should not contain slashes (no deep links)
	if strings.Contains(url, "/") {
		return "", fmt.Errorf("invalid channel URL format: %s", url)
	}

	return url, nil
}
