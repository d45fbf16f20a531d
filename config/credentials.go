package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const credFileName = "creds.toml"

// Credentials is the content of the credentials file kept next to the config
type Credentials struct {
	Telegram TelegramCredentials `toml:"telegram"`
}

// TelegramCredentials authorize the MTProto client used by telegram_channel sources
type TelegramCredentials struct {
	AppID       int    `toml:"api_id"`
	AppHash     string `toml:"api_hash"`
	PhoneNumber string `toml:"phone"`
}

func (tc TelegramCredentials) IsValid() bool {
	return tc.AppID != 0 && tc.AppHash != "" && tc.PhoneNumber != ""
}

// CredentialsPath places the credentials file in configDir
func CredentialsPath(configDir string) string {
	return filepath.Join(configDir, credFileName)
}

func ReadCredentials(credPath string) (Credentials, error) {
	var creds Credentials
	if _, err := toml.DecodeFile(credPath, &creds); err != nil {
		return creds, fmt.Errorf("failed to decode credentials at '%s' with %w", credPath, err)
	}
	return creds, nil
}

// WriteCredentials stores creds readable by the owner only
func WriteCredentials(credPath string, creds Credentials) error {
	blob, err := toml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials with %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(credPath), 0755); err != nil {
		return fmt.Errorf("failed to create credentials directory for '%s' with %w", credPath, err)
	}
	if err := os.WriteFile(credPath, blob, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file at '%s' with %w", credPath, err)
	}
	return nil
}

const telegramHelp = `Telegram credentials not found. Please provide the following information:

To get API_ID and API_HASH:
  1. Go to https://my.telegram.org
  2. Log in with your phone number
  3. Click 'API development tools'
  4. Create a new application

`

// PromptTelegramCredentials reads answers line by line from in, writing prompts to out
func PromptTelegramCredentials(in io.Reader, out io.Writer) (TelegramCredentials, error) {
	var (
		creds  TelegramCredentials
		appID  string
		reader = bufio.NewReader(in)
	)

	fmt.Fprint(out, telegramHelp)

	questions := []struct {
		label  string
		prompt string
		dst    *string
	}{
		{"API_ID", "Enter API_ID: ", &appID},
		{"API_HASH", "Enter API_HASH: ", &creds.AppHash},
		{"phone number", "Enter phone number in international format (e.g. +1234567890): ", &creds.PhoneNumber},
	}
	for _, q := range questions {
		fmt.Fprint(out, q.prompt)
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return creds, fmt.Errorf("failed to read %s with %w", q.label, err)
		}
		*q.dst = strings.TrimSpace(answer)

		if q.dst == &appID {
			id, err := strconv.Atoi(appID)
			if err != nil {
				return creds, fmt.Errorf("invalid API_ID format with %w", err)
			}
			creds.AppID = id
		}
	}

	if !creds.IsValid() {
		return creds, errors.New("all credential fields are required")
	}
	return creds, nil
}

// LoadOrPromptTelegramCredentials returns stored credentials or asks for them on the terminal
// and saves the answers
func LoadOrPromptTelegramCredentials(credPath string) (TelegramCredentials, error) {
	creds, err := ReadCredentials(credPath)
	if err == nil && creds.Telegram.IsValid() {
		return creds.Telegram, nil
	}

	tg, err := PromptTelegramCredentials(os.Stdin, os.Stdout)
	if err != nil {
		return TelegramCredentials{}, err
	}
	creds.Telegram = tg
	if err := WriteCredentials(credPath, creds); err != nil {
		return tg, fmt.Errorf("failed to save credentials with %w", err)
	}

	fmt.Printf("Credentials saved to %s\n\n", credPath)
	fmt.Print("Next, you will need to authenticate with Telegram.\nA verification code will be sent to your phone...\n\n")
	return tg, nil
}
