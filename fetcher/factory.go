package fetcher

import (
	"fmt"

	"github.com/scipunch/feedsorter/config"
	"github.com/scipunch/feedsorter/fetcher/telegram"
)

// GetFetchers creates a map of resource types to their corresponding fetchers
func GetFetchers(resourceTypes []config.ResourceType, httpConf config.HTTPConfig, creds config.TelegramCredentials, sessionDir string) (map[config.ResourceType]Fetcher, error) {
	fetchers := make(map[config.ResourceType]Fetcher)

	for _, rt := range resourceTypes {
		// Skip if we already have a fetcher for this type
		if fetchers[rt] != nil {
			continue
		}

		switch rt {
		case config.HTTP, config.RSS:
			fetchers[rt] = NewHTTPFetcher(HTTPOptions{
				Timeout:      httpConf.Timeout.Duration,
				UserAgent:    httpConf.UserAgent,
				MaxBodyBytes: httpConf.MaxBodyBytes,
				HostInterval: httpConf.HostInterval.Duration,
			})
		case config.TelegramChannel:
			if !creds.IsValid() {
				return nil, fmt.Errorf("telegram credentials are required for '%s' sources", rt)
			}
			fetchers[rt] = telegram.NewFetcher(sessionDir, creds.AppID, creds.AppHash, creds.PhoneNumber,
				telegram.WithTimeout(httpConf.Timeout.Duration),
			)
		default:
			return nil, fmt.Errorf("unknown resource type: %s", rt)
		}
	}

	return fetchers, nil
}
