package fetcher

import "github.com/scipunch/feedsorter/fetcher/types"

// Fetcher is an interface for fetching source payloads from different kinds of remotes
type Fetcher = types.Fetcher

// Outcome is the classified result of a fetch
type Outcome = types.Outcome

// Hint carries freshness information for conditional requests
type Hint = types.Hint
