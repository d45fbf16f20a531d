package types

// ChannelPayload is the payload produced by the Telegram fetcher
type ChannelPayload struct {
	Channel  string           `json:"channel"`
	Title    string           `json:"title"`
	Messages []ChannelMessage `json:"messages"`
}

// ChannelMessage is one text message of a channel, newest first
type ChannelMessage struct {
	ID   int    `json:"id"`
	Date int64  `json:"date"`
	Text string `json:"text"`
}
