package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scipunch/feedsorter/item"
)

// RecordVersion is the current version of the persisted record layout
const RecordVersion = 1

// Record is the versioned, inspectable layout of one cache entry
type Record struct {
	Version   int          `json:"version"`
	ETag      string       `json:"etag,omitempty"`
	WrittenAt time.Time    `json:"written_at"`
	Items     []RecordItem `json:"items"`
}

// RecordItem is the persisted form of item.Item
type RecordItem struct {
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	Link      string    `json:"link"`
}

// EncodeRecord converts an entry to its JSON record
func EncodeRecord(entry Entry) ([]byte, error) {
	rec := Record{
		Version:   RecordVersion,
		ETag:      entry.ETag,
		WrittenAt: entry.WrittenAt.UTC(),
		Items:     make([]RecordItem, 0, len(entry.Items)),
	}
	for _, it := range entry.Items {
		rec.Items = append(rec.Items, RecordItem{
			Timestamp: it.Timestamp.UTC(),
			Author:    it.Author,
			Text:      it.Text,
			Link:      it.Link,
		})
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache record: %w", err)
	}
	return data, nil
}

// DecodeRecord converts a JSON record back to an entry
func DecodeRecord(data []byte) (Entry, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal cache record: %w", err)
	}

	if rec.Version != RecordVersion {
		return Entry{}, fmt.Errorf("unsupported cache record version: got=%d, expected=%d", rec.Version, RecordVersion)
	}

	entry := Entry{
		ETag:      rec.ETag,
		WrittenAt: rec.WrittenAt,
		Items:     make([]item.Item, 0, len(rec.Items)),
	}
	for _, it := range rec.Items {
		entry.Items = append(entry.Items, item.Item{
			Timestamp: it.Timestamp,
			Author:    it.Author,
			Text:      it.Text,
			Link:      it.Link,
		})
	}
	return entry, nil
}
