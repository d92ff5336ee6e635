package gtfs

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SerializeFeed encodes raw feed tables with gob. Snapshots let a restarted
// process serve the last known schedule while the upstream host is down.
//
// Example:
//
//	data, err := gtfs.SerializeFeed(feed)
//	if err != nil {
//	    // handle error
//	}
//	os.WriteFile("/var/cache/transit/feed.gob", data, 0644)
func SerializeFeed(feed *Feed) ([]byte, error) {
	var buf bytes.Buffer
	if err := SerializeFeedToWriter(feed, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeFeed decodes a snapshot produced by SerializeFeed.
func DeserializeFeed(data []byte) (*Feed, error) {
	return DeserializeFeedFromReader(bytes.NewReader(data))
}

// SerializeFeedToWriter writes a gob snapshot to w.
func SerializeFeedToWriter(feed *Feed, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(feed); err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}
	return nil
}

// DeserializeFeedFromReader reads a gob snapshot from r.
func DeserializeFeedFromReader(r io.Reader) (*Feed, error) {
	var feed Feed
	if err := gob.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	return &feed, nil
}

// SaveSnapshot writes the feed to path via a temp file and rename, so a
// crash mid-write never leaves a truncated snapshot behind.
func SaveSnapshot(feed *Feed, path string) error {
	data, err := SerializeFeed(feed)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".feed-*.gob")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return DeserializeFeed(data)
}
