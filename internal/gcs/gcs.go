// Package gcs fetches uploaded statement files from Google Cloud Storage
// for the asynchronous ingestion path.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Fetcher retrieves object bytes addressed by gs:// URIs.
type Fetcher interface {
	Fetch(ctx context.Context, gcsURI string) ([]byte, error)
}

// Client is the Cloud Storage backed Fetcher.
type Client struct {
	client *storage.Client
}

// NewClient creates a Client using ambient credentials.
func NewClient(ctx context.Context) (*Client, error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: create storage client: %w", err)
	}
	return &Client{client: sc}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Fetch downloads the object bytes for a gs://bucket/object URI.
func (c *Client) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}

	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: open object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs: read object: %w", err)
	}
	return data, nil
}

// ParseURI splits a gs://bucket/object URI into its bucket and object parts.
func ParseURI(uri string) (bucket, object string, err error) {
	trimmed, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("gcs: URI %q does not start with gs://", uri)
	}

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("gcs: URI %q has no object path", uri)
	}
	return parts[0], parts[1], nil
}

// Filename extracts the base filename from a GCS URI.
// e.g. "gs://bucket/folder/file.txt" -> "file.txt"
func Filename(uri string) string {
	_, object, err := ParseURI(uri)
	if err != nil {
		return uri
	}
	return path.Base(object)
}

// Ensure Client implements Fetcher.
var _ Fetcher = (*Client)(nil)
