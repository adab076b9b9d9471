// Package fetch resolves document sources to local file paths. Local paths
// pass through untouched; http(s) URLs are downloaded to a temp file the
// caller removes via the returned cleanup func.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const maxDownloadBytes = 64 << 20 // 64 MiB

// Fetcher resolves sources into readable local files.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher with a bounded-timeout HTTP client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Fetch returns a local path for source plus a cleanup func. file:// URLs and
// bare paths return the path itself with a no-op cleanup. http(s) URLs are
// downloaded to a temp file whose cleanup removes it.
func (f *Fetcher) Fetch(ctx context.Context, source string) (string, func(), error) {
	noop := func() {}

	switch {
	case strings.HasPrefix(source, "file://"):
		u, err := url.Parse(source)
		if err != nil {
			return "", noop, fmt.Errorf("parse source: %w", err)
		}
		return u.Path, noop, nil
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return f.download(ctx, source)
	default:
		return source, noop, nil
	}
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (string, func(), error) {
	noop := func() {}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", noop, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", noop, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", noop, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "kotae-fetch-*"+remoteExt(rawURL))
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadBytes)); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// remoteExt keeps the URL path's extension on the temp file so the extractor
// can dispatch on it.
func remoteExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}
