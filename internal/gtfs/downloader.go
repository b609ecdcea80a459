package gtfs

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNotZip is returned when the published feed URL answers with something
// other than a zip archive, such as an HTML error page.
var ErrNotZip = errors.New("response is not a zip archive")

var zipMagic = []byte("PK\x03\x04")

// Downloader fetches the published static GTFS zip.
type Downloader struct {
	client *http.Client
	url    string
	dir    string
	logger *slog.Logger
}

// NewDownloader creates a Downloader for url storing the feed under dir.
func NewDownloader(url, dir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: 5 * time.Minute},
		url:    url,
		dir:    dir,
		logger: logger,
	}
}

// FeedVersion is what the publisher says about the current feed.
type FeedVersion struct {
	LastModified string
	ETag         string
}

// same compares by ETag when the publisher sends one, else by Last-Modified.
func (v FeedVersion) same(o FeedVersion) bool {
	if v.ETag != "" {
		return v.ETag == o.ETag
	}
	return v.LastModified != "" && v.LastModified == o.LastModified
}

// Fetched describes a downloaded feed.
type Fetched struct {
	Path string
	FeedVersion
	Size   int64
	SHA256 string // hex digest of the zip
}

// Source identifies the downloaded content for the import metadata. Two
// downloads of the same bytes share a Source.
func (f *Fetched) Source() string {
	return "sha256:" + f.SHA256
}

// Changed sends a conditional HEAD request and reports whether the published
// feed differs from prev. A publisher that ignores the conditional headers
// but returns the same validators counts as unchanged.
func (d *Downloader) Changed(ctx context.Context, prev FeedVersion) (bool, FeedVersion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.url, nil)
	if err != nil {
		return false, FeedVersion{}, fmt.Errorf("create request: %w", err)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, FeedVersion{}, fmt.Errorf("HEAD %s: %w", d.url, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		d.logger.Info("GTFS feed not modified", "etag", prev.ETag, "last_modified", prev.LastModified)
		return false, prev, nil
	case resp.StatusCode != http.StatusOK:
		return false, FeedVersion{}, fmt.Errorf("HEAD %s: unexpected status %d", d.url, resp.StatusCode)
	}

	cur := FeedVersion{
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}
	if cur.same(prev) {
		d.logger.Info("GTFS feed unchanged", "etag", cur.ETag, "last_modified", cur.LastModified)
		return false, cur, nil
	}
	d.logger.Info("GTFS feed changed",
		"etag", cur.ETag,
		"last_modified", cur.LastModified,
		"previous_etag", prev.ETag,
	)
	return true, cur, nil
}

// Download fetches the feed into dir/gtfs.zip, hashing it on the way. The
// file is written under a temporary name and renamed into place once the
// body is complete and looks like a zip.
func (d *Downloader) Download(ctx context.Context) (*Fetched, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	d.logger.Info("downloading GTFS feed", "url", d.url)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", d.url, resp.StatusCode)
	}

	body := bufio.NewReader(resp.Body)
	if head, err := body.Peek(len(zipMagic)); err != nil || !bytes.Equal(head, zipMagic) {
		return nil, fmt.Errorf("GET %s (%s): %w", d.url, resp.Header.Get("Content-Type"), ErrNotZip)
	}

	tmp, err := os.CreateTemp(d.dir, "gtfs-*.zip.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write feed: %w", err)
	}

	path := filepath.Join(d.dir, "gtfs.zip")
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("rename download: %w", err)
	}

	f := &Fetched{
		Path: path,
		FeedVersion: FeedVersion{
			LastModified: resp.Header.Get("Last-Modified"),
			ETag:         resp.Header.Get("ETag"),
		},
		Size:   size,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}
	d.logger.Info("GTFS feed downloaded",
		"path", path,
		"size_mb", fmt.Sprintf("%.1f", float64(size)/(1024*1024)),
		"sha256", f.SHA256[:12],
		"etag", f.ETag,
	)
	return f, nil
}
