// Package download implements the bounded file downloader (C3): a HEAD
// probe to reject oversized files up front, then a streaming GET that
// hashes content as it arrives and aborts once the configured cap is
// exceeded. This generalizes the original implementation's
// download_file/get_safe_filename pair.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/duskwatch/duskwatch/internal/fetch"
)

// Result is one downloaded file's raw bytes plus the metadata the File
// Analyser (C4) needs to begin work.
type Result struct {
	FileURL     string
	FileName    string
	ContentType string
	Content     []byte
	SHA256      string
}

// ErrTooLarge is returned when a Content-Length header or an in-flight
// byte count exceeds the configured cap.
var ErrTooLarge = fmt.Errorf("file exceeds configured size cap")

// Downloader fetches file links discovered by the Parser, sharing the
// Fetcher's transport selection so onion targets stay routed through the
// anonymising proxy.
type Downloader struct {
	fetcher  *fetch.Fetcher
	maxBytes int64
}

// New builds a Downloader bounded to maxBytes per file.
func New(fetcher *fetch.Fetcher, maxBytes int64) *Downloader {
	return &Downloader{fetcher: fetcher, maxBytes: maxBytes}
}

// Download retrieves fileURL, rejecting it before any body is read if a
// HEAD probe reports a Content-Length above the cap, and aborting mid-read
// if the server lied.
func (d *Downloader) Download(ctx context.Context, fileURL string) (Result, error) {
	client := d.fetcher.ClientFor(fileURL)

	if headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil); err == nil {
		if resp, err := client.Do(headReq); err == nil {
			resp.Body.Close()
			if cl := resp.Header.Get("Content-Length"); cl != "" {
				if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > d.maxBytes {
					return Result{}, ErrTooLarge
				}
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("download %s: unexpected status %d", fileURL, resp.StatusCode)
	}

	hasher := sha256.New()
	limited := io.LimitReader(resp.Body, d.maxBytes+1)
	tee := io.TeeReader(limited, hasher)

	content, err := io.ReadAll(tee)
	if err != nil {
		return Result{}, fmt.Errorf("read body of %s: %w", fileURL, err)
	}
	if int64(len(content)) > d.maxBytes {
		return Result{}, ErrTooLarge
	}

	return Result{
		FileURL:     fileURL,
		FileName:    safeFileName(fileURL),
		ContentType: resp.Header.Get("Content-Type"),
		Content:     content,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// safeFileName derives a filesystem-safe basename from a URL path,
// stripping query strings and directory separators, and falling back to a
// generic name for paths with no usable segment.
func safeFileName(fileURL string) string {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "download.bin"
	}
	name := path.Base(u.Path)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "download.bin"
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	result := sb.String()
	if result == "" {
		return "download.bin"
	}
	return result
}
