package model

import (
	"net/url"
	"strings"
)

// Fingerprint returns the stable, lowercase-normalised form of target used
// as the primary key for grouping ScanRecords across time. Scheme and host
// are lowercased, a default port is dropped, and a single trailing slash on
// an otherwise bare path is stripped so "http://Example.com" and
// "http://example.com/" collapse to the same key.
func Fingerprint(target string) string {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(strings.TrimSpace(target), "/"))
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		host = strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		host = strings.TrimSuffix(host, ":443")
	}

	path := u.Path
	if path == "/" {
		path = ""
	}

	fp := scheme + "://" + host + path
	if u.RawQuery != "" {
		fp += "?" + u.RawQuery
	}
	return fp
}
