package client

import (
	"fmt"
	"net/url"
	"strings"
)

// ManifestFilename is the well-known path under a warehouse base URL where
// the inventory manifest is published.
const ManifestFilename = "shipfed.manifest.json"

// ManifestURL returns the manifest location for a warehouse base URL.
func ManifestURL(baseURL string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), ManifestFilename)
}

// ResolveEntry joins a warehouse base URL and a cargo entry path. Entry
// paths are always relative to the warehouse base, never filesystem paths;
// an absolute URL in entry is returned as-is.
func ResolveEntry(baseURL, entry string) (string, error) {
	if strings.Contains(entry, "://") {
		return entry, nil
	}
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	ref, err := url.Parse(strings.TrimPrefix(entry, "./"))
	if err != nil {
		return "", fmt.Errorf("parsing entry %q: %w", entry, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Host extracts the host component of a URL for per-warehouse grouping.
// Falls back to a truncated raw string on unparseable input.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
