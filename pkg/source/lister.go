package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"blsync/pkg/fetch"
	"blsync/pkg/logger"
)

// FileEntry is one file discovered in the remote HTTP index. Header-derived
// fields are source-supplied opaque strings and may be empty when the
// per-file HEAD request failed; empty metadata downstream always means
// "assume stale".
type FileEntry struct {
	Name          string
	URL           string
	LastModified  string
	ContentLength string
	ETag          string
}

// Lister discovers files from an HTTP directory index page.
type Lister struct {
	client *fetch.Client
	logger *logger.Logger
}

func NewLister(client *fetch.Client, log *logger.Logger) *Lister {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Lister{client: client, logger: log}
}

// List fetches the index at baseURL and returns the files it references,
// keyed by name. Directory entries and parent links are excluded. A HEAD
// failure for one entry degrades its metadata to empty strings instead of
// aborting the listing; only the index fetch itself is fatal.
func (l *Lister) List(ctx context.Context, baseURL string) (map[string]FileEntry, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	resp, err := l.client.Get(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", baseURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	entries := make(map[string]FileEntry)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !keepHref(href) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			l.logger.Warn("skipping malformed href", map[string]any{"href": href})
			return
		}
		resolved := base.ResolveReference(ref)

		name := fileName(resolved.Path)
		if name == "" {
			return
		}

		entry := FileEntry{Name: name, URL: resolved.String()}
		l.describe(ctx, &entry)
		entries[name] = entry
	})

	l.logger.Info("listed remote index", map[string]any{
		"base_url": baseURL,
		"files":    len(entries),
	})

	return entries, nil
}

// describe fills in HEAD metadata for one entry, best effort.
func (l *Lister) describe(ctx context.Context, entry *FileEntry) {
	headers, err := l.client.Head(ctx, entry.URL)
	if err != nil {
		l.logger.Warn("head request failed, treating metadata as unknown", map[string]any{
			"name":  entry.Name,
			"url":   entry.URL,
			"error": err.Error(),
		})
		return
	}

	entry.LastModified = headers.Get("Last-Modified")
	entry.ContentLength = headers.Get("Content-Length")
	entry.ETag = strings.Trim(headers.Get("ETag"), `"`)
}

func keepHref(href string) bool {
	if href == "" || href == "../" || href == "./" {
		return false
	}
	return !strings.HasSuffix(href, "/")
}

// fileName extracts the final non-empty path segment.
func fileName(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}
