package surface

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxContentBytes bounds how much a Loader reads from one URL.
const DefaultMaxContentBytes = 16 << 20

// Content is a loaded document.
type Content struct {
	URL       string
	MediaType string
	Body      []byte
}

// Loader resolves URLs to content for backends that have no engine of their
// own. Supported schemes: about:blank, data:, file: and http(s):.
type Loader struct {
	Client   *http.Client
	MaxBytes int64
}

// Load fetches rawURL. Every failure wraps ErrRelay.
func (l *Loader) Load(ctx context.Context, rawURL string) (*Content, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrRelay, rawURL, err)
	}

	var c *Content
	switch strings.ToLower(u.Scheme) {
	case "about":
		if u.Opaque != "blank" {
			return nil, fmt.Errorf("%w: unsupported about url %q", ErrRelay, rawURL)
		}
		c = &Content{MediaType: "text/html"}
	case "data":
		c, err = loadData(u)
	case "file":
		c, err = l.loadFile(u)
	case "http", "https":
		c, err = l.loadHTTP(ctx, u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrRelay, u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRelay, rawURL, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.URL = rawURL
	return c, nil
}

func (l *Loader) maxBytes() int64 {
	if l == nil || l.MaxBytes <= 0 {
		return DefaultMaxContentBytes
	}
	return l.MaxBytes
}

func loadData(u *url.URL) (*Content, error) {
	meta, payload, ok := strings.Cut(u.Opaque, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data url")
	}
	mediaType := "text/plain"
	isBase64 := false
	if meta != "" {
		parts := strings.Split(meta, ";")
		if parts[0] != "" {
			mediaType = parts[0]
		}
		for _, p := range parts[1:] {
			if p == "base64" {
				isBase64 = true
			}
		}
	}

	var body []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		body = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		body = []byte(unescaped)
	}
	return &Content{MediaType: mediaType, Body: body}, nil
}

func (l *Loader) loadFile(u *url.URL) (*Content, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return nil, fmt.Errorf("empty file path")
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	body, err := io.ReadAll(io.LimitReader(f, l.maxBytes()))
	if err != nil {
		return nil, err
	}
	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = http.DetectContentType(body)
	}
	return &Content{MediaType: mediaType, Body: body}, nil
}

func (l *Loader) loadHTTP(ctx context.Context, u *url.URL) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	client := http.DefaultClient
	if l != nil && l.Client != nil {
		client = l.Client
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes()))
	if err != nil {
		return nil, err
	}
	return &Content{MediaType: resp.Header.Get("Content-Type"), Body: body}, nil
}
