package surface

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoaderSchemes(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "index.html")
	if err := os.WriteFile(page, []byte("<p>hi</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		url       string
		mediaType string
		body      string
	}{
		{url: "about:blank", mediaType: "text/html"},
		{url: "data:,hello%20world", mediaType: "text/plain", body: "hello world"},
		{url: "data:text/html;base64,PGI+aGk8L2I+", mediaType: "text/html", body: "<b>hi</b>"},
		{url: "file://" + page, mediaType: "text/html", body: "<p>hi</p>"},
	}

	var l Loader
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c, err := l.Load(context.Background(), tt.url)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !strings.HasPrefix(c.MediaType, tt.mediaType) {
				t.Fatalf("media type = %q, want %q", c.MediaType, tt.mediaType)
			}
			if string(c.Body) != tt.body {
				t.Fatalf("body = %q, want %q", c.Body, tt.body)
			}
			if c.URL != tt.url {
				t.Fatalf("url = %q", c.URL)
			}
		})
	}
}

func TestLoaderFailuresAreRelayErrors(t *testing.T) {
	dir := t.TempDir()
	bad := []string{
		"ftp://example.invalid/x",
		"about:config",
		"data:no-comma",
		"data:;base64,***",
		"file://" + filepath.Join(dir, "missing.html"),
		"file://" + dir,
		"%zz",
	}
	var l Loader
	for _, u := range bad {
		if _, err := l.Load(context.Background(), u); !errors.Is(err, ErrRelay) {
			t.Fatalf("Load(%q) err = %v, want ErrRelay", u, err)
		}
	}
}

func TestLoaderHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	l := Loader{Client: srv.Client(), MaxBytes: 16}
	c, err := l.Load(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Body) != 16 {
		t.Fatalf("body not limited: %d bytes", len(c.Body))
	}
	if c.MediaType != "text/html" {
		t.Fatalf("media type = %q", c.MediaType)
	}

	if _, err := l.Load(context.Background(), srv.URL+"/missing"); !errors.Is(err, ErrRelay) {
		t.Fatalf("404 err = %v, want ErrRelay", err)
	}
}

func TestLoaderHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := Loader{Client: srv.Client()}
	if _, err := l.Load(ctx, srv.URL); err == nil {
		t.Fatalf("expected cancelled load to fail")
	}
}
