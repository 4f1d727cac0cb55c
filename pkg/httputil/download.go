package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/matzehuels/condabundle/pkg/observability"
)

// ErrStatus is returned when the server answers with a non-200 status.
var ErrStatus = errors.New("unexpected HTTP status")

// NewClient returns the client used for installer downloads. It sets no
// overall timeout: installers are large and the request is bounded by ctx.
func NewClient() *http.Client {
	return &http.Client{}
}

// Download fetches rawURL into a new file in dir whose name is built from
// pattern as with os.CreateTemp. It returns the file path. On failure no file
// is left behind.
func Download(ctx context.Context, client *http.Client, rawURL, dir, pattern string) (string, error) {
	if client == nil {
		client = NewClient()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		return "", err
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	path := f.Name()

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		return "", fmt.Errorf("read body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
