package ingestion_engine

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/retry"
)

var _ core.Downloader = (*HTTPDownloader)(nil)

// HTTPDownloader fetches PDFs over HTTP into a working directory.
type HTTPDownloader struct {
	client *http.Client
}

func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{client: &http.Client{Timeout: timeout}}
}

// Download streams url into dir. Overload responses and network failures are
// marked transient so the retry policy can repeat them.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, dir string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", fmt.Errorf("%w: invalid url %q", core.ErrDownload, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: build request: %v", core.ErrDownload, err)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("%w: %v", core.ErrDownload, err)
		}
		return "", "", retry.Transient(fmt.Errorf("%w: %v", core.ErrDownload, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", "", retry.Transient(fmt.Errorf("%w: %s returned %d", core.ErrDownload, rawURL, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", "", fmt.Errorf("%w: %s returned %d", core.ErrDownload, rawURL, resp.StatusCode)
	}

	if !isPDFResponse(resp.Header.Get("Content-Type"), u.Path) {
		return "", "", fmt.Errorf("%w: %s is not a pdf (content-type %q)", core.ErrDownload, rawURL, resp.Header.Get("Content-Type"))
	}

	filename := FilenameFromURL(u)
	dst := filepath.Join(dir, uuid.NewString()[:8]+"_"+filename)
	f, err := os.Create(dst)
	if err != nil {
		return "", "", fmt.Errorf("%w: create %s: %v", core.ErrIO, dst, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", "", fmt.Errorf("%w: read body: %v", core.ErrDownload, err)
	}
	return dst, filename, nil
}

func isPDFResponse(contentType, urlPath string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(urlPath), ".pdf")
}

// FilenameFromURL uses the last path segment when it names a pdf, otherwise a
// generated download_<id>.pdf name.
func FilenameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if strings.HasSuffix(strings.ToLower(base), ".pdf") {
		if unescaped, err := url.PathUnescape(base); err == nil {
			base = unescaped
		}
		return SanitizeFilename(base)
	}
	return fmt.Sprintf("download_%s.pdf", uuid.NewString()[:8])
}

// SanitizeFilename strips directories and characters that are unsafe on disk.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 32, strings.ContainsRune(`<>:"/\|?*`, r):
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "document.pdf"
	}
	return name
}
