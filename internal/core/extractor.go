package core

import (
	"context"
)

// TextExtractor turns the bytes of a (chunk) PDF into plain text.
// Implementations may return an empty string when nothing could be read.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// Downloader materializes a remote PDF into dir and returns its path and filename.
type Downloader interface {
	Download(ctx context.Context, url, dir string) (path string, filename string, err error)
}
