package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/markdave123-py/examvault/internal/core"
)

// hashBlockSize is the read size used when folding a stream into the digest.
const hashBlockSize = 4096

// HashReader returns the hex SHA-256 of everything readable from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashBlockSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("%w: hash stream: %v", core.ErrIO, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", core.ErrIO, path, err)
	}
	defer f.Close()
	return HashReader(f)
}
