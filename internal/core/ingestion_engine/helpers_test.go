package ingestion_engine

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

// makePDF renders a real PDF with one line of text per page.
func makePDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	for i := 1; i <= pages; i++ {
		doc.AddPage()
		doc.SetFont("Arial", "", 11)
		doc.MultiCell(0, 5, fmt.Sprintf("Question %d. Explain the working of a compiler front end in detail.", i), "", "", false)
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func intPtr(v int) *int { return &v }
