package ingestion_engine

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

const DefaultPagesPerChunk = 8

var disableConfigDir sync.Once

// PageChunk is one page window of a source PDF, itself a standalone PDF.
type PageChunk struct {
	Number    int
	PageStart int
	PageEnd   int
	Data      []byte
}

// PdfChunker validates PDFs and splits them into fixed page windows.
type PdfChunker struct {
	pagesPerChunk int
}

func NewPdfChunker(pagesPerChunk int) *PdfChunker {
	if pagesPerChunk < 1 {
		pagesPerChunk = DefaultPagesPerChunk
	}
	disableConfigDir.Do(api.DisableConfigDir)
	return &PdfChunker{pagesPerChunk: pagesPerChunk}
}

func newPdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Validate parses the document structure and reads the first page's content.
// Any failure is reported as core.ErrCorruptDocument.
func (c *PdfChunker) Validate(data []byte) (pageCount int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pageCount, err = 0, fmt.Errorf("%w: parser panic: %v", core.ErrCorruptDocument, r)
		}
	}()

	ctx, err := api.ReadAndValidate(bytes.NewReader(data), newPdfConfig())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrCorruptDocument, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("%w: page count: %v", core.ErrCorruptDocument, err)
	}
	if ctx.PageCount < 1 {
		return 0, fmt.Errorf("%w: document has no pages", core.ErrCorruptDocument)
	}

	if err := readFirstPage(data); err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}

func readFirstPage(data []byte) error {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: open reader: %v", core.ErrCorruptDocument, err)
	}
	if r.NumPage() < 1 {
		return fmt.Errorf("%w: no readable pages", core.ErrCorruptDocument)
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return fmt.Errorf("%w: page 1 missing", core.ErrCorruptDocument)
	}
	// Decodes the content stream; malformed streams panic and are caught by Validate.
	_ = page.Content()
	return nil
}

// Split cuts the document into consecutive windows of pagesPerChunk pages.
// Documents that fit in one window are returned unchanged as chunk 1.
func (c *PdfChunker) Split(data []byte, pageCount int) (chunks []PageChunk, err error) {
	windows := PlanWindows(pageCount, c.pagesPerChunk)
	if len(windows) == 1 {
		return []PageChunk{{Number: 1, PageStart: 1, PageEnd: pageCount, Data: data}}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			chunks, err = nil, fmt.Errorf("%w: split panic: %v", core.ErrCorruptDocument, r)
		}
	}()

	chunks = make([]PageChunk, 0, len(windows))
	for i, w := range windows {
		var buf bytes.Buffer
		selection := []string{fmt.Sprintf("%d-%d", w.Start, w.End)}
		if err := api.Trim(bytes.NewReader(data), &buf, selection, newPdfConfig()); err != nil {
			return nil, fmt.Errorf("%w: extract pages %d-%d: %v", core.ErrCorruptDocument, w.Start, w.End, err)
		}
		chunks = append(chunks, PageChunk{
			Number:    i + 1,
			PageStart: w.Start,
			PageEnd:   w.End,
			Data:      buf.Bytes(),
		})
	}
	return chunks, nil
}

// PlanWindows partitions pages [1, pageCount] into consecutive windows of k pages.
// The last window may be shorter.
func PlanWindows(pageCount, k int) []models.PageRange {
	if pageCount < 1 {
		return nil
	}
	if k < 1 {
		k = DefaultPagesPerChunk
	}
	if pageCount <= k {
		return []models.PageRange{{Start: 1, End: pageCount}}
	}
	out := make([]models.PageRange, 0, (pageCount+k-1)/k)
	for start := 1; start <= pageCount; start += k {
		out = append(out, models.PageRange{Start: start, End: min(start+k-1, pageCount)})
	}
	return out
}
