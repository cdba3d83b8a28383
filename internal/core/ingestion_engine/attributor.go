package ingestion_engine

import (
	"github.com/markdave123-py/examvault/internal/models"
)

const (
	openStartPage = 0
	openEndPage   = 9999
)

// Attribution is the result of matching one chunk against the detected papers.
type Attribution struct {
	Overlaps []models.Paper
	Primary  *models.Paper
}

// PaperIDs returns the ids of all overlapping papers.
func (a Attribution) PaperIDs() []int64 {
	ids := make([]int64, 0, len(a.Overlaps))
	for _, p := range a.Overlaps {
		ids = append(ids, p.ID)
	}
	return ids
}

// PaperAttributor decides which papers a chunk belongs to.
//
// Rules are applied in order:
//  1. no papers: nothing overlaps and there is no primary.
//  2. a single paper owns every chunk, whatever its page estimates say.
//  3. otherwise papers overlap by page range, missing bounds treated as open,
//     and the primary is the paper with the longest overlap.
type PaperAttributor struct{}

func (PaperAttributor) FindOverlaps(chunk models.PageRange, papers []models.Paper) []models.Paper {
	return Attribute(chunk, papers).Overlaps
}

func (PaperAttributor) FindPrimary(chunk models.PageRange, papers []models.Paper) *models.Paper {
	return Attribute(chunk, papers).Primary
}

func Attribute(chunk models.PageRange, papers []models.Paper) Attribution {
	if a, ok := noPapersRule(papers); ok {
		return a
	}
	if a, ok := singlePaperRule(papers); ok {
		return a
	}
	return pageOverlapRule(chunk, papers)
}

func noPapersRule(papers []models.Paper) (Attribution, bool) {
	if len(papers) != 0 {
		return Attribution{}, false
	}
	return Attribution{Overlaps: []models.Paper{}}, true
}

func singlePaperRule(papers []models.Paper) (Attribution, bool) {
	if len(papers) != 1 {
		return Attribution{}, false
	}
	p := papers[0]
	return Attribution{Overlaps: []models.Paper{p}, Primary: &p}, true
}

// pageOverlapRule ranks papers by overlap length. Ties go to the paper with the
// earlier clamped start page, then to input order.
func pageOverlapRule(chunk models.PageRange, papers []models.Paper) Attribution {
	a := Attribution{Overlaps: []models.Paper{}}
	best, bestLen, bestStart := -1, 0, 0
	for i, p := range papers {
		n := OverlapLength(chunk, p)
		if n < 1 {
			continue
		}
		a.Overlaps = append(a.Overlaps, p)
		start := paperStart(p)
		if best < 0 || n > bestLen || (n == bestLen && start < bestStart) {
			best, bestLen, bestStart = i, n, start
		}
	}
	if best >= 0 {
		primary := papers[best]
		a.Primary = &primary
	}
	return a
}

// OverlapLength is the number of pages shared by chunk and paper, which may be <= 0.
func OverlapLength(chunk models.PageRange, p models.Paper) int {
	return min(chunk.End, paperEnd(p)) - max(chunk.Start, paperStart(p)) + 1
}

func paperStart(p models.Paper) int {
	if p.StartPageEstimate == nil {
		return openStartPage
	}
	return *p.StartPageEstimate
}

func paperEnd(p models.Paper) int {
	if p.EndPageEstimate == nil {
		return openEndPage
	}
	return *p.EndPageEstimate
}

// UnknownPaper is used when detection finds nothing; it spans the whole document.
func UnknownPaper(totalPages int) models.Paper {
	start, end := 1, max(totalPages, 1)
	return models.Paper{
		Subject:           "Unknown Subject",
		SubjectCode:       "UNKNOWN",
		AcademicYear:      "Unknown",
		Semester:          "Unknown",
		Program:           "Unknown",
		ExamSession:       "Unknown",
		StartPageEstimate: &start,
		EndPageEstimate:   &end,
	}
}
