package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

// detectionTextLimit caps how much of the document is sent for detection.
const detectionTextLimit = 60000

// PaperDetector asks the language model to split a document into exam papers.
type PaperDetector struct {
	llm    core.LLMProvider
	logger *zap.Logger
}

func NewPaperDetector(llm core.LLMProvider, logger *zap.Logger) *PaperDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperDetector{llm: llm, logger: logger}
}

func (d *PaperDetector) DetectPapers(ctx context.Context, fullText string, totalPages int) ([]models.Paper, error) {
	text := truncateUTF8(fullText, detectionTextLimit)

	user := fmt.Sprintf("The document has %d pages. Page ranges are marked with --- PAGE START: s END: e --- lines.\n\n%s", totalPages, text)
	raw, err := d.llm.Generate(ctx, detectionPrompt, user)
	if err != nil {
		return nil, err
	}

	papers, err := ParsePapers(raw)
	if err != nil {
		d.logger.Warn("paper detection returned unparseable output", zap.Error(err))
		return nil, nil
	}
	return papers, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

type paperJSON struct {
	Subject      string  `json:"subject"`
	SubjectCode  string  `json:"subject_code"`
	AcademicYear string  `json:"academic_year"`
	Semester     string  `json:"semester"`
	Program      string  `json:"program"`
	ExamSession  string  `json:"exam_session"`
	Credits      string  `json:"credits"`
	Duration     string  `json:"duration"`
	StartPage    flexInt `json:"start_page"`
	EndPage      flexInt `json:"end_page"`
}

// flexInt accepts a JSON number, a numeric string or null.
type flexInt struct {
	v *int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int(fl)
	}
	f.v = &n
	return nil
}

// ParsePapers decodes the detector response, tolerating markdown fences and
// either a bare array or an object with a "papers" field.
func ParsePapers(raw string) ([]models.Paper, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("empty detection response")
	}

	var list []paperJSON
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			Papers []paperJSON `json:"papers"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil, err
		}
		list = wrapped.Papers
	}

	papers := make([]models.Paper, 0, len(list))
	for _, p := range list {
		papers = append(papers, models.Paper{
			Subject:           strings.TrimSpace(p.Subject),
			SubjectCode:       strings.TrimSpace(p.SubjectCode),
			AcademicYear:      strings.TrimSpace(p.AcademicYear),
			Semester:          strings.TrimSpace(p.Semester),
			Program:           strings.TrimSpace(p.Program),
			ExamSession:       strings.TrimSpace(p.ExamSession),
			Credits:           strings.TrimSpace(p.Credits),
			Duration:          strings.TrimSpace(p.Duration),
			StartPageEstimate: p.StartPage.v,
			EndPageEstimate:   p.EndPage.v,
		})
	}
	return papers, nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const detectionPrompt = `You identify individual exam papers inside a scanned document.
A document may contain one paper or several papers printed back to back.
Return JSON only, in the form:
{"papers":[{"subject":"","subject_code":"","academic_year":"","semester":"","program":"","exam_session":"","credits":"","duration":"","start_page":1,"end_page":1}]}
Use the PAGE START and END markers for start_page and end_page.
Leave a field empty when the paper does not state it.`

var _ core.PaperDetector = (*PaperDetector)(nil)
