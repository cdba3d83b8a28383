package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type SourceKind string

const (
	SourceURL  SourceKind = "url"
	SourceFile SourceKind = "upload"
)

// Source is one ingestion input. URL sources carry the address in Value,
// file sources carry the raw bytes in Data.
type Source struct {
	Kind     SourceKind `json:"kind"`
	Value    string     `json:"value"`
	Filename string     `json:"filename,omitempty"`
	Data     []byte     `json:"-"`
}

// Label identifies the source in job error messages.
func (s Source) Label() string {
	if s.Kind == SourceURL {
		return s.Value
	}
	if s.Filename != "" {
		return s.Filename
	}
	return "upload"
}

type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is identified by the SHA-256 of its bytes.
type Document struct {
	ContentHash      string         `db:"content_hash" json:"content_hash"`
	OriginalFilename string         `db:"original_filename" json:"original_filename"`
	TotalPages       int            `db:"total_pages" json:"total_pages"`
	UploadSource     SourceKind     `db:"upload_source" json:"upload_source"`
	SourceRef        *string        `db:"source_ref" json:"source_ref,omitempty"` // URL or archive location
	Status           DocumentStatus `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

type UserDocumentLink struct {
	UserID      string    `db:"user_id" json:"user_id"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// PageRange is an inclusive, 1-indexed page span.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is a page-bounded slice of one document.
type Chunk struct {
	DocumentHash   string    `db:"document_hash" json:"document_hash"`
	ChunkNumber    int       `db:"chunk_number" json:"chunk_number"`
	PageStart      int       `db:"page_start" json:"page_start"`
	PageEnd        int       `db:"page_end" json:"page_end"`
	ExtractedText  string    `db:"extracted_text" json:"extracted_text"`
	VectorID       string    `db:"vector_id" json:"vector_id"`
	SegmentCount   int       `db:"segment_count" json:"segment_count"`
	PrimaryPaperID *int64    `db:"primary_paper_id" json:"primary_paper_id,omitempty"`
	PaperIDs       []int64   `db:"-" json:"paper_ids"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (c Chunk) Range() PageRange {
	return PageRange{Start: c.PageStart, End: c.PageEnd}
}

// Paper is a logical exam paper detected inside a document. ID is zero until persisted.
type Paper struct {
	ID                int64  `db:"id" json:"id,omitempty"`
	DocumentHash      string `db:"document_hash" json:"document_hash,omitempty"`
	Ordinal           int    `db:"ordinal" json:"ordinal"`
	Subject           string `db:"subject" json:"subject"`
	SubjectCode       string `db:"subject_code" json:"subject_code"`
	AcademicYear      string `db:"academic_year" json:"academic_year"`
	Semester          string `db:"semester" json:"semester"`
	Program           string `db:"program" json:"program"`
	ExamSession       string `db:"exam_session" json:"exam_session"`
	Credits           string `db:"credits" json:"credits,omitempty"`
	Duration          string `db:"duration" json:"duration,omitempty"`
	StartPageEstimate *int   `db:"start_page_estimate" json:"start_page_estimate,omitempty"`
	EndPageEstimate   *int   `db:"end_page_estimate" json:"end_page_estimate,omitempty"`
}

// ChunkPayload is stored next to every vector point.
type ChunkPayload struct {
	Text           string  `json:"text"`
	DocumentHash   string  `json:"document_hash"`
	ChunkNumber    int     `json:"chunk_number"`
	Segment        int     `json:"segment"`
	PageStart      int     `json:"page_start"`
	PageEnd        int     `json:"page_end"`
	Filename       string  `json:"filename"`
	PaperIDs       []int64 `json:"paper_ids"`
	PrimaryPaperID *int64  `json:"primary_paper_id,omitempty"`
	Subject        string  `json:"subject,omitempty"`
	SubjectCode    string  `json:"subject_code,omitempty"`
	AcademicYear   string  `json:"academic_year,omitempty"`
}

type VectorPoint struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"-"`
	Payload ChunkPayload `json:"payload"`
}

// SearchFilter restricts a vector search. An empty DocumentHashes matches nothing.
type SearchFilter struct {
	DocumentHashes []string
}

type SearchHit struct {
	ID      string       `json:"id"`
	Score   float32      `json:"score"`
	Payload ChunkPayload `json:"payload"`
}

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IngestionJob tracks one batch ingestion request.
type IngestionJob struct {
	JobID        string    `db:"job_id" json:"job_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	TotalSources int       `db:"total_sources" json:"total_sources"`
	Processed    int       `db:"processed" json:"processed"`
	Successful   int       `db:"successful" json:"successful"`
	Failed       int       `db:"failed" json:"failed"`
	Duplicates   int       `db:"duplicates" json:"duplicates"`
	Errors       []string  `db:"errors" json:"errors"`
	Documents    []string  `db:"documents" json:"documents"`
	Status       JobStatus `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (j *IngestionJob) Clone() *IngestionJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Errors = append([]string(nil), j.Errors...)
	c.Documents = append([]string(nil), j.Documents...)
	return &c
}

type SourceOutcome string

const (
	OutcomeSuccess        SourceOutcome = "success"
	OutcomeDuplicate      SourceOutcome = "duplicate"
	OutcomeDownloadFailed SourceOutcome = "download_failed"
	OutcomeCorrupt        SourceOutcome = "corrupt"
	OutcomeNoUsableChunks SourceOutcome = "no_usable_chunks"
	OutcomeFailed         SourceOutcome = "failed"
)
