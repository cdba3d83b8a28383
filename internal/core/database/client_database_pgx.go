package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/examvault/internal/config"
	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

const uniqueViolation = "23505"

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := BuildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// BuildDSN appends verify-ca TLS parameters when a root certificate is configured.
func BuildDSN(databaseURL, sslCertPath string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, strings.ToLower(user.Email), user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return core.ErrUserAlreadyExists
	}
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, strings.ToLower(email)).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) DocumentExists(ctx context.Context, contentHash string) (*models.Document, error) {
	const q = `
		SELECT content_hash, original_filename, total_pages, upload_source, source_ref, status, created_at, updated_at
		FROM documents
		WHERE content_hash = $1
	`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, contentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SaveDocument upserts the document row and links it to the user in one transaction.
// A re-ingest of a previously failed document resets it to the new status.
func (c *DatabaseClient) SaveDocument(ctx context.Context, doc *models.Document, userID string) error {
	if doc == nil {
		return errors.New("nil document")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const upsert = `
		INSERT INTO documents
			(content_hash, original_filename, total_pages, upload_source, source_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (content_hash) DO UPDATE SET
			original_filename = EXCLUDED.original_filename,
			total_pages       = EXCLUDED.total_pages,
			source_ref        = COALESCE(EXCLUDED.source_ref, documents.source_ref),
			status            = EXCLUDED.status,
			updated_at        = now()
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, upsert,
		doc.ContentHash, doc.OriginalFilename, doc.TotalPages, string(doc.UploadSource), doc.SourceRef, string(doc.Status),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert document: %w", err)
	}

	if userID != "" {
		if _, err := tx.ExecContext(ctx, linkQuery, userID, doc.ContentHash); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("link document: %w", err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, contentHash string, status models.DocumentStatus) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE content_hash = $1
	`
	res, err := c.db.ExecContext(ctx, q, contentHash, string(status))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, contentHash)
	}
	return nil
}

const linkQuery = `
	INSERT INTO user_documents (user_id, content_hash)
	VALUES ($1, $2)
	ON CONFLICT (user_id, content_hash) DO NOTHING
`

func (c *DatabaseClient) LinkUserDocument(ctx context.Context, userID, contentHash string) error {
	_, err := c.db.ExecContext(ctx, linkQuery, userID, contentHash)
	return err
}

func (c *DatabaseClient) ListUserDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT d.content_hash, d.original_filename, d.total_pages, d.upload_source, d.source_ref, d.status, d.created_at, d.updated_at
		FROM documents d
		JOIN user_documents ud ON ud.content_hash = d.content_hash
		WHERE ud.user_id = $1
		ORDER BY ud.created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d         models.Document
		source    string
		status    string
		sourceRef sql.NullString
	)
	if err := row.Scan(
		&d.ContentHash, &d.OriginalFilename, &d.TotalPages, &source, &sourceRef, &status, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.UploadSource = models.SourceKind(source)
	d.Status = models.DocumentStatus(status)
	if sourceRef.Valid {
		d.SourceRef = &sourceRef.String
	}
	return &d, nil
}

// Papers

// SavePapers upserts papers by (document_hash, ordinal) and returns them with ids.
func (c *DatabaseClient) SavePapers(ctx context.Context, contentHash string, papers []models.Paper) ([]models.Paper, error) {
	if len(papers) == 0 {
		return nil, nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO papers
			(document_hash, ordinal, subject, subject_code, academic_year, semester, program,
			 exam_session, credits, duration, start_page_estimate, end_page_estimate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (document_hash, ordinal) DO UPDATE SET
			subject             = EXCLUDED.subject,
			subject_code        = EXCLUDED.subject_code,
			academic_year       = EXCLUDED.academic_year,
			semester            = EXCLUDED.semester,
			program             = EXCLUDED.program,
			exam_session        = EXCLUDED.exam_session,
			credits             = EXCLUDED.credits,
			duration            = EXCLUDED.duration,
			start_page_estimate = EXCLUDED.start_page_estimate,
			end_page_estimate   = EXCLUDED.end_page_estimate
		RETURNING id
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	out := make([]models.Paper, len(papers))
	for i, p := range papers {
		p.DocumentHash = contentHash
		if err := stmt.QueryRowContext(ctx,
			contentHash, p.Ordinal, p.Subject, p.SubjectCode, p.AcademicYear, p.Semester, p.Program,
			p.ExamSession, p.Credits, p.Duration, p.StartPageEstimate, p.EndPageEstimate,
		).Scan(&p.ID); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("upsert paper %d: %w", p.Ordinal, err)
		}
		out[i] = p
	}

	// a re-run may detect fewer papers than the run it replaces
	ordinals := make([]int64, len(out))
	for i, p := range out {
		ordinals[i] = int64(p.Ordinal)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM papers WHERE document_hash = $1 AND NOT (ordinal = ANY($2))`,
		contentHash, ordinals,
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("delete stale papers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// Chunks

// SaveChunk upserts the chunk row and replaces its paper links.
func (c *DatabaseClient) SaveChunk(ctx context.Context, chunk *models.Chunk) error {
	if chunk == nil {
		return errors.New("nil chunk")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const upsert = `
		INSERT INTO document_chunks
			(document_hash, chunk_number, page_start, page_end, extracted_text, vector_id, segment_count, primary_paper_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (document_hash, chunk_number) DO UPDATE SET
			page_start       = EXCLUDED.page_start,
			page_end         = EXCLUDED.page_end,
			extracted_text   = EXCLUDED.extracted_text,
			vector_id        = EXCLUDED.vector_id,
			segment_count    = EXCLUDED.segment_count,
			primary_paper_id = EXCLUDED.primary_paper_id
		RETURNING created_at
	`
	if err := tx.QueryRowContext(ctx, upsert,
		chunk.DocumentHash, chunk.ChunkNumber, chunk.PageStart, chunk.PageEnd, chunk.ExtractedText,
		chunk.VectorID, chunk.SegmentCount, chunk.PrimaryPaperID,
	).Scan(&chunk.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert chunk %d: %w", chunk.ChunkNumber, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_papers WHERE document_hash = $1 AND chunk_number = $2`,
		chunk.DocumentHash, chunk.ChunkNumber,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, id := range chunk.PaperIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_papers (document_hash, chunk_number, paper_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			chunk.DocumentHash, chunk.ChunkNumber, id,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("link chunk %d to paper %d: %w", chunk.ChunkNumber, id, err)
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
