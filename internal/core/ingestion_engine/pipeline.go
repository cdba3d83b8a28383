package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/models"
)

// sourceResult is what processing one source reports back to the job.
type sourceResult struct {
	outcome models.SourceOutcome
	hash    string
	err     error
}

// extractedChunk is a page chunk after text extraction.
type extractedChunk struct {
	PageChunk
	text string
}

// Run processes every source of the job in order and finishes the job.
// Per-source failures are recorded and never stop the loop; only an error
// escaping that boundary fails the job. The working directory is always removed.
func (i *DocumentIngestor) Run(ctx context.Context, tracker *JobTracker, sources []models.Source) (err error) {
	log := i.logger.With(zap.String("job_id", tracker.ID()))

	workDir, err := os.MkdirTemp(i.cfg.WorkDir, "ingest-"+tracker.ID()+"-")
	if err != nil {
		ferr := fmt.Errorf("%w: create work dir: %v", core.ErrIO, err)
		i.failJob(ctx, tracker, ferr, log)
		return ferr
	}
	defer func() {
		if rerr := os.RemoveAll(workDir); rerr != nil {
			log.Warn("work dir cleanup failed", zap.String("dir", workDir), zap.Error(rerr))
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panic: %v", r)
			i.failJob(ctx, tracker, err, log)
		}
	}()

	userID := tracker.UserID()
	for idx, src := range sources {
		srcLog := log.With(zap.Int("source_index", idx), zap.String("source", src.Label()))
		res := i.processSource(ctx, workDir, userID, src, srcLog)

		if rerr := tracker.Record(ctx, src, res.outcome, res.hash, res.err); rerr != nil {
			if !errors.Is(rerr, core.ErrPersistence) {
				i.failJob(ctx, tracker, rerr, log)
				return rerr
			}
			srcLog.Error("job snapshot not persisted", zap.Error(rerr))
		}
		i.metrics.SourceOutcome(string(res.outcome))

		if res.err != nil {
			srcLog.Warn("source failed", zap.String("outcome", string(res.outcome)), zap.Error(res.err))
		} else {
			srcLog.Info("source processed", zap.String("outcome", string(res.outcome)), zap.String("content_hash", res.hash))
		}
	}

	if cerr := tracker.Complete(ctx); cerr != nil && !errors.Is(cerr, core.ErrPersistence) {
		return cerr
	}
	snap := tracker.Snapshot()
	i.metrics.JobFinished(string(snap.Status))
	log.Info("job finished",
		zap.Int("processed", snap.Processed),
		zap.Int("successful", snap.Successful),
		zap.Int("failed", snap.Failed),
		zap.Int("duplicates", snap.Duplicates),
	)
	return nil
}

func (i *DocumentIngestor) failJob(ctx context.Context, tracker *JobTracker, cause error, log *zap.Logger) {
	if err := tracker.Fail(ctx, cause); err != nil {
		log.Error("could not mark job failed", zap.Error(err))
	}
	i.metrics.JobFinished(string(models.JobFailed))
	log.Error("job failed", zap.Error(cause))
}

func (i *DocumentIngestor) processSource(ctx context.Context, workDir, userID string, src models.Source, log *zap.Logger) sourceResult {
	path, filename, err := i.materialize(ctx, workDir, src)
	if err != nil {
		if errors.Is(err, core.ErrDownload) {
			return sourceResult{outcome: models.OutcomeDownloadFailed, err: err}
		}
		return sourceResult{outcome: models.OutcomeFailed, err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return sourceResult{outcome: models.OutcomeFailed, err: fmt.Errorf("%w: read %s: %v", core.ErrIO, path, err)}
	}

	totalPages, err := i.chunker.Validate(data)
	if err != nil {
		return sourceResult{outcome: models.OutcomeCorrupt, err: err}
	}

	hash, err := HashFile(path)
	if err != nil {
		return sourceResult{outcome: models.OutcomeFailed, err: err}
	}
	log = log.With(zap.String("content_hash", hash))

	existing, err := i.dedup.Lookup(ctx, hash)
	if err != nil {
		return sourceResult{outcome: models.OutcomeFailed, hash: hash, err: err}
	}
	if existing != nil {
		if err := i.dedup.Link(ctx, userID, hash); err != nil {
			return sourceResult{outcome: models.OutcomeFailed, hash: hash, err: err}
		}
		log.Info("duplicate content, linked existing document")
		return sourceResult{outcome: models.OutcomeDuplicate, hash: hash}
	}

	doc := &models.Document{
		ContentHash:      hash,
		OriginalFilename: filename,
		TotalPages:       totalPages,
		UploadSource:     src.Kind,
		SourceRef:        i.sourceRef(ctx, src, hash, data, log),
		Status:           models.DocumentProcessing,
	}
	archived := src.Kind == models.SourceFile && doc.SourceRef != nil
	if err := i.persist(ctx, "save_document", func(ctx context.Context) error {
		return i.deps.Sink.SaveDocument(ctx, doc, userID)
	}); err != nil {
		if archived {
			i.discardArchive(ctx, hash, log)
		}
		return sourceResult{outcome: models.OutcomeFailed, hash: hash, err: err}
	}

	outcome, err := i.ingestDocument(ctx, doc, data, log)
	status := models.DocumentCompleted
	if err != nil {
		status = models.DocumentFailed
		if archived {
			i.discardArchive(ctx, hash, log)
		}
	}
	if serr := i.persist(ctx, "update_document_status", func(ctx context.Context) error {
		return i.deps.Sink.UpdateDocumentStatus(ctx, hash, status)
	}); serr != nil && err == nil {
		return sourceResult{outcome: models.OutcomeFailed, hash: hash, err: serr}
	}
	return sourceResult{outcome: outcome, hash: hash, err: err}
}

// discardArchive removes the archived upload of a document that did not
// ingest. A later upload of the same bytes archives it again.
func (i *DocumentIngestor) discardArchive(ctx context.Context, hash string, log *zap.Logger) {
	err := i.storage.Do(ctx, "archive_remove", func(ctx context.Context) error {
		return i.deps.Archiver.Remove(ctx, hash)
	})
	if err != nil {
		log.Warn("archived upload not removed", zap.Error(err))
	}
}

// materialize puts the source bytes in workDir and returns the path and the
// original filename.
func (i *DocumentIngestor) materialize(ctx context.Context, workDir string, src models.Source) (string, string, error) {
	switch src.Kind {
	case models.SourceURL:
		var path, filename string
		err := i.storage.Do(ctx, "download", func(ctx context.Context) error {
			var err error
			path, filename, err = i.deps.Downloader.Download(ctx, src.Value, workDir)
			return err
		})
		if err != nil {
			if !errors.Is(err, core.ErrDownload) {
				err = fmt.Errorf("%w: %v", core.ErrDownload, err)
			}
			return "", "", err
		}
		return path, filename, nil

	case models.SourceFile:
		filename := SanitizeFilename(src.Filename)
		path := filepath.Join(workDir, uuid.NewString()[:8]+"_"+filename)
		if err := os.WriteFile(path, src.Data, 0o600); err != nil {
			return "", "", fmt.Errorf("%w: write upload: %v", core.ErrIO, err)
		}
		return path, filename, nil
	}
	return "", "", fmt.Errorf("unsupported source kind %q", src.Kind)
}

func (i *DocumentIngestor) sourceRef(ctx context.Context, src models.Source, hash string, data []byte, log *zap.Logger) *string {
	if src.Kind == models.SourceURL {
		ref := src.Value
		return &ref
	}
	if i.deps.Archiver == nil {
		return nil
	}
	ref, err := retry.Run(ctx, i.storage, "archive", func(ctx context.Context) (string, error) {
		return i.deps.Archiver.Archive(ctx, hash, data)
	})
	if err != nil {
		log.Warn("archiving upload failed, continuing without source ref", zap.Error(err))
		return nil
	}
	return &ref
}

// ingestDocument runs split, extract, detect, attribute, embed and store for a
// new document. It succeeds when at least one chunk reached the vector store.
func (i *DocumentIngestor) ingestDocument(ctx context.Context, doc *models.Document, data []byte, log *zap.Logger) (models.SourceOutcome, error) {
	pages, err := i.chunker.Split(data, doc.TotalPages)
	if err != nil {
		return models.OutcomeCorrupt, err
	}

	chunks, err := i.extractChunks(ctx, pages, log)
	if err != nil {
		return models.OutcomeFailed, err
	}
	if len(chunks) == 0 {
		return models.OutcomeNoUsableChunks, fmt.Errorf("%w: no chunk reached %d characters", core.ErrInsufficientText, i.cfg.MinChunkTextLength)
	}

	papers, err := i.detectPapers(ctx, doc, chunks, log)
	if err != nil {
		return models.OutcomeFailed, err
	}

	stored := 0
	var lastErr error
	for _, ch := range chunks {
		if err := i.storeChunk(ctx, doc, ch, papers); err != nil {
			lastErr = err
			log.Warn("chunk not stored", zap.Int("chunk_number", ch.Number), zap.Error(err))
			continue
		}
		stored++
		i.metrics.ChunkStored()
	}
	if stored == 0 {
		return models.OutcomeFailed, lastErr
	}
	log.Info("document ingested",
		zap.Int("total_pages", doc.TotalPages),
		zap.Int("chunks", len(pages)),
		zap.Int("usable_chunks", len(chunks)),
		zap.Int("stored_chunks", stored),
		zap.Int("papers", len(papers)),
	)
	return models.OutcomeSuccess, nil
}

// extractChunks extracts text for every page chunk with bounded concurrency
// and keeps the chunks with enough text, in page order.
func (i *DocumentIngestor) extractChunks(ctx context.Context, pages []PageChunk, log *zap.Logger) ([]extractedChunk, error) {
	texts := make([]string, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(i.cfg.ExtractConcurrency, 1))
	for idx, pc := range pages {
		g.Go(func() error {
			texts[idx] = i.extractText(gctx, pc, log)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []extractedChunk
	for idx, pc := range pages {
		text := strings.TrimSpace(texts[idx])
		if len(text) < i.cfg.MinChunkTextLength {
			log.Info("dropping chunk with insufficient text",
				zap.Int("chunk_number", pc.Number),
				zap.Int("chars", len(text)),
			)
			continue
		}
		out = append(out, extractedChunk{PageChunk: pc, text: text})
	}
	return out, nil
}

func (i *DocumentIngestor) extractText(ctx context.Context, pc PageChunk, log *zap.Logger) string {
	text, err := retry.Run(ctx, i.policy, "extract_text", func(ctx context.Context) (string, error) {
		return i.deps.Extractor.ExtractText(ctx, pc.Data)
	})
	if err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	if err != nil {
		log.Warn("text extraction failed", zap.Int("chunk_number", pc.Number), zap.Error(err))
	}
	if i.deps.Fallback == nil || ctx.Err() != nil {
		return ""
	}
	text, ferr := i.deps.Fallback.ExtractText(ctx, pc.Data)
	if ferr != nil {
		log.Warn("fallback extraction failed", zap.Int("chunk_number", pc.Number), zap.Error(ferr))
		return ""
	}
	return text
}

// detectPapers runs detection over the page-marked document text and persists
// the result. Detection failures degrade to the placeholder paper.
func (i *DocumentIngestor) detectPapers(ctx context.Context, doc *models.Document, chunks []extractedChunk, log *zap.Logger) ([]models.Paper, error) {
	fullText := PageMarkedText(chunks)

	detected, err := retry.Run(ctx, i.policy, "detect_papers", func(ctx context.Context) ([]models.Paper, error) {
		return i.deps.Detector.DetectPapers(ctx, fullText, doc.TotalPages)
	})
	if err != nil {
		log.Warn("paper detection failed, using placeholder", zap.Error(err))
		detected = nil
	}
	if len(detected) == 0 {
		detected = []models.Paper{UnknownPaper(doc.TotalPages)}
	}
	for idx := range detected {
		detected[idx].DocumentHash = doc.ContentHash
		detected[idx].Ordinal = idx + 1
	}

	var saved []models.Paper
	err = i.persist(ctx, "save_papers", func(ctx context.Context) error {
		var err error
		saved, err = i.deps.Sink.SavePapers(ctx, doc.ContentHash, detected)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// PageMarkedText joins chunk texts with page range markers for paper detection.
func PageMarkedText(chunks []extractedChunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		fmt.Fprintf(&b, "--- PAGE START: %d END: %d ---\n%s\n\n", ch.PageStart, ch.PageEnd, ch.text)
	}
	return b.String()
}

// storeChunk embeds every text segment of the chunk, upserts the vectors and
// persists the chunk row.
func (i *DocumentIngestor) storeChunk(ctx context.Context, doc *models.Document, ch extractedChunk, papers []models.Paper) error {
	attr := Attribute(models.PageRange{Start: ch.PageStart, End: ch.PageEnd}, papers)
	segments := i.cfg.Text.SplitByTokens(ch.text)
	if len(segments) == 0 {
		return fmt.Errorf("%w: chunk %d has no segments", core.ErrInsufficientText, ch.Number)
	}

	vectors, err := retry.Run(ctx, i.policy, "embed", func(ctx context.Context) ([][]float32, error) {
		return i.deps.Embedder.EmbedTexts(ctx, segments)
	})
	if err != nil {
		return fmt.Errorf("%w: chunk %d: %v", core.ErrEmbedding, ch.Number, err)
	}
	if len(vectors) != len(segments) {
		return fmt.Errorf("%w: chunk %d: got %d vectors for %d segments", core.ErrEmbedding, ch.Number, len(vectors), len(segments))
	}

	paperIDs := attr.PaperIDs()
	var primaryID *int64
	if attr.Primary != nil {
		id := attr.Primary.ID
		primaryID = &id
	}

	points := make([]models.VectorPoint, len(segments))
	for s, text := range segments {
		payload := models.ChunkPayload{
			Text:           text,
			DocumentHash:   doc.ContentHash,
			ChunkNumber:    ch.Number,
			Segment:        s,
			PageStart:      ch.PageStart,
			PageEnd:        ch.PageEnd,
			Filename:       doc.OriginalFilename,
			PaperIDs:       paperIDs,
			PrimaryPaperID: primaryID,
		}
		if attr.Primary != nil {
			payload.Subject = attr.Primary.Subject
			payload.SubjectCode = attr.Primary.SubjectCode
			payload.AcademicYear = attr.Primary.AcademicYear
		}
		points[s] = models.VectorPoint{
			ID:      VectorID(doc.ContentHash, ch.Number, s),
			Vector:  vectors[s],
			Payload: payload,
		}
	}

	if err := i.storage.Do(ctx, "vector_upsert", func(ctx context.Context) error {
		return i.deps.Vectors.Upsert(ctx, points)
	}); err != nil {
		return fmt.Errorf("%w: vector upsert chunk %d: %v", core.ErrExternalService, ch.Number, err)
	}

	chunk := &models.Chunk{
		DocumentHash:   doc.ContentHash,
		ChunkNumber:    ch.Number,
		PageStart:      ch.PageStart,
		PageEnd:        ch.PageEnd,
		ExtractedText:  ch.text,
		VectorID:       points[0].ID,
		SegmentCount:   len(points),
		PrimaryPaperID: primaryID,
		PaperIDs:       paperIDs,
	}
	return i.persist(ctx, "save_chunk", func(ctx context.Context) error {
		return i.deps.Sink.SaveChunk(ctx, chunk)
	})
}

func (i *DocumentIngestor) persist(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := i.storage.Do(ctx, operation, fn); err != nil {
		if errors.Is(err, core.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", core.ErrPersistence, operation, err)
	}
	return nil
}

// VectorID is stable for a (document, chunk, segment) triple so re-ingestion
// overwrites the same points.
func VectorID(contentHash string, chunkNumber, segment int) string {
	name := fmt.Sprintf("%s:%d:%d", contentHash, chunkNumber, segment)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
