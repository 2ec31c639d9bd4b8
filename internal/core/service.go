package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/config"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/logging"
)

// LayoutAnalyzer extracts table cells from a page image. The credential is
// passed per call and never stored by the service.
type LayoutAnalyzer interface {
	AnalyzeLayout(ctx context.Context, image []byte, mimeType, model, credential string) (CellSet, error)
}

// ConversionRecord is one row of conversion history.
type ConversionRecord struct {
	ID         string      `json:"id"`
	UploadID   string      `json:"uploadId"`
	Kind       ContentKind `json:"kind"`
	PageIndex  int         `json:"pageIndex"`
	RowCount   int         `json:"rowCount"`
	CellCount  int         `json:"cellCount"`
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Status     string      `json:"status"`
	ErrorCode  string      `json:"errorCode,omitempty"`
	Cached     bool        `json:"cached"`
	DurationMs int64       `json:"durationMs"`
	ClientIP   string      `json:"clientIp,omitempty"`
	UserAgent  string      `json:"userAgent,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Conversion statuses recorded in history.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// HistoryStore persists conversion records.
type HistoryStore interface {
	Record(ctx context.Context, rec ConversionRecord) error
	Recent(ctx context.Context, limit int) ([]ConversionRecord, error)
}

// UploadSummary is returned after a successful upload.
type UploadSummary struct {
	Upload  *StoredUpload    `json:"upload"`
	Content ValidatedContent `json:"content"`
}

// ConvertRequest selects the page to convert and carries the caller's model key.
type ConvertRequest struct {
	UploadID   string
	PageIndex  int
	Credential string
	SessionID  string
}

// Service wires the upload store, validator, analyzer and renderer together.
type Service struct {
	store     *UploadStore
	validator *Validator
	analyzer  LayoutAnalyzer
	gate      *AnalysisGate
	cache     *AnalysisCache
	results   *ResultStore
	sessions  *SessionTracker
	sweeper   *RetentionSweeper
	history   HistoryStore
	flight    singleflight.Group

	provider          string
	model             string
	defaultCredential string
	analyzerTimeout   time.Duration
	previewRowCap     int
	renderDPI         int
	sweepSchedule     string
}

// NewService builds a Service from configuration. history may be nil.
func NewService(cfg *config.Config, analyzer LayoutAnalyzer, raster Rasterizer, history HistoryStore) (*Service, error) {
	if analyzer == nil {
		return nil, errors.New("layout analyzer is required")
	}

	store, err := NewUploadStore(cfg.Upload.Root, cfg.Upload.MaxFileSize)
	if err != nil {
		return nil, err
	}

	scope, err := ParseCacheScope(cfg.Cache.Scope)
	if err != nil {
		return nil, err
	}
	cache, err := NewAnalysisCache(scope, cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.Secret)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Analyzer.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	s := &Service{
		store: store,
		validator: NewValidator(Limits{
			MaxImagePixels: cfg.Content.MaxImagePixels,
			PDFPageLimit:   cfg.Content.PDFPageLimit,
		}, raster),
		analyzer:          analyzer,
		gate:              NewAnalysisGate(cfg.Analyzer.MaxWait),
		cache:             cache,
		results:           NewResultStore(cfg.Cache.TTL, cfg.Cache.MaxResults),
		sessions:          NewSessionTracker(cfg.Upload.TTL),
		sweeper:           NewRetentionSweeper(store.Root(), cfg.Upload.TTL),
		history:           history,
		provider:          cfg.Analyzer.Provider,
		model:             cfg.Analyzer.Model,
		defaultCredential: cfg.Analyzer.APIKey,
		analyzerTimeout:   timeout,
		previewRowCap:     cfg.Content.PreviewRowCap,
		renderDPI:         cfg.Content.RenderDPI,
		sweepSchedule:     cfg.Upload.SweepSchedule,
	}

	s.sweeper.OnRemove(func(name string) {
		s.store.forget(name)
		s.results.DeleteForUpload(name)
		s.sessions.ForgetUpload(name)
	})
	s.sweeper.AfterSweep(func(SweepReport) {
		s.cache.Prune()
		s.results.Prune()
		s.sessions.Prune()
	})

	return s, nil
}

// Store exposes the upload store.
func (s *Service) Store() *UploadStore { return s.store }

// Validator exposes the content validator.
func (s *Service) Validator() *Validator { return s.validator }

// Upload ingests r and validates the stored content. Content that fails
// validation is removed before the error is returned. When sessionID is set
// the session's previous upload is discarded.
func (s *Service) Upload(ctx context.Context, r io.Reader, declaredName string, declaredSize int64, sessionID string) (*UploadSummary, error) {
	log := logging.FromContext(ctx)
	up, err := s.store.Ingest(ctx, r, declaredName, declaredSize)
	if err != nil {
		return nil, err
	}

	content, err := s.validator.Classify(up.Path)
	if err != nil {
		s.store.Remove(up.ID)
		log.Info("upload rejected", "upload_id", up.ID, "reason", Reason(err))
		return nil, err
	}

	if sessionID != "" {
		prev := s.sessions.Get(sessionID)
		if prev.UploadID != "" && prev.UploadID != up.ID {
			s.discard(prev.UploadID)
		}
		if _, err := s.sessions.Apply(sessionID, EventUpload, SessionUpdate{UploadID: up.ID}); err != nil {
			log.Debug("session transition skipped", "session", sessionID, "error", err)
		}
	}

	log.Info("upload accepted",
		"upload_id", up.ID,
		"kind", content.Kind,
		"format", content.Format,
		"pages", content.PageCount,
		"bytes", up.SizeBytes,
	)
	return &UploadSummary{Upload: up, Content: content}, nil
}

// Info returns best-effort document info for an upload.
func (s *Service) Info(id string) (DocumentInfo, error) {
	up, err := s.store.Open(id)
	if err != nil {
		return DocumentInfo{}, err
	}
	return s.validator.GetInfo(up.Path), nil
}

// PageImage returns the image for one page of an upload after revalidating
// it. Images only have page 0.
func (s *Service) PageImage(ctx context.Context, id string, pageIndex int) ([]byte, string, error) {
	up, err := s.store.Open(id)
	if err != nil {
		return nil, "", err
	}
	content, err := s.validator.Classify(up.Path)
	if err != nil {
		return nil, "", err
	}
	return s.pageImage(ctx, up, content, pageIndex)
}

func (s *Service) pageImage(ctx context.Context, up *StoredUpload, content ValidatedContent, pageIndex int) ([]byte, string, error) {
	if content.Kind == KindDocument {
		img, err := s.validator.RenderPage(ctx, up.Path, pageIndex, s.renderDPI)
		if err != nil {
			return nil, "", err
		}
		return img, "image/png", nil
	}

	if pageIndex != 0 {
		return nil, "", reject(ErrInvalidPageIndex, "page %d does not exist (images have 1 page)", pageIndex+1)
	}
	data, err := os.ReadFile(up.Path)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, MIMEForFormat(content.Format), nil
}

// Convert runs one page of an upload through analysis, reconstruction and
// rendering, and stores the result.
func (s *Service) Convert(ctx context.Context, req ConvertRequest) (*ConversionResult, error) {
	start := time.Now()
	log := logging.WithFields(ctx, "upload_id", req.UploadID, "page", req.PageIndex)

	meta := RequestMetaFrom(ctx)
	rec := ConversionRecord{
		ID:        uuid.NewString(),
		UploadID:  req.UploadID,
		PageIndex: req.PageIndex,
		Provider:  s.provider,
		Model:     s.model,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
	}

	if req.SessionID != "" {
		if _, err := s.sessions.Apply(req.SessionID, EventConvertStart, SessionUpdate{PageIndex: req.PageIndex}); err != nil {
			log.Debug("session transition skipped", "session", req.SessionID, "error", err)
		}
	}

	result, err := s.convert(ctx, req, &rec)
	elapsed := time.Since(start)
	rec.DurationMs = elapsed.Milliseconds()
	rec.CreatedAt = time.Now()

	if err != nil {
		msg := MapError(err)
		rec.Status, rec.ErrorCode = StatusFailed, msg.Code
		s.record(ctx, rec)
		if req.SessionID != "" {
			_, _ = s.sessions.Apply(req.SessionID, EventConvertFail, SessionUpdate{Error: msg.Message})
		}
		log.Warn("conversion failed", "code", msg.Code, "error", err)
		return nil, err
	}

	result.ID = rec.ID
	result.Duration = elapsed
	result.CreatedAt = rec.CreatedAt
	s.results.Put(result)

	rec.Status = StatusSucceeded
	rec.RowCount, rec.CellCount, rec.Cached = result.RowCount, result.CellCount, result.Cached
	s.record(ctx, rec)

	if req.SessionID != "" {
		_, _ = s.sessions.Apply(req.SessionID, EventConvertDone, SessionUpdate{ResultID: result.ID})
	}

	log.Info("conversion finished",
		"result_id", result.ID,
		"rows", result.RowCount,
		"cells", result.CellCount,
		"cached", result.Cached,
		"duration_ms", rec.DurationMs,
	)
	return result, nil
}

func (s *Service) convert(ctx context.Context, req ConvertRequest, rec *ConversionRecord) (*ConversionResult, error) {
	up, err := s.store.Open(req.UploadID)
	if err != nil {
		return nil, err
	}
	content, err := s.validator.Classify(up.Path)
	if err != nil {
		return nil, err
	}
	rec.Kind = content.Kind

	img, mime, err := s.pageImage(ctx, up, content, req.PageIndex)
	if err != nil {
		return nil, err
	}

	credential := req.Credential
	if credential == "" {
		credential = s.defaultCredential
	}

	cells, cached, err := s.analyze(ctx, img, mime, credential, req.SessionID)
	if err != nil {
		return nil, err
	}

	plan, matrix := Reconstruct(cells, s.previewRowCap)
	data, err := RenderWorkbook(plan)
	if err != nil {
		return nil, err
	}
	preview, reason := BuildPreview(matrix, PreviewTruncated(cells, s.previewRowCap))

	return &ConversionResult{
		UploadID:         up.ID,
		PageIndex:        req.PageIndex,
		SpreadsheetBytes: data,
		Preview:          preview,
		PreviewReason:    reason,
		RowCount:         RowCount(cells),
		CellCount:        len(plan.Entries),
		Cached:           cached,
	}, nil
}

// analyze returns cells for img from the cache or the analyzer. Identical
// concurrent requests share one analyzer call. The shared call is detached
// from any single caller, so a caller that goes away only abandons its own
// wait.
func (s *Service) analyze(ctx context.Context, img []byte, mime, credential, sessionID string) ([]Cell, bool, error) {
	key, cacheable := s.cache.Key(CacheKeyInput{
		Image:      img,
		Provider:   s.provider,
		Model:      s.model,
		SessionID:  sessionID,
		Credential: credential,
	})
	if cacheable {
		if cells, ok := s.cache.Get(key); ok {
			return cells, true, nil
		}
	}

	call := func(ctx context.Context) ([]Cell, error) {
		var set CellSet
		err := s.gate.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, s.analyzerTimeout)
			defer cancel()

			var err error
			set, err = s.analyzer.AnalyzeLayout(callCtx, img, mime, s.model, credential)
			return err
		})
		if err != nil {
			return nil, analysisErr(ctx, err)
		}
		if cacheable {
			s.cache.Put(key, set.Cells)
		}
		return set.Cells, nil
	}

	if !cacheable {
		cells, err := call(ctx)
		return cells, false, err
	}

	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return call(shared)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return append([]Cell(nil), res.Val.([]Cell)...), false, nil
	}
}

// analysisErr classifies an analyzer failure. Gate rejections and caller
// cancellation pass through; everything else is ErrAnalysisFailed.
func analysisErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrServerBusy), errors.Is(err, ErrAnalysisFailed):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: model call timed out", ErrAnalysisFailed)
	default:
		return fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
}

func (s *Service) record(ctx context.Context, rec ConversionRecord) {
	if s.history == nil {
		return
	}
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.Record(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("history record failed", "conversion_id", rec.ID, "error", err)
	}
}

// Result returns a stored conversion result.
func (s *Service) Result(id string) (*ConversionResult, error) {
	return s.results.Get(id)
}

// Remove deletes an upload and its results. It never fails.
func (s *Service) Remove(id, sessionID string) {
	s.discard(id)
	if sessionID != "" && s.sessions.Get(sessionID).UploadID == id {
		_, _ = s.sessions.Apply(sessionID, EventRemove, SessionUpdate{})
	}
}

func (s *Service) discard(id string) {
	s.store.Remove(id)
	s.results.DeleteForUpload(id)
}

// Session returns the state of a session.
func (s *Service) Session(id string) Session {
	return s.sessions.Get(id)
}

// Sweep runs one retention pass immediately.
func (s *Service) Sweep() SweepReport {
	return s.sweeper.Sweep()
}

// StartSweeper runs the retention sweeper on its schedule until ctx ends.
func (s *Service) StartSweeper(ctx context.Context) error {
	return s.sweeper.Start(ctx, s.sweepSchedule)
}

// StopSweeper halts the schedule.
func (s *Service) StopSweeper() {
	s.sweeper.Stop()
}

// WaitForConversions blocks until no analysis is running or ctx ends.
func (s *Service) WaitForConversions(ctx context.Context) error {
	return s.gate.WaitForDrain(ctx)
}

// HistoryEnabled reports whether conversion history is persisted.
func (s *Service) HistoryEnabled() bool {
	return s.history != nil
}

// RecentHistory returns up to limit recent conversions, newest first.
func (s *Service) RecentHistory(ctx context.Context, limit int) ([]ConversionRecord, error) {
	if s.history == nil {
		return []ConversionRecord{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.history.Recent(ctx, limit)
}

// Status is reported on the health endpoint.
type Status struct {
	Provider string     `json:"provider"`
	Model    string     `json:"model"`
	Gate     GateStatus `json:"gate"`
	Cache    CacheStats `json:"cache"`
	Results  int        `json:"results"`
	History  bool       `json:"history"`
}

// Status returns a snapshot of the service.
func (s *Service) Status() Status {
	return Status{
		Provider: s.provider,
		Model:    s.model,
		Gate:     s.gate.Status(),
		Cache:    s.cache.Stats(),
		Results:  s.results.Len(),
		History:  s.history != nil,
	}
}
