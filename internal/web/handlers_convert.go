package web

import (
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/web/templates"
)

// convertResponse summarizes a finished conversion. The workbook itself is
// fetched from DownloadURL.
type convertResponse struct {
	ResultID      string             `json:"result_id"`
	UploadID      string             `json:"upload_id"`
	PageIndex     int                `json:"page_index"`
	RowCount      int                `json:"row_count"`
	CellCount     int                `json:"cell_count"`
	Cached        bool               `json:"cached"`
	DurationMs    int64              `json:"duration_ms"`
	Preview       *core.PreviewTable `json:"preview,omitempty"`
	PreviewReason string             `json:"preview_reason,omitempty"`
	DownloadURL   string             `json:"download_url"`
}

func downloadURL(resultID string) string {
	return "/api/results/" + resultID + "/download"
}

func newConvertResponse(res *core.ConversionResult) convertResponse {
	return convertResponse{
		ResultID:      res.ID,
		UploadID:      res.UploadID,
		PageIndex:     res.PageIndex,
		RowCount:      res.RowCount,
		CellCount:     res.CellCount,
		Cached:        res.Cached,
		DurationMs:    res.Duration.Milliseconds(),
		Preview:       res.Preview,
		PreviewReason: res.PreviewReason,
		DownloadURL:   downloadURL(res.ID),
	}
}

// handleConvert runs one page through analysis and rendering.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	page, err := pageIndex(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Convert(ctx, core.ConvertRequest{
		UploadID:   chi.URLParam(r, "uploadID"),
		PageIndex:  page,
		Credential: strings.TrimSpace(r.Header.Get(ModelKeyHeader)),
		SessionID:  sessionID(r),
	})
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		s.renderPreview(w, r, res)
		return
	}
	writeJSON(w, http.StatusOK, newConvertResponse(res))
}

// handleDownload streams the workbook as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Result(chi.URLParam(r, "resultID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", core.SpreadsheetMIME)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": core.SpreadsheetFilename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.SpreadsheetBytes)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.SpreadsheetBytes)
}

// handlePreview returns the preview table as JSON, or as an HTML fragment
// for HTMX.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Result(chi.URLParam(r, "resultID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		s.renderPreview(w, r, res)
		return
	}
	writeJSON(w, http.StatusOK, newConvertResponse(res))
}

func (s *Server) renderPreview(w http.ResponseWriter, r *http.Request, res *core.ConversionResult) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := templates.Preview(res, downloadURL(res.ID)).Render(r.Context(), w); err != nil {
		slog.Warn("render preview", "result_id", res.ID, "error", err)
	}
}

// handleSession reports the caller's session state.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Session(sessionID(r)))
}

// handleHistory lists recent conversions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.RecentHistory(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := templates.History(records).Render(r.Context(), w); err != nil {
			slog.Warn("render history", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":     s.service.HistoryEnabled(),
		"conversions": records,
	})
}

// handleHealth is the liveness probe. It reports the analysis gate so a load
// balancer can see when the single model slot is taken.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": s.service.Status(),
	})
}
