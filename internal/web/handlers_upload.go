package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

var errNoFile = errors.New("no file provided")

// uploadResponse is returned after a file is stored and validated.
type uploadResponse struct {
	UploadID     string           `json:"upload_id"`
	DeclaredName string           `json:"declared_name"`
	SizeBytes    int64            `json:"size_bytes"`
	Kind         core.ContentKind `json:"kind"`
	Format       string           `json:"format"`
	PageCount    int              `json:"page_count"`
	Width        int              `json:"width,omitempty"`
	Height       int              `json:"height,omitempty"`
}

// handleUpload streams the multipart "file" part into the upload store.
// The part is never buffered in memory or spooled to a temp file; the store
// enforces the size limit while copying.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.Store().MaxFileSize()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.respondError(w, r, errNoFile, http.StatusBadRequest)
			return
		}
		if err != nil {
			s.respondError(w, r, uploadReadErr(err), http.StatusBadRequest)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		ctx := WithRequestMetadata(r.Context(), r)
		summary, err := s.service.Upload(ctx, part, part.FileName(), declaredSize(r), sessionID(r))
		part.Close()
		if err != nil {
			s.respondError(w, r, uploadReadErr(err), 0)
			return
		}

		writeJSON(w, http.StatusCreated, uploadResponse{
			UploadID:     summary.Upload.ID,
			DeclaredName: summary.Upload.DeclaredName,
			SizeBytes:    summary.Upload.SizeBytes,
			Kind:         summary.Content.Kind,
			Format:       summary.Content.Format,
			PageCount:    summary.Content.PageCount,
			Width:        summary.Content.Width,
			Height:       summary.Content.Height,
		})
		return
	}
}

// declaredSize reads the optional "X-File-Size" hint so oversized files are
// refused before any bytes are written. Unknown is -1.
func declaredSize(r *http.Request) int64 {
	n, err := strconv.ParseInt(r.Header.Get("X-File-Size"), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// uploadReadErr reports a tripped body limit as a size violation.
func uploadReadErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &core.ValidationError{
			Kind:   core.ErrSizeLimitExceeded,
			Reason: "request body exceeds " + strconv.FormatInt(mbe.Limit, 10) + " bytes",
		}
	}
	return err
}

// handleUploadInfo returns best-effort page count and encryption status.
func (s *Server) handleUploadInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Info(chi.URLParam(r, "uploadID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handlePageImage returns one page as an image for the page picker.
func (s *Server) handlePageImage(w http.ResponseWriter, r *http.Request) {
	page, err := pageIndex(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	img, mime, err := s.service.PageImage(r.Context(), chi.URLParam(r, "uploadID"), page)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// handleRemoveUpload deletes the upload and its results. Unknown IDs succeed.
func (s *Server) handleRemoveUpload(w http.ResponseWriter, r *http.Request) {
	s.service.Remove(chi.URLParam(r, "uploadID"), sessionID(r))
	w.WriteHeader(http.StatusNoContent)
}
