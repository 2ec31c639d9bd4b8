package core

// validation.go is the single gate between stored uploads and anything that
// decodes them (the layout analyzer or the PDF rasterizer).
//
// Validation happens on content, never on the declared filename. The stored
// extension, already constrained by the upload allow-list, only selects
// between the image path and the PDF path:
//
//  1. Images: header decode, structural walk, pixel ceiling
//  2. PDFs: structural parse, encryption, page ceiling, active content
//
// Every rejection is a ValidationError whose reason names the violated rule.

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	pdfcore "github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/reader"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImagePixels is the pixel ceiling applied wherever pixels are decoded.
const DefaultMaxImagePixels int64 = 80_000_000

// DefaultPDFPageLimit is the maximum number of pages in an accepted PDF.
const DefaultPDFPageLimit = 10

// DefaultRenderDPI is the requested rasterization resolution.
const DefaultRenderDPI = 200

// pointsPerInch converts PDF user space units to inches.
const pointsPerInch = 72.0

// Limits configures the validator.
type Limits struct {
	MaxImagePixels int64
	PDFPageLimit   int
}

// Rasterizer turns one PDF page into PNG bytes of exactly widthPx x heightPx.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, pageIndex, widthPx, heightPx int) ([]byte, error)
}

// Validator classifies stored content and renders PDF pages within budget.
type Validator struct {
	limits Limits
	raster Rasterizer
}

// NewValidator returns a Validator; zero limits select the defaults.
func NewValidator(limits Limits, raster Rasterizer) *Validator {
	if limits.MaxImagePixels <= 0 {
		limits.MaxImagePixels = DefaultMaxImagePixels
	}
	if limits.PDFPageLimit <= 0 {
		limits.PDFPageLimit = DefaultPDFPageLimit
	}
	return &Validator{limits: limits, raster: raster}
}

// Limits returns the effective limits.
func (v *Validator) Limits() Limits {
	return v.limits
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Classify inspects the file at path and returns its validated description.
func (v *Validator) Classify(path string) (ValidatedContent, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ValidatedContent{}, fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	if info.Size() == 0 {
		return ValidatedContent{}, reject(ErrEmptyFile, "the uploaded file is empty")
	}

	if isPDF(path) {
		return v.classifyPDF(path)
	}
	return v.classifyImage(path)
}

// =============================================================================
// Images
// =============================================================================

// imageFormats are the decoded formats accepted for analysis, with their MIME types.
var imageFormats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// MIMEForFormat returns the MIME type of an accepted image format.
func MIMEForFormat(format string) string {
	return imageFormats[format]
}

func (v *Validator) classifyImage(path string) (ValidatedContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return ValidatedContent{}, fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	defer f.Close()

	// DecodeConfig reads the header only; no pixel buffer is allocated.
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return ValidatedContent{}, reject(ErrCorruptDocument, "image header could not be decoded")
	}
	if _, ok := imageFormats[format]; !ok {
		return ValidatedContent{}, reject(ErrUnsupportedType, "image format %q is not allowed; allowed: png, jpeg, webp", format)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ValidatedContent{}, fmt.Errorf("rewind image: %w", err)
	}
	if err := checkImageStructure(f, format); err != nil {
		return ValidatedContent{}, reject(ErrCorruptDocument, "%s image is damaged: %v", strings.ToUpper(format), err)
	}

	if err := v.checkPixels(cfg.Width, cfg.Height); err != nil {
		return ValidatedContent{}, err
	}

	return ValidatedContent{
		Kind:          KindImage,
		Format:        format,
		PageCount:     1,
		Width:         cfg.Width,
		Height:        cfg.Height,
		PixelBudgetOK: true,
	}, nil
}

// checkPixels applies the pixel ceiling to decoded dimensions.
func (v *Validator) checkPixels(width, height int) error {
	if width <= 0 || height <= 0 {
		return reject(ErrCorruptDocument, "image has invalid dimensions %dx%d", width, height)
	}
	pixels := int64(width) * int64(height)
	if pixels > v.limits.MaxImagePixels {
		return reject(ErrPixelLimitExceeded, "image is %dx%d (%d pixels), limit is %d pixels",
			width, height, pixels, v.limits.MaxImagePixels)
	}
	return nil
}

// =============================================================================
// PDF documents
// =============================================================================

// objectResolver is the part of the tabula reader used to follow references.
type objectResolver interface {
	Resolve(obj pdfcore.Object) (pdfcore.Object, error)
}

func (v *Validator) classifyPDF(path string) (ValidatedContent, error) {
	doc, err := reader.Open(path)
	if err != nil {
		return ValidatedContent{}, reject(ErrCorruptDocument, "PDF structure could not be parsed")
	}
	defer doc.Close()

	if isEncrypted(doc.Trailer()) {
		return ValidatedContent{}, reject(ErrEncryptedDocument, "PDF is password protected")
	}

	pages, err := doc.PageCount()
	if err != nil {
		return ValidatedContent{}, reject(ErrCorruptDocument, "PDF page tree could not be read")
	}
	if pages <= 0 {
		return ValidatedContent{}, reject(ErrCorruptDocument, "PDF has no pages")
	}
	if pages > v.limits.PDFPageLimit {
		return ValidatedContent{}, reject(ErrTooManyPages, "PDF exceeds page limit (%d/%d)", pages, v.limits.PDFPageLimit)
	}

	catalog, err := doc.GetCatalog()
	if err != nil {
		return ValidatedContent{}, reject(ErrCorruptDocument, "PDF catalog could not be read")
	}
	if marker := activeContentMarker(doc, catalog); marker != "" {
		return ValidatedContent{}, reject(ErrActiveContentRejected, "PDF contains active content (%s)", marker)
	}

	return ValidatedContent{
		Kind:          KindDocument,
		Format:        "pdf",
		PageCount:     pages,
		PixelBudgetOK: true,
	}, nil
}

func isEncrypted(trailer pdfcore.Dict) bool {
	return trailer != nil && trailer.Has("Encrypt")
}

// catalogScriptKeys are catalog entries that make a document executable.
var catalogScriptKeys = []string{"JavaScript", "JS", "AA"}

// activeContentMarker returns a description of the first script marker found
// in the catalog, or "" when the catalog is clean.
func activeContentMarker(res objectResolver, catalog pdfcore.Dict) string {
	for _, key := range catalogScriptKeys {
		if catalog.Has(key) {
			return "/" + key
		}
	}

	if names := resolveDict(res, catalog.Get("Names")); names != nil && names.Has("JavaScript") {
		return "/Names/JavaScript"
	}

	if action := resolveDict(res, catalog.Get("OpenAction")); action != nil {
		if action.Has("JS") {
			return "/OpenAction/JS"
		}
		if s, ok := action.GetName("S"); ok {
			switch string(s) {
			case "JavaScript", "Launch":
				return "/OpenAction/" + string(s)
			}
		}
	}
	return ""
}

// resolveDict follows one level of indirection and returns the dictionary, or nil.
func resolveDict(res objectResolver, obj pdfcore.Object) pdfcore.Dict {
	if obj == nil {
		return nil
	}
	resolved, err := res.Resolve(obj)
	if err != nil {
		return nil
	}
	d, _ := resolved.(pdfcore.Dict)
	return d
}

// GetInfo reports page count and encryption for page selection. It never
// fails; unreadable files yield the zero value.
func (v *Validator) GetInfo(path string) DocumentInfo {
	if !isPDF(path) {
		if _, err := os.Stat(path); err != nil {
			return DocumentInfo{}
		}
		return DocumentInfo{PageCount: 1}
	}

	doc, err := reader.Open(path)
	if err != nil {
		return DocumentInfo{}
	}
	defer doc.Close()

	if isEncrypted(doc.Trailer()) {
		return DocumentInfo{IsEncrypted: true}
	}

	pages, err := doc.PageCount()
	if err != nil || pages < 0 {
		return DocumentInfo{}
	}
	return DocumentInfo{PageCount: pages}
}

// =============================================================================
// Page rendering
// =============================================================================

// RenderSize returns the pixel size for a page of widthPt x heightPt points
// at dpi. When the area would exceed maxPixels the scale is reduced so the
// result fits; the scale is never increased.
func RenderSize(widthPt, heightPt float64, dpi int, maxPixels int64) (int, int) {
	w := widthPt * float64(dpi) / pointsPerInch
	h := heightPt * float64(dpi) / pointsPerInch
	if area := w * h; area > float64(maxPixels) && area > 0 {
		shrink := math.Sqrt(float64(maxPixels) / area)
		w *= shrink
		h *= shrink
	}
	wp, hp := int(math.Floor(w)), int(math.Floor(h))
	if wp < 1 {
		wp = 1
	}
	if hp < 1 {
		hp = 1
	}
	return wp, hp
}

// RenderPage rasterizes one page of the PDF at path to PNG bytes.
// The document handle is closed before the rasterizer runs and on every
// early return.
func (v *Validator) RenderPage(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = DefaultRenderDPI
	}

	widthPx, heightPx, err := v.pagePixelSize(path, pageIndex, dpi)
	if err != nil {
		return nil, err
	}

	if v.raster == nil {
		return nil, fmt.Errorf("%w: no rasterizer configured", ErrRenderFailed)
	}

	data, err := v.raster.Rasterize(ctx, path, pageIndex, widthPx, heightPx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "png" {
		return nil, fmt.Errorf("%w: rasterizer returned an unreadable image", ErrRenderFailed)
	}
	if err := v.checkPixels(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	slog.Debug("page rendered",
		"page", pageIndex,
		"dpi", dpi,
		"width", cfg.Width,
		"height", cfg.Height,
	)
	return data, nil
}

// pagePixelSize validates the page index and computes the budgeted render size.
func (v *Validator) pagePixelSize(path string, pageIndex, dpi int) (int, int, error) {
	doc, err := reader.Open(path)
	if err != nil {
		return 0, 0, reject(ErrCorruptDocument, "PDF structure could not be parsed")
	}
	defer doc.Close()

	if isEncrypted(doc.Trailer()) {
		return 0, 0, reject(ErrEncryptedDocument, "PDF is password protected")
	}

	pages, err := doc.PageCount()
	if err != nil {
		return 0, 0, reject(ErrCorruptDocument, "PDF page tree could not be read")
	}
	if pageIndex < 0 || pageIndex >= pages {
		return 0, 0, reject(ErrInvalidPageIndex, "page %d does not exist (document has %d pages)", pageIndex+1, pages)
	}

	page, err := doc.GetPage(pageIndex)
	if err != nil {
		return 0, 0, reject(ErrCorruptDocument, "page %d could not be read", pageIndex+1)
	}
	box, err := page.CropBox()
	if err != nil || len(box) != 4 {
		return 0, 0, reject(ErrCorruptDocument, "page %d has no usable page box", pageIndex+1)
	}

	widthPt := math.Abs(box[2] - box[0])
	heightPt := math.Abs(box[3] - box[1])
	if widthPt == 0 || heightPt == 0 {
		return 0, 0, reject(ErrCorruptDocument, "page %d has an empty page box", pageIndex+1)
	}
	if r := page.Rotate(); r == 90 || r == 270 || r == -90 || r == -270 {
		widthPt, heightPt = heightPt, widthPt
	}

	w, h := RenderSize(widthPt, heightPt, dpi, v.limits.MaxImagePixels)
	return w, h, nil
}
