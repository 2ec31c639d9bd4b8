package core

import "time"

// ContentKind is the structural kind of a stored upload.
type ContentKind string

const (
	KindImage    ContentKind = "image"
	KindDocument ContentKind = "document"
)

// StoredUpload describes one file held by the UploadStore.
type StoredUpload struct {
	ID           string    `json:"id"`
	Path         string    `json:"-"`
	DeclaredName string    `json:"declaredName"`
	Ext          string    `json:"ext"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessAt time.Time `json:"lastAccessAt"`
}

// ValidatedContent is the result of a successful Classify. It is recomputed
// every time content is about to be used and never persisted.
type ValidatedContent struct {
	Kind          ContentKind `json:"kind"`
	Format        string      `json:"format"`
	PageCount     int         `json:"pageCount"`
	Width         int         `json:"width,omitempty"`
	Height        int         `json:"height,omitempty"`
	PixelBudgetOK bool        `json:"pixelBudgetOk"`
}

// DocumentInfo is the best-effort answer of GetInfo.
type DocumentInfo struct {
	PageCount   int  `json:"pageCount"`
	IsEncrypted bool `json:"isEncrypted"`
}

// Cell is a candidate grid entry produced by layout analysis.
// Indices are 0-based; spans are at least 1 after normalization.
type Cell struct {
	RowIndex int    `json:"row_index"`
	ColIndex int    `json:"col_index"`
	RowSpan  int    `json:"row_span"`
	ColSpan  int    `json:"col_span"`
	Text     string `json:"text"`
}

// CellSet is the analyzer's output.
type CellSet struct {
	Cells []Cell `json:"cells"`
}

// MergeExtent is the bottom-right corner of a merged rectangle, 1-based.
type MergeExtent struct {
	EndRow int `json:"endRow"`
	EndCol int `json:"endCol"`
}

// PlanEntry is a single write target in a GridPlan. Row and Col are 1-based.
type PlanEntry struct {
	Row   int          `json:"row"`
	Col   int          `json:"col"`
	Text  string       `json:"text"`
	Merge *MergeExtent `json:"merge,omitempty"`
}

// IsMerge reports whether the entry spans more than one grid coordinate.
func (e PlanEntry) IsMerge() bool {
	return e.Merge != nil
}

// GridPlan is the ordered list of spreadsheet writes.
type GridPlan struct {
	Entries []PlanEntry `json:"entries"`
}

// MaxCol returns the right-most column touched by any entry, including merge extents.
func (p GridPlan) MaxCol() int {
	max := 0
	for _, e := range p.Entries {
		c := e.Col
		if e.Merge != nil && e.Merge.EndCol > c {
			c = e.Merge.EndCol
		}
		if c > max {
			max = c
		}
	}
	return max
}

// PreviewMatrix is a dense, row-capped view of the raw cell positions.
// Missing positions hold "".
type PreviewMatrix [][]string

// Rows returns the number of rows in the matrix.
func (m PreviewMatrix) Rows() int { return len(m) }

// Cols returns the number of columns in the matrix.
func (m PreviewMatrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// PreviewTable is the display form of a PreviewMatrix.
type PreviewTable struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated"`
}

// ConversionResult is produced once per conversion and handed to the caller.
type ConversionResult struct {
	ID               string        `json:"id"`
	UploadID         string        `json:"uploadId"`
	PageIndex        int           `json:"pageIndex"`
	SpreadsheetBytes []byte        `json:"-"`
	Preview          *PreviewTable `json:"preview,omitempty"`
	PreviewReason    string        `json:"previewReason,omitempty"`
	RowCount         int           `json:"rowCount"`
	CellCount        int           `json:"cellCount"`
	Cached           bool          `json:"cached"`
	Duration         time.Duration `json:"-"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// SpreadsheetFilename is the suggested download name for every result.
const SpreadsheetFilename = "Converted_Result.xlsx"

// SpreadsheetMIME is the content type of rendered workbooks.
const SpreadsheetMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
