package core

// grid.go turns an untrusted, unordered cell collection into spreadsheet
// writes. Processing order is fixed by sorting, so the topmost-then-leftmost
// claim always wins a conflict no matter how the analyzer ordered its output.

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
)

// Spreadsheet bounds. Cells whose origin falls outside are dropped, spans are
// clipped to the sheet edge.
const (
	MaxSheetRows = 1048576
	MaxSheetCols = 16384
)

// DefaultPreviewRowCap is the number of rows kept in a PreviewMatrix.
const DefaultPreviewRowCap = 50

// formulaPrefix neutralizes text a spreadsheet would evaluate.
const formulaPrefix = "'"

// NormalizeCell applies safe defaults to a single analyzer cell. Negative
// indices become 0, spans are at least 1 and are clipped to the sheet.
// An origin past the sheet edge is pinned to the edge; see inSheet.
func NormalizeCell(c Cell) Cell {
	c.RowIndex = min(max(c.RowIndex, 0), MaxSheetRows)
	c.ColIndex = min(max(c.ColIndex, 0), MaxSheetCols)
	c.RowSpan = min(max(c.RowSpan, 1), MaxSheetRows)
	c.ColSpan = min(max(c.ColSpan, 1), MaxSheetCols)

	if c.RowIndex+c.RowSpan > MaxSheetRows {
		c.RowSpan = max(MaxSheetRows-c.RowIndex, 1)
	}
	if c.ColIndex+c.ColSpan > MaxSheetCols {
		c.ColSpan = max(MaxSheetCols-c.ColIndex, 1)
	}
	return c
}

// SanitizeText prefixes text that starts with a formula trigger.
func SanitizeText(text string) string {
	if text == "" {
		return text
	}
	switch text[0] {
	case '=', '+', '-', '@':
		return formulaPrefix + text
	}
	return text
}

// rect is a claimed area in 1-based sheet coordinates, inclusive.
type rect struct {
	top, left, bottom, right int
}

func (r rect) contains(row, col int) bool {
	return row >= r.top && row <= r.bottom && col >= r.left && col <= r.right
}

func (r rect) intersects(o rect) bool {
	return r.top <= o.bottom && o.top <= r.bottom && r.left <= o.right && o.left <= r.right
}

// occupancy tracks claimed coordinates as a list of disjoint rectangles.
// Merges can cover thousands of coordinates, so rectangles are stored rather
// than individual points.
type occupancy []rect

func (o occupancy) occupied(row, col int) bool {
	for _, r := range o {
		if r.contains(row, col) {
			return true
		}
	}
	return false
}

func (o occupancy) overlaps(target rect) bool {
	for _, r := range o {
		if r.intersects(target) {
			return true
		}
	}
	return false
}

// normalizeCells normalizes, drops out-of-sheet origins and sorts.
func normalizeCells(cells []Cell) []Cell {
	out := make([]Cell, 0, len(cells))
	for _, c := range cells {
		n := NormalizeCell(c)
		if !inSheet(n) {
			slog.Debug("cell outside sheet dropped", "row", n.RowIndex, "col", n.ColIndex)
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, compareCells)
	return out
}

func inSheet(c Cell) bool {
	return c.RowIndex < MaxSheetRows && c.ColIndex < MaxSheetCols
}

// compareCells orders by origin, then by span and text so equal origins
// still sort the same way for any input permutation.
func compareCells(a, b Cell) int {
	return cmp.Or(
		cmp.Compare(a.RowIndex, b.RowIndex),
		cmp.Compare(a.ColIndex, b.ColIndex),
		cmp.Compare(a.RowSpan, b.RowSpan),
		cmp.Compare(a.ColSpan, b.ColSpan),
		strings.Compare(a.Text, b.Text),
	)
}

// Reconstruct builds the write plan and the preview matrix for cells.
// previewRowCap <= 0 selects DefaultPreviewRowCap. It never fails: an empty
// input gives an empty plan and an empty matrix.
func Reconstruct(cells []Cell, previewRowCap int) (GridPlan, PreviewMatrix) {
	if previewRowCap <= 0 {
		previewRowCap = DefaultPreviewRowCap
	}
	sorted := normalizeCells(cells)

	plan := GridPlan{Entries: make([]PlanEntry, 0, len(sorted))}
	var claimed occupancy

	for _, c := range sorted {
		row, col := c.RowIndex+1, c.ColIndex+1
		if claimed.occupied(row, col) {
			continue
		}

		entry := PlanEntry{Row: row, Col: col, Text: SanitizeText(c.Text)}
		area := rect{top: row, left: col, bottom: row, right: col}

		if c.RowSpan > 1 || c.ColSpan > 1 {
			merged := rect{top: row, left: col, bottom: row + c.RowSpan - 1, right: col + c.ColSpan - 1}
			if claimed.overlaps(merged) {
				slog.Debug("merge conflict, writing plain cell",
					"row", row, "col", col, "row_span", c.RowSpan, "col_span", c.ColSpan)
			} else {
				entry.Merge = &MergeExtent{EndRow: merged.bottom, EndCol: merged.right}
				area = merged
			}
		}

		claimed = append(claimed, area)
		plan.Entries = append(plan.Entries, entry)
	}

	return plan, buildPreviewMatrix(sorted, previewRowCap)
}

// buildPreviewMatrix lays out raw cell origins, ignoring merges. The first
// cell in sorted order wins a coordinate.
func buildPreviewMatrix(sorted []Cell, rowCap int) PreviewMatrix {
	type coord struct{ row, col int }
	texts := make(map[coord]string)
	maxRow, maxCol := -1, -1

	for _, c := range sorted {
		if c.RowIndex >= rowCap {
			// sorted by row, nothing below the cap follows
			break
		}
		k := coord{c.RowIndex, c.ColIndex}
		if _, seen := texts[k]; seen {
			continue
		}
		texts[k] = SanitizeText(c.Text)
		maxRow = max(maxRow, c.RowIndex)
		maxCol = max(maxCol, c.ColIndex)
	}

	if maxRow < 0 {
		return PreviewMatrix{}
	}

	matrix := make(PreviewMatrix, maxRow+1)
	for r := range matrix {
		matrix[r] = make([]string, maxCol+1)
		for c := range matrix[r] {
			matrix[r][c] = texts[coord{r, c}]
		}
	}
	return matrix
}

// RowCount returns max(rowIndex+rowSpan) over the normalized cells, 0 when empty.
func RowCount(cells []Cell) int {
	n := 0
	for _, c := range cells {
		nc := NormalizeCell(c)
		if inSheet(nc) {
			n = max(n, nc.RowIndex+nc.RowSpan)
		}
	}
	return n
}

// PreviewTruncated reports whether any cell starts at or below the row cap.
func PreviewTruncated(cells []Cell, rowCap int) bool {
	if rowCap <= 0 {
		rowCap = DefaultPreviewRowCap
	}
	for _, c := range cells {
		if max(c.RowIndex, 0) >= rowCap {
			return true
		}
	}
	return false
}
