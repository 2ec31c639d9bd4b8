package core

import "github.com/xuri/excelize/v2"

// NoCellsReason is reported when a conversion produced nothing to preview.
const NoCellsReason = "no cells detected"

// BuildPreview turns a matrix into a display table with spreadsheet column
// letters. An empty matrix yields no table and a reason.
func BuildPreview(matrix PreviewMatrix, truncated bool) (*PreviewTable, string) {
	if matrix.Rows() == 0 || matrix.Cols() == 0 {
		return nil, NoCellsReason
	}

	cols := make([]string, matrix.Cols())
	for i := range cols {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			// beyond the last sheet column; matrix widths never get here
			name = ""
		}
		cols[i] = name
	}

	rows := make([][]string, matrix.Rows())
	for i, r := range matrix {
		rows[i] = append([]string(nil), r...)
	}

	return &PreviewTable{Columns: cols, Rows: rows, Truncated: truncated}, ""
}
