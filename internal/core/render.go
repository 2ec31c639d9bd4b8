package core

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SheetName is the title of the single worksheet in every workbook.
const SheetName = "Converted Table"

// Column width bounds in character units.
const (
	columnPadding  = 2
	maxColumnWidth = 50
)

// maxStyledArea is the largest merged rectangle styled cell by cell. Larger
// merges get the style on the anchor only; excelize stores a style per cell.
const maxStyledArea = 1 << 16

// RenderWorkbook writes plan into a single-sheet workbook and returns the
// encoded bytes. Either a complete workbook is returned or an error wrapping
// ErrRenderFailed.
func RenderWorkbook(plan GridPlan) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, renderErr("name sheet", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
			WrapText:   true,
		},
	})
	if err != nil {
		return nil, renderErr("create style", err)
	}

	widths := make(map[int]int)
	for _, e := range plan.Entries {
		anchor, err := excelize.CoordinatesToCellName(e.Col, e.Row)
		if err != nil {
			return nil, renderErr("cell name", err)
		}
		if err := f.SetCellStr(SheetName, anchor, e.Text); err != nil {
			return nil, renderErr("write cell "+anchor, err)
		}

		last := anchor
		if e.Merge != nil {
			if last, err = excelize.CoordinatesToCellName(e.Merge.EndCol, e.Merge.EndRow); err != nil {
				return nil, renderErr("cell name", err)
			}
		}
		styledTo := last
		if e.Merge != nil && mergeArea(e) > maxStyledArea {
			styledTo = anchor
		}
		if err := f.SetCellStyle(SheetName, anchor, styledTo, style); err != nil {
			return nil, renderErr("style "+anchor, err)
		}
		if e.Merge != nil {
			if err := f.MergeCell(SheetName, anchor, last); err != nil {
				return nil, renderErr("merge "+anchor+":"+last, err)
			}
		}

		widths[e.Col] = max(widths[e.Col], textWidth(e.Text))
	}

	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col)
		if err != nil {
			return nil, renderErr("column name", err)
		}
		if err := f.SetColWidth(SheetName, name, name, ColumnWidth(w)); err != nil {
			return nil, renderErr("column width "+name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, renderErr("encode workbook", err)
	}
	return buf.Bytes(), nil
}

func mergeArea(e PlanEntry) int64 {
	return int64(e.Merge.EndRow-e.Row+1) * int64(e.Merge.EndCol-e.Col+1)
}

// ColumnWidth converts a text length into a column width: padded, capped.
func ColumnWidth(textLen int) float64 {
	return float64(min(textLen+columnPadding, maxColumnWidth))
}

// textWidth is the rune count of the longest line in s.
func textWidth(s string) int {
	longest := 0
	for _, line := range strings.Split(s, "\n") {
		longest = max(longest, utf8.RuneCountInString(line))
	}
	return longest
}

func renderErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRenderFailed, step, err)
}
