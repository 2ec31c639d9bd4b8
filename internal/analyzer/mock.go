package analyzer

import (
	"context"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

// ProviderMock selects the Mock analyzer.
const ProviderMock = "mock"

// SampleCells is the layout the Mock analyzer returns: a header merged over
// two columns above a row of two plain cells.
func SampleCells() []core.Cell {
	return []core.Cell{
		{RowIndex: 0, ColIndex: 0, RowSpan: 1, ColSpan: 2, Text: "Header Merged"},
		{RowIndex: 1, ColIndex: 0, RowSpan: 1, ColSpan: 1, Text: "Row 1 Col 1"},
		{RowIndex: 1, ColIndex: 1, RowSpan: 1, ColSpan: 1, Text: "Row 1 Col 2"},
	}
}

// Mock ignores its input and returns SampleCells.
type Mock struct{}

// AnalyzeLayout implements core.LayoutAnalyzer.
func (Mock) AnalyzeLayout(ctx context.Context, _ []byte, _, _, _ string) (core.CellSet, error) {
	if err := ctx.Err(); err != nil {
		return core.CellSet{}, err
	}
	return core.CellSet{Cells: SampleCells()}, nil
}
