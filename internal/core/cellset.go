package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Accepted spellings for each cell field. Models drift between snake and
// camel case, and a cell should not be lost over naming.
var (
	rowKeys     = []string{"row_index", "rowIndex", "row"}
	colKeys     = []string{"col_index", "colIndex", "column_index", "col", "column"}
	rowSpanKeys = []string{"row_span", "rowSpan", "rowspan"}
	colSpanKeys = []string{"col_span", "colSpan", "colspan"}
	textKeys    = []string{"text", "value", "content"}
)

// DecodeCellSet parses an analyzer response into a CellSet.
//
// The response may be wrapped in a markdown code fence and may be either an
// object with a "cells" array or a bare array. Individual fields are coerced
// with defaults (0 for indices, 1 for spans, "" for text). Only a response
// without a cell collection is an error.
func DecodeCellSet(text string) (CellSet, error) {
	body := extractJSON(text)
	if body == "" {
		return CellSet{}, fmt.Errorf("%w: response contains no JSON", ErrAnalysisFailed)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return CellSet{}, fmt.Errorf("%w: decode response: %v", ErrAnalysisFailed, err)
	}

	var items []any
	switch v := top.(type) {
	case []any:
		items = v
	case map[string]any:
		raw, ok := v["cells"]
		if !ok {
			return CellSet{}, fmt.Errorf("%w: response has no cells collection", ErrAnalysisFailed)
		}
		list, ok := raw.([]any)
		if !ok {
			if raw == nil {
				return CellSet{Cells: []Cell{}}, nil
			}
			return CellSet{}, fmt.Errorf("%w: cells is %T, not a list", ErrAnalysisFailed, raw)
		}
		items = list
	default:
		return CellSet{}, fmt.Errorf("%w: response is %T, not an object", ErrAnalysisFailed, top)
	}

	set := CellSet{Cells: make([]Cell, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			slog.Debug("skipping non-object cell", "index", i, "type", fmt.Sprintf("%T", item))
			continue
		}
		set.Cells = append(set.Cells, Cell{
			RowIndex: intField(obj, rowKeys, 0),
			ColIndex: intField(obj, colKeys, 0),
			RowSpan:  intField(obj, rowSpanKeys, 1),
			ColSpan:  intField(obj, colSpanKeys, 1),
			Text:     textField(obj, textKeys),
		})
	}
	return set, nil
}

// extractJSON strips a markdown fence and any prose around the outermost
// JSON value.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// intField coerces numbers and numeric strings; anything else yields def.
func intField(obj map[string]any, keys []string, def int) int {
	v, ok := lookup(obj, keys)
	if !ok {
		return def
	}

	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case float64:
		return clampFloat(t, def)
	default:
		return def
	}

	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return clampFloat(f, def)
	}
	return def
}

func clampFloat(f float64, def int) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

func textField(obj map[string]any, keys []string) string {
	v, ok := lookup(obj, keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
