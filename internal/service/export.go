package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
)

// Export formats for cached query results.
const (
	ExportCSV  = "csv"
	ExportJSON = "json"
)

// ExportResult renders the last cached result for a query as CSV or JSON.
// A query with no cached result, or whose last run failed, cannot be
// exported.
func (s *DatabaseService) ExportResult(queryID, format string) ([]byte, error) {
	view, err := s.GetCachedResult(queryID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, fmt.Errorf("no cached result for query %s", queryID)
	}
	if view.Error != "" {
		return nil, fmt.Errorf("last run of query %s failed: %s", queryID, view.Error)
	}

	switch format {
	case ExportCSV:
		return exportCSV(view)
	case ExportJSON:
		return json.MarshalIndent(map[string]any{
			"columns":  view.Columns,
			"rows":     view.Rows,
			"rowCount": view.RowCount,
		}, "", "  ")
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func exportCSV(view *QueryResultView) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(view.Columns); err != nil {
		return nil, err
	}
	record := make([]string, len(view.Columns))
	for _, row := range view.Rows {
		for i, col := range view.Columns {
			v := row[col]
			if v == nil {
				record[i] = ""
			} else {
				record[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
