package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ExportFormat selects the Export encoding.
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)

// ParseExportFormat accepts json, ndjson or csv in any case.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(s)); f {
	case ExportFormatJSON, ExportFormatNDJSON, ExportFormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Export writes events to w in the given format.
func Export(w io.Writer, events []*Event, format ExportFormat) error {
	switch format {
	case ExportFormatJSON:
		return exportJSON(w, events)
	case ExportFormatNDJSON:
		return exportNDJSON(w, events)
	case ExportFormatCSV:
		return exportCSV(w, events)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// exportJSON exports audit events as JSON array
func exportJSON(w io.Writer, events []*Event) error {
	if events == nil {
		events = []*Event{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

// exportNDJSON exports audit events as newline-delimited JSON
func exportNDJSON(w io.Writer, events []*Event) error {
	enc := json.NewEncoder(w)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{
	"ID",
	"Timestamp",
	"TenantID",
	"EventType",
	"Status",
	"UserID",
	"Role",
	"RequestID",
	"Method",
	"Path",
	"StatusCode",
	"Message",
}

// exportCSV exports audit events as CSV. Metadata is left out.
func exportCSV(w io.Writer, events []*Event) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			event.ID,
			event.Timestamp.UTC().Format(time.RFC3339),
			event.TenantID,
			string(event.EventType),
			string(event.Status),
			event.UserID,
			event.Role,
			event.RequestID,
			event.Method,
			event.Path,
			formatStatusCode(event.StatusCode),
			event.Message,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func formatStatusCode(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
