// Package export serializes filtered ledger entries to CSV or JSON for
// compliance downloads. Hash fields are always emitted verbatim at full
// length; a truncated hash cannot be re-verified.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/verdantio/carbonledger/internal/ledger"
)

// Format selects the serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a format string from the API surface.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON, "":
		return FormatJSON, nil
	}
	return "", &ledger.ValidationError{Field: "format", Detail: fmt.Sprintf("unsupported export format %q", s)}
}

// ContentType returns the MIME type for HTTP responses.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// csvHeader is the fixed CSV column order. Payload is flattened into a single
// JSON column so entry-specific fields survive without a variable schema.
var csvHeader = []string{
	"sequence", "subject_type", "timestamp", "actor_id", "actor_role",
	"action", "resource", "payload", "previous_hash", "hash",
}

// Write serializes entries to w in the given format.
func Write(w io.Writer, entries []*ledger.Entry, format Format) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, entries)
	case FormatJSON:
		return writeJSON(w, entries)
	}
	return &ledger.ValidationError{Field: "format", Detail: fmt.Sprintf("unsupported export format %q", format)}
}

func writeCSV(w io.Writer, entries []*ledger.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for entry %d: %w", e.Sequence, err)
		}
		record := []string{
			fmt.Sprintf("%d", e.Sequence),
			string(e.SubjectType),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.ActorID,
			e.ActorRole,
			e.Action,
			e.Resource,
			string(payloadJSON),
			e.PrevHash,
			e.Hash,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record %d: %w", e.Sequence, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, entries []*ledger.Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	return enc.Encode(entries)
}
