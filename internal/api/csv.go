package api

import (
	"io"
	"strconv"
	"strings"

	"github.com/securekyc/kestrel/internal/domain"
)

// csvHeader is the fixed export header. Downstream tooling matches on it
// verbatim.
var csvHeader = []string{"Case ID", "Risk Level", "Reason", "Document Type", "Timestamp", "Confidence"}

// writeCasesCSV renders the case list as CSV with every field double-quoted,
// embedded quotes doubled, and untruncated reasons. encoding/csv only quotes
// fields that need it, so the writer is done by hand to keep the quoting
// stable for consumers that parse positionally.
func writeCasesCSV(w io.Writer, rows []domain.NormalizedRow) error {
	if err := writeCSVRow(w, csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		fields := []string{
			row.ID,
			string(row.RiskLevel),
			row.Reason,
			row.DocType,
			row.FormattedTimestamp,
			strconv.Itoa(row.Confidence),
		}
		if err := writeCSVRow(w, fields); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVRow(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
