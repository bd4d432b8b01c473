package derive

import "strings"

// DetectDocType resolves the document type for a record. Explicit fields win
// over inference from OCR payload presence, and the fraud payload's view wins
// over the record's. The result is always lower-cased.
func DetectDocType(record, fraud map[string]any) string {
	for _, m := range []map[string]any{fraud, record} {
		if m == nil {
			continue
		}
		if s := strings.TrimSpace(Stringify(m["document_type"])); s != "" {
			return strings.ToLower(s)
		}
	}
	for _, m := range []map[string]any{fraud, record} {
		if m == nil {
			continue
		}
		if s := strings.TrimSpace(Stringify(m["doc_type"])); s != "" {
			return strings.ToLower(s)
		}
	}
	if record != nil {
		if _, ok := record["aadhaar_ocr"]; ok {
			return "aadhaar"
		}
		if _, ok := record["pan_ocr"]; ok {
			return "pan"
		}
	}
	return "document"
}
