package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/securekyc/kestrel/internal/domain"
)

// KYCClient talks to the KYC document service: record listings, document
// extraction, submissions, review actions, and the audit trail.
type KYCClient struct {
	*client
}

func NewKYCClient(baseURL string, timeout time.Duration) *KYCClient {
	return &KYCClient{client: newClient(baseURL, timeout)}
}

// Records fetches the full raw record list.
func (c *KYCClient) Records(ctx context.Context) ([]domain.RawRecord, error) {
	var payload struct {
		Records []domain.RawRecord `json:"records"`
	}
	if err := c.getJSON(ctx, "/get_kyc_data", &payload); err != nil {
		return nil, err
	}
	return payload.Records, nil
}

// MyUploads fetches the caller's own submissions. The endpoint is optional
// upstream; any failure falls back to the full record list.
func (c *KYCClient) MyUploads(ctx context.Context) ([]domain.RawRecord, error) {
	var payload struct {
		Records []domain.RawRecord `json:"records"`
	}
	if err := c.getJSON(ctx, "/my-uploads", &payload); err == nil {
		return payload.Records, nil
	}
	return c.Records(ctx)
}

// AuditTrail fetches the backend audit feed. The payload shape has varied
// across backend versions: {audit: [...]}, {events: [...]}, or a bare array.
func (c *KYCClient) AuditTrail(ctx context.Context) ([]domain.AuditEvent, error) {
	body, err := c.get(ctx, "/audit-trail")
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Audit  []domain.AuditEvent `json:"audit"`
		Events []domain.AuditEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.Audit != nil {
			return wrapped.Audit, nil
		}
		if wrapped.Events != nil {
			return wrapped.Events, nil
		}
	}
	var bare []domain.AuditEvent
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	return nil, nil
}

// Review actions. The backend expects an empty POST and any 2xx means done.

func (c *KYCClient) Approve(ctx context.Context, id string) error {
	return c.action(ctx, "approve", id)
}

func (c *KYCClient) Reject(ctx context.Context, id string) error {
	return c.action(ctx, "reject", id)
}

func (c *KYCClient) Flag(ctx context.Context, id string) error {
	return c.action(ctx, "flag", id)
}

func (c *KYCClient) action(ctx context.Context, verb, id string) error {
	_, err := c.post(ctx, fmt.Sprintf("/%s/%s", verb, url.PathEscape(id)), "", nil)
	return err
}

// Extract runs OCR extraction for one uploaded document. docType selects the
// endpoint: aadhaar, pan, or dl. The response is either wrapped in an
// extracted_data envelope or a raw object, depending on backend version.
func (c *KYCClient) Extract(ctx context.Context, docType, filename string, content io.Reader) (map[string]any, error) {
	body, contentType, err := multipartBody(nil, []filePart{{Field: "file", Filename: filename, Content: content}})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/extract_"+docType, contentType, body)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, err
	}
	if inner, ok := payload["extracted_data"].(map[string]any); ok {
		return inner, nil
	}
	return payload, nil
}

// SubmitFile describes one uploaded document for Submit.
type SubmitFile struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Submit forwards a full KYC submission: personal fields plus optional
// document files. No response body is expected.
func (c *KYCClient) Submit(ctx context.Context, fields map[string]string, files []SubmitFile) error {
	parts := make([]filePart, 0, len(files))
	for _, f := range files {
		parts = append(parts, filePart(f))
	}
	body, contentType, err := multipartBody(fields, parts)
	if err != nil {
		return err
	}
	_, err = c.post(ctx, "/submit-kyc", contentType, body)
	return err
}
