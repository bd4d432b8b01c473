package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/securekyc/kestrel/internal/backend"
	"github.com/securekyc/kestrel/internal/domain"
	"github.com/securekyc/kestrel/internal/poller"
	"github.com/securekyc/kestrel/internal/repository"
	"github.com/securekyc/kestrel/internal/triage"
)

// stubKYC implements KYCService with canned responses for handler tests.
type stubKYC struct {
	records   []domain.RawRecord
	uploads   []domain.RawRecord
	audit     []domain.AuditEvent
	actionErr error
	actioned  []string
	extracted map[string]any
	submitted map[string]string
}

func (s *stubKYC) Records(ctx context.Context) ([]domain.RawRecord, error) {
	return s.records, nil
}

func (s *stubKYC) MyUploads(ctx context.Context) ([]domain.RawRecord, error) {
	return s.uploads, nil
}

func (s *stubKYC) AuditTrail(ctx context.Context) ([]domain.AuditEvent, error) {
	return s.audit, nil
}

func (s *stubKYC) Approve(ctx context.Context, id string) error {
	s.actioned = append(s.actioned, "approve:"+id)
	return s.actionErr
}

func (s *stubKYC) Reject(ctx context.Context, id string) error {
	s.actioned = append(s.actioned, "reject:"+id)
	return s.actionErr
}

func (s *stubKYC) Flag(ctx context.Context, id string) error {
	s.actioned = append(s.actioned, "flag:"+id)
	return s.actionErr
}

func (s *stubKYC) Extract(ctx context.Context, docType, filename string, content io.Reader) (map[string]any, error) {
	return s.extracted, nil
}

func (s *stubKYC) Submit(ctx context.Context, fields map[string]string, files []backend.SubmitFile) error {
	s.submitted = fields
	return nil
}

type stubFraud struct {
	agg    domain.RiskAggregate
	result domain.AnalyzeResult
}

func (s *stubFraud) Aggregate(ctx context.Context) (domain.RiskAggregate, error) {
	return s.agg, nil
}

func (s *stubFraud) Analyze(ctx context.Context, fields map[string]string, filename string, content io.Reader) (domain.AnalyzeResult, error) {
	return s.result, nil
}

// createTestServer builds a server over a seeded snapshot store, a sqlite
// repository in a temp dir, and stub backend clients.
func createTestServer(t *testing.T, kyc *stubKYC, fraud *stubFraud) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := triage.NewEngine()
	if err != nil {
		t.Fatalf("failed to create triage engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	store := poller.NewStore()
	store.Replace(&domain.Snapshot{
		ID: "snap-001",
		Rows: []domain.NormalizedRow{
			{
				ID:                 "KYC-100",
				UserName:           "Asha Rao",
				MaskedAadhaar:      "1234-XXXX-9012",
				MaskedPan:          "ABCDE-XX4F",
				DocType:            "aadhaar",
				Status:             domain.StatusPending,
				RiskLevel:          domain.RiskHigh,
				FraudScore:         85,
				Confidence:         90,
				Reason:             `Duplicate submission detected, note: "urgent"`,
				FormattedTimestamp: "09/12/2025 05:33:21 PM",
			},
			{
				ID:                 "KYC-101",
				UserName:           "Vikram Shah",
				MaskedAadhaar:      "N/A",
				MaskedPan:          "FGHIJ-XX2K",
				DocType:            "pan",
				Status:             domain.StatusApproved,
				RiskLevel:          domain.RiskLow,
				FraudScore:         12,
				Confidence:         60,
				Reason:             "No anomalies detected for this KYC submission",
				FormattedTimestamp: "10/12/2025 09:05:00 AM",
			},
		},
		Aggregate: domain.RiskAggregate{
			RiskBuckets:  domain.RiskBuckets{Low: 1, High: 1},
			VerifiedDocs: domain.VerifiedDocs{Verified: 1, Unverified: 1},
			RiskScore:    48,
		},
		FetchedAt: time.Now(),
	})

	return NewServer(cfg, store, kyc, fraud, repo, nil, nil, engine, "test-v1")
}

func doRequest(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestListCases(t *testing.T) {
	server := createTestServer(t, &stubKYC{}, &stubFraud{})

	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Cases []domain.NormalizedRow `json:"cases"`
		Total int                    `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Total != 2 {
		t.Errorf("expected 2 cases, got %d", resp.Total)
	}
	if resp.Cases[0].ID != "KYC-100" {
		t.Errorf("expected first case KYC-100, got %s", resp.Cases[0].ID)
	}
	if resp.Cases[0].RiskLevel != domain.RiskHigh {
		t.Errorf("expected High risk, got %s", resp.Cases[0].RiskLevel)
	}
}

func TestExportCasesCSV(t *testing.T) {
	server := createTestServer(t, &stubKYC{}, &stubFraud{})

	req := httptest.NewRequest(http.MethodGet, "/api/cases/export", nil)
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv content type, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("expected attachment disposition, got %q", cd)
	}

	lines := strings.Split(strings.TrimRight(rr.Body.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != `"Case ID","Risk Level","Reason","Document Type","Timestamp","Confidence"` {
		t.Errorf("unexpected header line: %s", lines[0])
	}
	// Every field is quoted, and embedded quotes are doubled.
	if !strings.Contains(lines[1], `"note: ""urgent"""`) {
		t.Errorf("expected doubled embedded quotes in row: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], `"KYC-101","Low",`) {
		t.Errorf("expected quoted fields in row: %s", lines[2])
	}
}

func TestDashboard(t *testing.T) {
	server := createTestServer(t, &stubKYC{}, &stubFraud{})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		RiskScore      int    `json:"riskScore"`
		OverallMessage string `json:"overallMessage"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.RiskScore != 48 {
		t.Errorf("expected risk score 48, got %d", resp.RiskScore)
	}
	if resp.OverallMessage != msgOverallMedium {
		t.Errorf("expected medium overall message, got %q", resp.OverallMessage)
	}
}

func TestOverallRiskMessage(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{85, msgOverallHigh},
		{71, msgOverallHigh},
		{70, msgOverallMedium},
		{31, msgOverallMedium},
		{30, msgOverallLow},
		{0, msgOverallLow},
	}

	for _, tt := range tests {
		if got := overallRiskMessage(tt.score); got != tt.want {
			t.Errorf("score %d: expected %q, got %q", tt.score, got, tt.want)
		}
	}
}

func TestReviewAction(t *testing.T) {
	t.Run("Approve", func(t *testing.T) {
		kyc := &stubKYC{}
		server := createTestServer(t, kyc, &stubFraud{})

		req := httptest.NewRequest(http.MethodPost, "/api/cases/KYC-100/approve", nil)
		req.Header.Set(RoleHeader, domain.RoleReviewer)
		rr := doRequest(server, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if len(kyc.actioned) != 1 || kyc.actioned[0] != "approve:KYC-100" {
			t.Errorf("expected approve proxied, got %v", kyc.actioned)
		}

		// Action must land in the local audit log with the caller's role.
		logs, err := server.Handler().repo.ListActionLogs(context.Background(), 10)
		if err != nil {
			t.Fatalf("failed to list action logs: %v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("expected 1 action log, got %d", len(logs))
		}
		if logs[0].Action != "approve" || logs[0].RecordID != "KYC-100" {
			t.Errorf("unexpected log entry: %+v", logs[0])
		}
		if logs[0].Role != domain.RoleReviewer {
			t.Errorf("expected reviewer role, got %s", logs[0].Role)
		}
		if logs[0].Outcome != "ok" {
			t.Errorf("expected ok outcome, got %s", logs[0].Outcome)
		}
	})

	t.Run("BackendFailureLogged", func(t *testing.T) {
		kyc := &stubKYC{actionErr: errors.New("backend unavailable")}
		server := createTestServer(t, kyc, &stubFraud{})

		req := httptest.NewRequest(http.MethodPost, "/api/cases/KYC-100/reject", nil)
		rr := doRequest(server, req)

		if rr.Code != http.StatusBadGateway {
			t.Fatalf("expected status 502, got %d", rr.Code)
		}

		logs, err := server.Handler().repo.ListActionLogs(context.Background(), 10)
		if err != nil {
			t.Fatalf("failed to list action logs: %v", err)
		}
		if len(logs) != 1 || logs[0].Outcome != "failed" {
			t.Fatalf("expected failed action log, got %+v", logs)
		}
	})

	t.Run("UpstreamStatusPreserved", func(t *testing.T) {
		kyc := &stubKYC{actionErr: &backend.HTTPStatusError{
			Op:     "flag",
			Status: http.StatusNotFound,
		}}
		server := createTestServer(t, kyc, &stubFraud{})

		req := httptest.NewRequest(http.MethodPost, "/api/cases/KYC-404/flag", nil)
		rr := doRequest(server, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestAudit(t *testing.T) {
	kyc := &stubKYC{audit: []domain.AuditEvent{
		{ID: "evt-1", Type: "success", Title: "KYC Approved"},
	}}
	server := createTestServer(t, kyc, &stubFraud{})

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Audit   []domain.AuditEvent `json:"audit"`
		Actions []domain.ActionLog  `json:"actions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Audit) != 1 || resp.Audit[0].ID != "evt-1" {
		t.Errorf("unexpected audit events: %+v", resp.Audit)
	}
	if resp.Actions == nil {
		t.Error("expected actions array, got null")
	}
}

func TestExtract(t *testing.T) {
	kyc := &stubKYC{extracted: map[string]any{"aadhaar_number": "123456789012"}}
	server := createTestServer(t, kyc, &stubFraud{})

	t.Run("ValidDocType", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("file", "aadhaar.png")
		part.Write([]byte("fake-image-bytes"))
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/extract/aadhaar", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := doRequest(server, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp map[string]map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["extracted_data"]["aadhaar_number"] != "123456789012" {
			t.Errorf("unexpected extraction payload: %v", resp)
		}
	})

	t.Run("InvalidDocType", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/extract/passport", nil)
		rr := doRequest(server, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("note", "no file attached")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/extract/pan", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := doRequest(server, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestSubmit(t *testing.T) {
	kyc := &stubKYC{}
	server := createTestServer(t, kyc, &stubFraud{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("user_name", "Asha Rao")
	mw.WriteField("aadhaar_number", "123456789012")
	part, _ := mw.CreateFormFile("aadhaar_file", "scan.png")
	part.Write([]byte("fake-image-bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/submit", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if kyc.submitted["user_name"] != "Asha Rao" {
		t.Errorf("expected form fields forwarded, got %v", kyc.submitted)
	}
}

func TestAnalyze(t *testing.T) {
	fraud := &stubFraud{result: domain.AnalyzeResult{
		FraudScore: 82,
		RiskLevel:  "82 (High)",
		Decision:   "manual_review",
		Reasons:    []string{"duplicate_pan"},
	}}
	server := createTestServer(t, &stubKYC{}, fraud)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("pan_number", "ABCDE1234F")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		FraudScore int    `json:"fraud_score"`
		RiskBucket string `json:"riskBucket"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.FraudScore != 82 {
		t.Errorf("expected fraud score 82, got %d", resp.FraudScore)
	}
	// Word wins over the leading number in the label.
	if resp.RiskBucket != string(domain.RiskHigh) {
		t.Errorf("expected High bucket, got %s", resp.RiskBucket)
	}
}

func TestUploads(t *testing.T) {
	kyc := &stubKYC{uploads: []domain.RawRecord{
		{"_id": "UP-1", "user_name": "Asha Rao", "fraud_score": float64(75)},
	}}
	server := createTestServer(t, kyc, &stubFraud{})

	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Uploads []domain.NormalizedRow `json:"uploads"`
		Total   int                    `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("expected 1 upload, got %d", resp.Total)
	}
	if resp.Uploads[0].RiskLevel != domain.RiskHigh {
		t.Errorf("expected High risk for score 75, got %s", resp.Uploads[0].RiskLevel)
	}
}

func TestTriageRuleLifecycle(t *testing.T) {
	server := createTestServer(t, &stubKYC{}, &stubFraud{})

	create := TriageRuleRequest{
		ID:         "rule-high-pending",
		Name:       "High risk pending",
		Expression: `risk_level == "High" && status == "Pending"`,
		Enabled:    true,
	}
	body, _ := json.Marshal(create)
	req := httptest.NewRequest(http.MethodPost, "/api/triage/rules", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := doRequest(server, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	// Matches against the seeded snapshot: KYC-100 is High + Pending.
	req = httptest.NewRequest(http.MethodGet, "/api/triage/rules/rule-high-pending/matches", nil)
	rr = doRequest(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var matchResp struct {
		Count   int                    `json:"count"`
		Matches []domain.NormalizedRow `json:"matches"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &matchResp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if matchResp.Count != 1 || matchResp.Matches[0].ID != "KYC-100" {
		t.Errorf("expected KYC-100 to match, got %+v", matchResp)
	}

	// List shows the persisted rule.
	req = httptest.NewRequest(http.MethodGet, "/api/triage/rules", nil)
	rr = doRequest(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var listResp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rr.Body.Bytes(), &listResp)
	if listResp.Count != 1 {
		t.Errorf("expected 1 rule listed, got %d", listResp.Count)
	}

	// Update flips the rule off; the engine unloads it.
	create.Enabled = false
	body, _ = json.Marshal(create)
	req = httptest.NewRequest(http.MethodPut, "/api/triage/rules/rule-high-pending", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr = doRequest(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if server.Handler().engine.RulesCount() != 0 {
		t.Errorf("expected rule unloaded after disable, got %d loaded", server.Handler().engine.RulesCount())
	}

	// Delete removes it entirely.
	req = httptest.NewRequest(http.MethodDelete, "/api/triage/rules/rule-high-pending", nil)
	rr = doRequest(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/triage/rules/rule-high-pending", nil)
	rr = doRequest(server, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", rr.Code)
	}
}

func TestTriageMatchAll(t *testing.T) {
	server := createTestServer(t, &stubKYC{}, &stubFraud{})

	for _, rule := range []TriageRuleRequest{
		{ID: "rule-high", Name: "High risk", Expression: `risk_level == "High"`, Enabled: true},
		{ID: "rule-low-conf", Name: "Low confidence", Expression: "confidence < 70", Enabled: true},
	} {
		body, _ := json.Marshal(rule)
		req := httptest.NewRequest(http.MethodPost, "/api/triage/rules", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		if rr := doRequest(server, req); rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201 creating %s, got %d: %s", rule.ID, rr.Code, rr.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/triage/matches", nil)
	rr := doRequest(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Matches map[string][]string `json:"matches"`
		Rules   int                 `json:"rules"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Rules != 2 {
		t.Errorf("expected 2 loaded rules, got %d", resp.Rules)
	}
	// Seeded snapshot: KYC-100 is High/conf 90, KYC-101 is Low/conf 60.
	if got := resp.Matches["rule-high"]; len(got) != 1 || got[0] != "KYC-100" {
		t.Errorf("rule-high matches = %v, want [KYC-100]", got)
	}
	if got := resp.Matches["rule-low-conf"]; len(got) != 1 || got[0] != "KYC-101" {
		t.Errorf("rule-low-conf matches = %v, want [KYC-101]", got)
	}
}

func TestCreateTriageRuleRejectsInvalidExpression(t *testing.T) {
	server := createTestServer(t, &stubKYC{}, &stubFraud{})

	body, _ := json.Marshal(TriageRuleRequest{
		Name:       "Broken",
		Expression: "fraud_score +",
		Enabled:    true,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/triage/rules", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := doRequest(server, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t, &stubKYC{}, &stubFraud{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := doRequest(server, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy status, got %s", resp["status"])
	}
	if resp["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", resp["version"])
	}
}
