//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel console
// service.
//
// These tests verify the COMPLETE console pipeline:
//
//	Backend poll → Normalization → Case API / Dashboard / Triage / Export
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The tests expect a running Kestrel instance (KESTREL_TEST_URL, default
// http://localhost:8090) with its backends either reachable or degraded —
// the case list is served from the sample dataset when the KYC backend is
// down, so the read-only tests pass in both modes.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
	Role    string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return TestConfig{
		BaseURL: baseURL,
		Role:    "reviewer",
	}
}

// ============================================================================
// API Response Types (matching Kestrel's API contract)
// ============================================================================

// CaseRow is one normalized row of GET /api/cases.
type CaseRow struct {
	ID                 string `json:"id"`
	UserName           string `json:"userName"`
	MaskedAadhaar      string `json:"maskedAadhaar"`
	MaskedPan          string `json:"maskedPan"`
	DocType            string `json:"docType"`
	Status             string `json:"status"`
	RiskLevel          string `json:"riskLevel"`
	FraudScore         int    `json:"fraudScore"`
	Confidence         int    `json:"confidence"`
	Reason             string `json:"reason"`
	FormattedTimestamp string `json:"formattedTimestamp"`
}

// CasesResponse is what GET /api/cases returns.
type CasesResponse struct {
	Cases      []CaseRow `json:"cases"`
	Total      int       `json:"total"`
	SampleData bool      `json:"sampleData"`
}

// DashboardResponse is what GET /api/dashboard returns.
type DashboardResponse struct {
	RiskBuckets struct {
		Low    int `json:"Low"`
		Medium int `json:"Medium"`
		High   int `json:"High"`
	} `json:"riskBuckets"`
	VerifiedDocs struct {
		Verified   int `json:"verified"`
		Unverified int `json:"unverified"`
	} `json:"verifiedDocs"`
	RiskScore      int    `json:"riskScore"`
	OverallMessage string `json:"overallMessage"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doGet(t *testing.T, config TestConfig, path string, out any) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, config.BaseURL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("X-Console-Role", config.Role)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s returned %d: %s", path, resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("failed to parse %s response: %v", path, err)
		}
	}
	return resp
}

func doJSON(t *testing.T, config TestConfig, method, path string, payload, out any) int {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Console-Role", config.Role)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		json.Unmarshal(raw, out)
	}
	return resp.StatusCode
}

func waitForReady(t *testing.T, config TestConfig) {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(config.BaseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("kestrel at %s did not become healthy", config.BaseURL)
}

// ============================================================================
// Tests
// ============================================================================

func TestCasesEndToEnd(t *testing.T) {
	config := getTestConfig()
	waitForReady(t, config)

	var cases CasesResponse
	doGet(t, config, "/api/cases", &cases)

	if cases.Total == 0 {
		t.Fatal("expected at least one case (the sample dataset guarantees rows even when backends are down)")
	}

	for _, row := range cases.Cases {
		switch row.RiskLevel {
		case "Low", "Medium", "High":
		default:
			t.Errorf("case %s: invalid risk level %q", row.ID, row.RiskLevel)
		}
		if row.FraudScore < 0 || row.FraudScore > 100 {
			t.Errorf("case %s: fraud score %d out of range", row.ID, row.FraudScore)
		}
		if row.Confidence < 0 || row.Confidence > 100 {
			t.Errorf("case %s: confidence %d out of range", row.ID, row.Confidence)
		}
		if row.Reason == "" {
			t.Errorf("case %s: empty reason (builder guarantees a default)", row.ID)
		}
	}
}

func TestDashboardConsistency(t *testing.T) {
	config := getTestConfig()
	waitForReady(t, config)

	var cases CasesResponse
	doGet(t, config, "/api/cases", &cases)
	var dash DashboardResponse
	doGet(t, config, "/api/dashboard", &dash)

	if dash.OverallMessage == "" {
		t.Error("expected a non-empty overall risk message")
	}

	bucketTotal := dash.RiskBuckets.Low + dash.RiskBuckets.Medium + dash.RiskBuckets.High
	docTotal := dash.VerifiedDocs.Verified + dash.VerifiedDocs.Unverified
	if bucketTotal != docTotal {
		t.Errorf("bucket total %d does not match verified/unverified total %d", bucketTotal, docTotal)
	}
}

func TestCSVExport(t *testing.T) {
	config := getTestConfig()
	waitForReady(t, config)

	req, _ := http.NewRequest(http.MethodGet, config.BaseURL+"/api/cases/export", nil)
	req.Header.Set("X-Console-Role", config.Role)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv content type, got %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if lines[0] != `"Case ID","Risk Level","Reason","Document Type","Timestamp","Confidence"` {
		t.Errorf("unexpected CSV header: %s", lines[0])
	}

	var cases CasesResponse
	doGet(t, config, "/api/cases", &cases)
	if len(lines)-1 != cases.Total {
		t.Errorf("CSV has %d data rows but case list has %d", len(lines)-1, cases.Total)
	}
}

func TestTriageRuleLifecycle(t *testing.T) {
	config := getTestConfig()
	waitForReady(t, config)

	ruleID := fmt.Sprintf("it-rule-%d", time.Now().UnixNano())
	rule := map[string]any{
		"id":         ruleID,
		"name":       "Integration high-risk filter",
		"expression": `risk_level == "High"`,
		"enabled":    true,
	}

	if status := doJSON(t, config, http.MethodPost, "/api/triage/rules", rule, nil); status != http.StatusCreated {
		t.Fatalf("expected 201 creating rule, got %d", status)
	}
	defer doJSON(t, config, http.MethodDelete, "/api/triage/rules/"+ruleID, nil, nil)

	var matches struct {
		Count   int       `json:"count"`
		Matches []CaseRow `json:"matches"`
	}
	doGet(t, config, "/api/triage/rules/"+ruleID+"/matches", &matches)
	for _, row := range matches.Matches {
		if row.RiskLevel != "High" {
			t.Errorf("rule matched non-High row %s (%s)", row.ID, row.RiskLevel)
		}
	}

	if status := doJSON(t, config, http.MethodDelete, "/api/triage/rules/"+ruleID, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 deleting rule, got %d", status)
	}
	if status := doJSON(t, config, http.MethodGet, "/api/triage/rules/"+ruleID, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func TestAuditTrail(t *testing.T) {
	config := getTestConfig()
	waitForReady(t, config)

	var audit struct {
		Audit   []map[string]any `json:"audit"`
		Actions []map[string]any `json:"actions"`
	}

	// The KYC backend may be down; 502 is the documented degraded response.
	status := doJSON(t, config, http.MethodGet, "/api/audit", nil, &audit)
	switch status {
	case http.StatusOK:
		if audit.Actions == nil {
			t.Error("expected actions array in audit response")
		}
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		t.Logf("audit backend unavailable (status %d), skipping content checks", status)
	default:
		t.Errorf("unexpected audit status %d", status)
	}
}
