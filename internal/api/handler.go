package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/securekyc/kestrel/internal/backend"
	"github.com/securekyc/kestrel/internal/derive"
	"github.com/securekyc/kestrel/internal/domain"
	"github.com/securekyc/kestrel/internal/poller"
	"github.com/securekyc/kestrel/internal/repository"
	"github.com/securekyc/kestrel/internal/triage"
)

// KYCService is the slice of the KYC client the handlers consume.
type KYCService interface {
	Records(ctx context.Context) ([]domain.RawRecord, error)
	MyUploads(ctx context.Context) ([]domain.RawRecord, error)
	AuditTrail(ctx context.Context) ([]domain.AuditEvent, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	Flag(ctx context.Context, id string) error
	Extract(ctx context.Context, docType, filename string, content io.Reader) (map[string]any, error)
	Submit(ctx context.Context, fields map[string]string, files []backend.SubmitFile) error
}

// FraudService is the slice of the fraud client the handlers consume.
type FraudService interface {
	Aggregate(ctx context.Context) (domain.RiskAggregate, error)
	Analyze(ctx context.Context, fields map[string]string, filename string, content io.Reader) (domain.AnalyzeResult, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	store   *poller.Store
	kyc     KYCService
	fraud   FraudService
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *triage.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(store *poller.Store, kyc KYCService, fraud FraudService, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *triage.Engine, version string) *Handler {
	return &Handler{
		store:   store,
		kyc:     kyc,
		fraud:   fraud,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		version: version,
	}
}

// Dashboard overall-risk messages, keyed by the bucket of the mean score.
const (
	msgOverallHigh   = "High Risk – Immediate manual review required"
	msgOverallMedium = "Medium Risk – Manual review recommended"
	msgOverallLow    = "Low Risk – Auto-approval possible"
)

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListCases returns the normalized case rows from the latest snapshot.
// Reasons are display-truncated here; the CSV export keeps them whole.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"cases": []domain.NormalizedRow{},
			"total": 0,
		})
		return
	}

	cases := make([]domain.NormalizedRow, len(snap.Rows))
	copy(cases, snap.Rows)
	for i := range cases {
		cases[i].Reason = derive.TruncateReason(cases[i].Reason)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cases":             cases,
		"total":             len(cases),
		"sampleData":        snap.SampleData,
		"aggregateFallback": snap.AggregateFallback,
		"fetchedAt":         snap.FetchedAt,
	})
}

// ExportCases streams the case list as CSV with untruncated reasons.
func (h *Handler) ExportCases(w http.ResponseWriter, r *http.Request) {
	var rows []domain.NormalizedRow
	if snap := h.store.Snapshot(); snap != nil {
		rows = snap.Rows
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="kyc_cases.csv"`)

	if err := writeCasesCSV(w, rows); err != nil {
		slog.Error("csv export failed", "error", err)
	}
}

// Dashboard returns the risk aggregate plus the overall-risk message.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	if snap == nil {
		// Before the first poll completes, fall back to the cached aggregate.
		if h.cache != nil {
			if agg, err := h.cache.GetAggregate(r.Context()); err == nil && agg != nil {
				writeJSON(w, http.StatusOK, dashboardPayload(*agg, false, false, time.Time{}))
				return
			}
		}
		writeJSON(w, http.StatusOK, dashboardPayload(domain.RiskAggregate{}, false, false, time.Time{}))
		return
	}

	writeJSON(w, http.StatusOK, dashboardPayload(snap.Aggregate, snap.AggregateFallback, snap.SampleData, snap.FetchedAt))
}

func dashboardPayload(agg domain.RiskAggregate, fallback, sampleData bool, fetchedAt time.Time) map[string]any {
	payload := map[string]any{
		"riskBuckets":       agg.RiskBuckets,
		"verifiedDocs":      agg.VerifiedDocs,
		"riskScore":         agg.RiskScore,
		"overallMessage":    overallRiskMessage(agg.RiskScore),
		"aggregateFallback": fallback,
		"sampleData":        sampleData,
	}
	if !fetchedAt.IsZero() {
		payload["fetchedAt"] = fetchedAt
	}
	return payload
}

func overallRiskMessage(score int) string {
	switch derive.ClassifyScore(float64(score)) {
	case domain.RiskHigh:
		return msgOverallHigh
	case domain.RiskMedium:
		return msgOverallMedium
	default:
		return msgOverallLow
	}
}

// Audit returns the backend audit trail together with the local console
// action log.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.kyc.AuditTrail(ctx)
	if err != nil {
		h.writeBackendError(w, "audit trail fetch failed", err)
		return
	}

	var actions []*domain.ActionLog
	if h.repo != nil {
		if actions, err = h.repo.ListActionLogs(ctx, 100); err != nil {
			slog.Warn("failed to list action logs", "error", err)
			actions = nil
		}
	}
	if actions == nil {
		actions = []*domain.ActionLog{}
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit":   events,
		"actions": actions,
	})
}

// ReviewAction proxies approve/reject/flag to the KYC service and records
// the action in the local audit log.
func (h *Handler) ReviewAction(action string, call func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "record id is required",
			})
			return
		}

		session := GetSession(ctx)
		err := call(ctx, id)
		h.logAction(ctx, id, action, session, err)

		if err != nil {
			h.writeBackendError(w, action+" failed", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"action": action,
			"id":     id,
		})
	}
}

// logAction writes the local action log entry and publishes the review
// event. Both are best effort; the proxied backend result is authoritative.
func (h *Handler) logAction(ctx context.Context, recordID, action string, session domain.Session, actionErr error) {
	outcome := "ok"
	detail := ""
	if actionErr != nil {
		outcome = "failed"
		detail = actionErr.Error()
	}

	entry := &domain.ActionLog{
		ID:        uuid.New().String(),
		RecordID:  recordID,
		Action:    action,
		Role:      session.Role,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}

	if h.repo != nil {
		if err := h.repo.SaveActionLog(ctx, entry); err != nil {
			slog.Warn("failed to save action log", "record_id", recordID, "error", err)
		}
	}

	if h.bus != nil {
		payload, err := json.Marshal(entry)
		if err == nil {
			if err := h.bus.Publish(ctx, domain.TopicReviewAction, payload); err != nil {
				slog.Warn("failed to publish review action", "error", err)
			}
		}
	}
}

// Extract proxies a single-document OCR extraction upload.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "doctype")
	switch docType {
	case "aadhaar", "pan", "dl":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "doctype must be one of aadhaar, pan, dl",
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file field is required",
		})
		return
	}
	defer file.Close()

	fields, err := h.kyc.Extract(r.Context(), docType, header.Filename, file)
	if err != nil {
		h.writeBackendError(w, "extraction failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"extracted_data": fields,
	})
}

// Submit proxies a full KYC submission with personal fields and optional
// document files.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart form is required",
		})
		return
	}

	fields := make(map[string]string)
	for key, vals := range r.MultipartForm.Value {
		if len(vals) > 0 {
			fields[key] = vals[0]
		}
	}

	var files []backend.SubmitFile
	var opened []io.Closer
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": "failed to read uploaded file " + header.Filename,
				})
				return
			}
			opened = append(opened, f)
			files = append(files, backend.SubmitFile{
				Field:    field,
				Filename: header.Filename,
				Content:  f,
			})
		}
	}

	if err := h.kyc.Submit(r.Context(), fields, files); err != nil {
		h.writeBackendError(w, "submission failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "submitted",
	})
}

// Analyze proxies a document to the fraud pipeline and classifies the
// returned risk label.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart form is required",
		})
		return
	}

	fields := make(map[string]string)
	for key, vals := range r.MultipartForm.Value {
		if len(vals) > 0 {
			fields[key] = vals[0]
		}
	}

	var content io.Reader
	filename := ""
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		content = file
		filename = header.Filename
	}

	result, err := h.fraud.Analyze(r.Context(), fields, filename, content)
	if err != nil {
		h.writeBackendError(w, "analysis failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fraud_score": result.FraudScore,
		"risk_level":  result.RiskLevel,
		"riskBucket":  derive.ClassifyLabel(result.RiskLevel),
		"decision":    result.Decision,
		"reasons":     result.Reasons,
	})
}

// Uploads returns the caller's own submissions as normalized rows.
func (h *Handler) Uploads(w http.ResponseWriter, r *http.Request) {
	records, err := h.kyc.MyUploads(r.Context())
	if err != nil {
		h.writeBackendError(w, "uploads fetch failed", err)
		return
	}

	rows := derive.NormalizeAll(records)
	for i := range rows {
		rows[i].Reason = derive.TruncateReason(rows[i].Reason)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uploads": rows,
		"total":   len(rows),
	})
}

// writeBackendError maps the upstream error taxonomy onto proxy statuses.
func (h *Handler) writeBackendError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusBadGateway

	var timeoutErr *backend.TimeoutError
	var statusErr *backend.HTTPStatusError
	switch {
	case errors.As(err, &timeoutErr):
		status = http.StatusGatewayTimeout
	case errors.As(err, &statusErr):
		status = statusErr.Status
	}

	slog.Error(msg, "error", err)
	writeJSON(w, status, map[string]string{
		"error": msg + ": " + err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ============================================================================
// TRIAGE RULE HANDLERS
// ============================================================================

// ListTriageRules returns the persisted triage rules.
func (h *Handler) ListTriageRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		rules := h.engine.LoadedRules()
		writeJSON(w, http.StatusOK, map[string]any{
			"rules": rules,
			"count": len(rules),
		})
		return
	}

	rules, err := h.repo.ListTriageRules(r.Context())
	if err != nil {
		slog.Error("failed to list triage rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list triage rules",
		})
		return
	}
	if rules == nil {
		rules = []*domain.TriageRule{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// TriageRuleRequest is the request body for creating or updating a rule.
type TriageRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CreateTriageRule validates, persists, and hot-loads a new rule.
func (h *Handler) CreateTriageRule(w http.ResponseWriter, r *http.Request) {
	var req TriageRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	h.saveTriageRule(w, r, &req, http.StatusCreated)
}

// UpdateTriageRule replaces a rule in place.
func (h *Handler) UpdateTriageRule(w http.ResponseWriter, r *http.Request) {
	var req TriageRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	req.ID = chi.URLParam(r, "id")
	h.saveTriageRule(w, r, &req, http.StatusOK)
}

func (h *Handler) saveTriageRule(w http.ResponseWriter, r *http.Request, req *TriageRuleRequest, okStatus int) {
	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	rule := &domain.TriageRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveTriageRule(r.Context(), rule); err != nil {
			slog.Error("failed to save triage rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save triage rule",
			})
			return
		}
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			// Validation passed, so this should not happen.
			slog.Error("failed to load triage rule", "id", rule.ID, "error", err)
		}
	} else {
		h.engine.UnloadRule(rule.ID)
	}

	slog.Info("triage rule saved", "id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	writeJSON(w, okStatus, rule)
}

// GetTriageRule retrieves a rule by ID.
func (h *Handler) GetTriageRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.repo != nil {
		rule, err := h.repo.GetTriageRule(r.Context(), ruleID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "triage rule not found",
			})
			return
		}
		writeJSON(w, http.StatusOK, rule)
		return
	}

	for _, rule := range h.engine.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "triage rule not found",
	})
}

// DeleteTriageRule removes a rule from the store and the engine.
func (h *Handler) DeleteTriageRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.repo != nil {
		if err := h.repo.DeleteTriageRule(r.Context(), ruleID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "triage rule not found",
				})
				return
			}
			slog.Error("failed to delete triage rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to delete triage rule",
			})
			return
		}
	}

	h.engine.UnloadRule(ruleID)

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     ruleID,
	})
}

// ReloadTriageRules reloads all enabled rules from the database into the
// engine without a restart.
func (h *Handler) ReloadTriageRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rules, err := h.repo.ListTriageRules(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list triage rules",
		})
		return
	}

	if err := h.engine.ReloadRules(rules); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload triage rules: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"count":  h.engine.RulesCount(),
	})
}

// TriageMatchAll evaluates every loaded rule against the current case rows
// and returns rule ID → matched case IDs.
func (h *Handler) TriageMatchAll(w http.ResponseWriter, r *http.Request) {
	matches := h.engine.MatchAll(h.store.Rows())
	if matches == nil {
		matches = map[string][]string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
		"rules":   h.engine.RulesCount(),
	})
}

// TriageMatches evaluates one rule against the current case rows.
func (h *Handler) TriageMatches(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	matched, err := h.engine.Match(ruleID, h.store.Rows())
	if err != nil {
		// Rule may be persisted but not loaded yet; try loading it.
		if h.repo != nil {
			rule, repoErr := h.repo.GetTriageRule(r.Context(), ruleID)
			if repoErr == nil && rule.Enabled {
				if loadErr := h.engine.LoadRule(rule); loadErr == nil {
					matched, err = h.engine.Match(ruleID, h.store.Rows())
				}
			}
		}
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "triage rule not loaded",
			})
			return
		}
	}
	if matched == nil {
		matched = []domain.NormalizedRow{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ruleId":  ruleID,
		"matches": matched,
		"count":   len(matched),
	})
}
