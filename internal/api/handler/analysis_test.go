package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/painscope/painscope/internal/analysis"
	"github.com/painscope/painscope/internal/llm"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

type mockAnalysis struct {
	startErr  error
	cancelOK  bool
	cancelErr error
	snapshot  *analysis.StatusSnapshot
	statusErr error
	merged    *models.Cluster
	mergeErr  error

	startedMode models.AnalysisMode
	mergeSource uuid.UUID
	mergeTarget uuid.UUID
}

func (m *mockAnalysis) Start(_ context.Context, flowID uuid.UUID, mode models.AnalysisMode) (*models.AnalysisRun, error) {
	m.startedMode = mode
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &models.AnalysisRun{
		ID: uuid.New(), FlowID: flowID, Status: models.AnalysisRunning,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (m *mockAnalysis) Cancel(context.Context, uuid.UUID) (bool, error) {
	return m.cancelOK, m.cancelErr
}

func (m *mockAnalysis) Status(context.Context, uuid.UUID) (*analysis.StatusSnapshot, error) {
	return m.snapshot, m.statusErr
}

func (m *mockAnalysis) MergeClusters(_ context.Context, _, sourceID, targetID uuid.UUID) (*models.Cluster, error) {
	m.mergeSource, m.mergeTarget = sourceID, targetID
	return m.merged, m.mergeErr
}

func flowReq(t *testing.T, method, suffix string, body any) *http.Request {
	t.Helper()
	id := uuid.NewString()
	return jsonReq(t, method, "/api/v1/flows/"+id+suffix, body,
		map[string]string{"flowID": id})
}

// --- start ---

func TestStartAnalysis_DefaultsToFullMode(t *testing.T) {
	m := &mockAnalysis{}
	h := NewStartAnalysis(m)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/analyze", map[string]any{}))

	data := decodeData(t, rec, http.StatusAccepted)
	if m.startedMode != models.ModeFull {
		t.Errorf("expected full mode, got %s", m.startedMode)
	}
	if data["status"] != "running" {
		t.Errorf("unexpected run status: %v", data["status"])
	}
}

func TestStartAnalysis_RefineMode(t *testing.T) {
	m := &mockAnalysis{}
	h := NewStartAnalysis(m)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/analyze", map[string]any{"mode": "refine"}))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if m.startedMode != models.ModeRefine {
		t.Errorf("expected refine mode, got %s", m.startedMode)
	}
}

func TestStartAnalysis_InvalidMode(t *testing.T) {
	h := NewStartAnalysis(&mockAnalysis{})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/analyze", map[string]any{"mode": "partial"}))
	expectErr(t, rec, http.StatusBadRequest, "INVALID_REQUEST")
}

func TestStartAnalysis_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"flow missing", store.ErrNotFound, http.StatusNotFound, "FLOW_NOT_FOUND"},
		{"already running", analysis.ErrAlreadyRunning, http.StatusConflict, "ANALYSIS_RUNNING"},
		{"no items", analysis.ErrNoItems, http.StatusBadRequest, "NO_ITEMS"},
		{"llm unreachable", llm.ErrUnreachable, http.StatusServiceUnavailable, "LLM_UNAVAILABLE"},
		{"llm timeout", llm.ErrTimeout, http.StatusServiceUnavailable, "LLM_UNAVAILABLE"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStartAnalysis(&mockAnalysis{startErr: tt.err})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/analyze", map[string]any{}))
			expectErr(t, rec, tt.wantStatus, tt.wantCode)
		})
	}
}

// --- cancel ---

func TestCancelAnalysis(t *testing.T) {
	h := NewCancelAnalysis(&mockAnalysis{cancelOK: true})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/analyze/cancel", nil))

	data := decodeData(t, rec, http.StatusOK)
	if data["canceled"] != true {
		t.Errorf("unexpected body: %v", data)
	}
}

func TestCancelAnalysis_NotRunning(t *testing.T) {
	h := NewCancelAnalysis(&mockAnalysis{cancelErr: analysis.ErrNotRunning})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/analyze/cancel", nil))
	expectErr(t, rec, http.StatusConflict, "NO_ACTIVE_ANALYSIS")
}

// --- status ---

func TestAnalysisStatus_Shape(t *testing.T) {
	flowID := uuid.New()
	analyzedAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	h := NewAnalysisStatus(&mockAnalysis{snapshot: &analysis.StatusSnapshot{
		FlowID: flowID,
		Status: models.AnalysisRunning,
		Progress: &models.AnalysisProgress{
			Batch: 1, TotalBatches: 3, ItemsProcessed: 50, TotalItems: 120,
		},
		IngestStatus:     models.IngestIdle,
		LastAnalyzedAt:   &analyzedAt,
		NewDataAvailable: true,
		ItemsCount:       120,
	}})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodGet, "/analysis-status", nil))

	data := decodeData(t, rec, http.StatusOK)
	if data["status"] != "running" {
		t.Errorf("unexpected status: %v", data["status"])
	}
	progress := data["progress"].(map[string]any)
	if int(progress["totalBatches"].(float64)) != 3 {
		t.Errorf("unexpected progress: %v", progress)
	}
	if data["newDataAvailable"] != true {
		t.Errorf("unexpected newDataAvailable: %v", data["newDataAvailable"])
	}
	if int(data["itemsCount"].(float64)) != 120 {
		t.Errorf("unexpected itemsCount: %v", data["itemsCount"])
	}
}

func TestAnalysisStatus_FlowNotFound(t *testing.T) {
	h := NewAnalysisStatus(&mockAnalysis{statusErr: store.ErrNotFound})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodGet, "/analysis-status", nil))
	expectErr(t, rec, http.StatusNotFound, "FLOW_NOT_FOUND")
}

// --- merge ---

func TestMergeClusters(t *testing.T) {
	source, target := uuid.New(), uuid.New()
	m := &mockAnalysis{merged: &models.Cluster{ID: target, Label: "Slow Export", Tags: []string{"export"}}}
	h := NewMergeClusters(m)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/clusters/merge", map[string]any{
		"sourceClusterId": source.String(),
		"targetClusterId": target.String(),
	}))

	data := decodeData(t, rec, http.StatusOK)
	if data["label"] != "Slow Export" {
		t.Errorf("unexpected merged cluster: %v", data)
	}
	if m.mergeSource != source || m.mergeTarget != target {
		t.Errorf("ids not passed through: %s -> %s", m.mergeSource, m.mergeTarget)
	}
}

func TestMergeClusters_BadIDs(t *testing.T) {
	h := NewMergeClusters(&mockAnalysis{})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/clusters/merge", map[string]any{
		"sourceClusterId": "nope",
		"targetClusterId": uuid.NewString(),
	}))
	expectErr(t, rec, http.StatusBadRequest, "INVALID_REQUEST")
}

func TestMergeClusters_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"self merge", analysis.ErrMergeSelf, http.StatusBadRequest, "MERGE_SELF"},
		{"cluster missing", store.ErrNotFound, http.StatusNotFound, "CLUSTER_NOT_FOUND"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMergeClusters(&mockAnalysis{mergeErr: tt.err})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, flowReq(t, http.MethodPost, "/clusters/merge", map[string]any{
				"sourceClusterId": uuid.NewString(),
				"targetClusterId": uuid.NewString(),
			}))
			expectErr(t, rec, tt.wantStatus, tt.wantCode)
		})
	}
}
