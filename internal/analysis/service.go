// Package analysis owns the batch analysis pipeline: partitioning a flow's
// items, driving sequential LLM extraction calls, merging cluster output, and
// finalizing run state. Batches are never parallelized within a run; that
// keeps LLM load bounded and makes progress and cancellation semantics simple.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/painscope/painscope/internal/cache"
	"github.com/painscope/painscope/internal/llm"
	"github.com/painscope/painscope/internal/store"
	"github.com/painscope/painscope/pkg/models"
)

// DefaultBatchSize is the number of items sent to the LLM per request.
const DefaultBatchSize = 50

// statusCacheTTL bounds how long a best-effort status copy lives in Redis.
const statusCacheTTL = 30 * time.Minute

// Service orchestrates analysis runs for flows.
type Service struct {
	store     store.Store
	llm       llm.Client
	control   Controller
	cache     cache.Cache
	batchSize int
}

// NewService creates a new analysis Service. batchSize <= 0 falls back to
// DefaultBatchSize.
func NewService(st store.Store, client llm.Client, ctrl Controller, ca cache.Cache, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		store:     st,
		llm:       client,
		control:   ctrl,
		cache:     ca,
		batchSize: batchSize,
	}
}

// Start validates preconditions synchronously, records the run, and launches
// the batch loop in the background. The returned AnalysisRun is the record
// callers poll through Status.
//
// The already-running check is read-then-write: two near-simultaneous starts
// could both pass it. Accepted under the single-UI-per-flow assumption.
func (s *Service) Start(ctx context.Context, flowID uuid.UUID, mode models.AnalysisMode) (*models.AnalysisRun, error) {
	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if !flow.AnalysisStatus.CanStart() {
		return nil, ErrAlreadyRunning
	}

	items, err := s.store.ListSourceItems(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	if err := s.llm.Health(ctx); err != nil {
		return nil, err
	}

	var existingContext []string
	if mode == models.ModeRefine {
		clusters, err := s.store.ListClusters(ctx, flowID)
		if err != nil {
			return nil, fmt.Errorf("loading existing clusters: %w", err)
		}
		for _, c := range clusters {
			label := c.Label
			if c.Summary != nil && *c.Summary != "" {
				label = fmt.Sprintf("%s: %s", c.Label, *c.Summary)
			}
			existingContext = append(existingContext, label)
		}
	}

	batches := partition(items, s.batchSize)
	if len(batches) == 0 {
		return nil, ErrNoBatches
	}

	now := time.Now().UTC()
	run := &models.AnalysisRun{
		ID:        uuid.New(),
		FlowID:    flowID,
		Status:    models.AnalysisRunning,
		StartedAt: now,
	}
	if err := s.store.CreateAnalysisRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating analysis run: %w", err)
	}

	s.control.MarkRunning(flowID)

	base := &models.AnalysisProgress{
		Batch:          0,
		TotalBatches:   len(batches),
		ItemsProcessed: 0,
		TotalItems:     len(items),
	}
	if err := s.store.UpdateFlowAnalysis(ctx, flowID, models.AnalysisRunning,
		store.WithAnalysisProgress(base), store.WithoutAnalysisError()); err != nil {
		s.control.Clear(flowID)
		return nil, fmt.Errorf("marking flow running: %w", err)
	}
	s.cacheStatus(ctx, flowID, models.AnalysisRunning)

	go s.run(flowID, run.ID, mode, batches, existingContext, len(items), now)

	return run, nil
}

// run executes the batch loop. It always finalizes the run and clears the
// controller entry, including on panic.
func (s *Service) run(flowID, runID uuid.UUID, mode models.AnalysisMode,
	batches [][]models.ExtractionItem, existingContext []string, totalItems int, startedAt time.Time) {

	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in analysis run", "error", r, "flow_id", flowID, "run_id", runID)
			s.finalize(ctx, flowID, runID, models.AnalysisFailed, startedAt, finalizeParams{
				errorMessage: fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	acc := newAccumulator()
	itemsProcessed := 0

	for batchIndex, batch := range batches {
		// Cancellation is only observed here, between batches. A request
		// that lands while a batch is in flight takes effect afterwards.
		if s.control.IsCancelRequested(flowID) {
			slog.Info("analysis canceled", "flow_id", flowID,
				"batches_processed", batchIndex, "items_processed", itemsProcessed)
			s.finalize(ctx, flowID, runID, models.AnalysisCanceled, startedAt, finalizeParams{
				itemsAnalyzed:    &itemsProcessed,
				batchesProcessed: &batchIndex,
			})
			return
		}

		slog.Info("processing batch", "flow_id", flowID,
			"batch", batchIndex+1, "total_batches", len(batches), "items", len(batch))

		extraction, err := s.llm.ExtractClusters(ctx, batch, existingContext)
		switch {
		case err == nil:
			acc.Merge(extraction.Clusters)
		case errors.Is(err, llm.ErrUnreachable) || errors.Is(err, llm.ErrTimeout):
			// Connectivity failures are systemic; no later batch can succeed.
			slog.Error("llm unreachable mid-run", "flow_id", flowID, "batch", batchIndex+1, "error", err)
			s.finalize(ctx, flowID, runID, models.AnalysisFailed, startedAt, finalizeParams{
				errorMessage: err.Error(),
			})
			return
		case batchIndex == 0 && acc.Len() == 0:
			slog.Error("first batch failed with nothing accumulated", "flow_id", flowID, "error", err)
			s.finalize(ctx, flowID, runID, models.AnalysisFailed, startedAt, finalizeParams{
				errorMessage: err.Error(),
			})
			return
		default:
			// A single bad batch after the pipeline has produced something
			// costs only that batch's contribution.
			slog.Error("batch failed, skipping", "flow_id", flowID, "batch", batchIndex+1, "error", err)
		}

		itemsProcessed += len(batch)
		s.persistProgress(ctx, flowID, runID, &models.AnalysisProgress{
			Batch:          batchIndex + 1,
			TotalBatches:   len(batches),
			ItemsProcessed: itemsProcessed,
			TotalItems:     totalItems,
		})
	}

	totalBatches := len(batches)
	if acc.Len() == 0 {
		s.finalize(ctx, flowID, runID, models.AnalysisFailed, startedAt, finalizeParams{
			errorMessage:     errNoClustersMsg,
			itemsAnalyzed:    &itemsProcessed,
			batchesProcessed: &totalBatches,
		})
		return
	}

	err := s.store.InTx(ctx, func(tx store.Store) error {
		return reconcile(ctx, tx, flowID, mode, acc.Clusters())
	})
	if err != nil {
		slog.Error("persisting clusters failed", "flow_id", flowID, "error", err)
		s.finalize(ctx, flowID, runID, models.AnalysisFailed, startedAt, finalizeParams{
			errorMessage:     fmt.Sprintf("persisting clusters: %v", err),
			itemsAnalyzed:    &itemsProcessed,
			batchesProcessed: &totalBatches,
		})
		return
	}

	slog.Info("analysis succeeded", "flow_id", flowID,
		"clusters", acc.Len(), "items", totalItems, "batches", totalBatches)
	s.finalize(ctx, flowID, runID, models.AnalysisSucceeded, startedAt, finalizeParams{
		itemsAnalyzed:    &totalItems,
		batchesProcessed: &totalBatches,
		setLastAnalyzed:  true,
	})
}

type finalizeParams struct {
	errorMessage     string
	itemsAnalyzed    *int
	batchesProcessed *int
	setLastAnalyzed  bool
}

// finalize writes terminal state to the flow and run, nulls the progress
// snapshot, and clears the controller entry. Persistence failures here are
// logged, not propagated; there is nothing further to unwind.
func (s *Service) finalize(ctx context.Context, flowID, runID uuid.UUID,
	status models.AnalysisStatus, startedAt time.Time, params finalizeParams) {

	now := time.Now().UTC()
	durationMs := now.Sub(startedAt).Milliseconds()

	flowOpts := []store.FlowAnalysisOption{
		store.WithAnalysisProgress(nil),
		store.WithAnalysisDuration(durationMs),
	}
	if params.errorMessage != "" {
		flowOpts = append(flowOpts, store.WithAnalysisError(params.errorMessage))
	} else {
		flowOpts = append(flowOpts, store.WithoutAnalysisError())
	}
	if params.setLastAnalyzed {
		flowOpts = append(flowOpts, store.WithLastAnalyzedAt(now))
	}
	if err := s.store.UpdateFlowAnalysis(ctx, flowID, status, flowOpts...); err != nil {
		slog.Error("finalizing flow failed", "flow_id", flowID, "status", status, "error", err)
	}

	runOpts := []store.RunUpdateOption{
		store.WithRunStatus(status),
		store.WithRunCompleted(now, durationMs),
	}
	if params.itemsAnalyzed != nil && params.batchesProcessed != nil {
		runOpts = append(runOpts, store.WithRunCounts(*params.itemsAnalyzed, *params.batchesProcessed))
	}
	if params.errorMessage != "" {
		runOpts = append(runOpts, store.WithRunError(params.errorMessage))
	}
	if err := s.store.UpdateAnalysisRun(ctx, runID, runOpts...); err != nil {
		slog.Error("finalizing run failed", "run_id", runID, "status", status, "error", err)
	}

	s.cacheStatus(ctx, flowID, status)
	s.control.Clear(flowID)
}

// persistProgress updates the snapshot on both the flow and the run record.
// Best-effort: a failed progress write never aborts the run.
func (s *Service) persistProgress(ctx context.Context, flowID, runID uuid.UUID, p *models.AnalysisProgress) {
	if err := s.store.UpdateFlowAnalysisProgress(ctx, flowID, p); err != nil {
		slog.Error("updating flow progress failed", "flow_id", flowID, "error", err)
	}
	if err := s.store.UpdateAnalysisRun(ctx, runID,
		store.WithRunCounts(p.ItemsProcessed, p.Batch)); err != nil {
		slog.Error("updating run progress failed", "run_id", runID, "error", err)
	}
}

func (s *Service) cacheStatus(ctx context.Context, flowID uuid.UUID, status models.AnalysisStatus) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetAnalysisStatus(ctx, flowID, string(status), statusCacheTTL); err != nil {
		slog.Debug("caching analysis status failed", "flow_id", flowID, "error", err)
	}
}

// Cancel requests cooperative cancellation of a flow's running analysis.
// The returned bool reports whether a tracked run observed the request.
func (s *Service) Cancel(ctx context.Context, flowID uuid.UUID) (bool, error) {
	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		return false, err
	}
	if flow.AnalysisStatus != models.AnalysisRunning {
		return false, ErrNotRunning
	}
	return s.control.RequestCancel(flowID), nil
}

// StatusSnapshot is the polled view of a flow's analysis state.
type StatusSnapshot struct {
	FlowID             uuid.UUID                `json:"flowId"`
	Status             models.AnalysisStatus    `json:"status"`
	Progress           *models.AnalysisProgress `json:"progress"`
	Error              *string                  `json:"error"`
	LastAnalyzedAt     *time.Time               `json:"lastAnalyzedAt"`
	AnalysisDurationMs *int64                   `json:"analysisDurationMs"`
	IngestStatus       models.IngestStatus      `json:"ingestStatus"`
	IngestProgress     *models.IngestProgress   `json:"ingestProgress"`
	IngestError        *string                  `json:"ingestError"`
	IngestDurationMs   *int64                   `json:"ingestDurationMs"`
	NewDataAvailable   bool                     `json:"newDataAvailable"`
	ItemsCount         int                      `json:"itemsCount"`
	History            []*models.AnalysisRun    `json:"history"`
}

// statusHistoryLimit bounds the run history returned with a status snapshot.
const statusHistoryLimit = 5

// Status assembles the snapshot consumed by polling clients. Readers must
// tolerate a null progress alongside a terminal status; finalization nulls
// the snapshot in the same update that writes the terminal state.
func (s *Service) Status(ctx context.Context, flowID uuid.UUID) (*StatusSnapshot, error) {
	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	latestItemAt, err := s.store.LatestSourceItemAt(ctx, flowID)
	if err != nil {
		return nil, err
	}
	itemsCount, err := s.store.CountSourceItems(ctx, flowID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListAnalysisRuns(ctx, flowID, statusHistoryLimit)
	if err != nil {
		return nil, err
	}

	newData := false
	if latestItemAt != nil {
		newData = flow.LastAnalyzedAt == nil || latestItemAt.After(*flow.LastAnalyzedAt)
	}

	return &StatusSnapshot{
		FlowID:             flow.ID,
		Status:             flow.AnalysisStatus,
		Progress:           flow.AnalysisProgress,
		Error:              flow.AnalysisError,
		LastAnalyzedAt:     flow.LastAnalyzedAt,
		AnalysisDurationMs: flow.AnalysisDurationMs,
		IngestStatus:       flow.IngestStatus,
		IngestProgress:     flow.IngestProgress,
		IngestError:        flow.IngestError,
		IngestDurationMs:   flow.IngestDurationMs,
		NewDataAvailable:   newData,
		ItemsCount:         itemsCount,
		History:            history,
	}, nil
}

// partition slices items into batches of size, preserving order. Item order
// (creation time ascending) defines batch order.
func partition(items []*models.SourceItem, size int) [][]models.ExtractionItem {
	var batches [][]models.ExtractionItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batch := make([]models.ExtractionItem, 0, end-start)
		for _, it := range items[start:end] {
			batch = append(batch, models.ExtractionItem{
				ID:    it.ID.String(),
				Title: it.Title,
				Text:  it.Text,
			})
		}
		batches = append(batches, batch)
	}
	return batches
}
