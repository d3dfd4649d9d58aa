package analysis

import (
	"sync"

	"github.com/google/uuid"
)

// Controller coordinates a running analysis with out-of-band cancellation
// requests. Cancellation is advisory: the orchestrator polls it cooperatively
// at batch boundaries, so a batch already in flight always completes.
//
// State is process-local and not durable. After a restart the flow's persisted
// analysis status is the source of truth; a missing entry here means "no
// tracked run".
type Controller interface {
	// MarkRunning inserts a fresh entry for the flow, overwriting any stale
	// prior entry so cancel checks start out false.
	MarkRunning(flowID uuid.UUID)
	// RequestCancel sets the cancel flag if a run is tracked and reports
	// whether an entry was found.
	RequestCancel(flowID uuid.UUID) bool
	// IsCancelRequested returns the current flag, false when untracked.
	IsCancelRequested(flowID uuid.UUID) bool
	// Clear removes the entry. Called unconditionally at run finalization so
	// an entry can never outlive its run.
	Clear(flowID uuid.UUID)
}

// MemoryController is the in-process Controller. Safe for concurrent use
// across different flows' runs.
type MemoryController struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*controlEntry
}

type controlEntry struct {
	cancelRequested bool
}

// NewMemoryController creates an empty MemoryController.
func NewMemoryController() *MemoryController {
	return &MemoryController{entries: make(map[uuid.UUID]*controlEntry)}
}

func (c *MemoryController) MarkRunning(flowID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[flowID] = &controlEntry{}
}

func (c *MemoryController) RequestCancel(flowID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[flowID]
	if !ok {
		return false
	}
	entry.cancelRequested = true
	return true
}

func (c *MemoryController) IsCancelRequested(flowID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[flowID]
	return ok && entry.cancelRequested
}

func (c *MemoryController) Clear(flowID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, flowID)
}

var _ Controller = (*MemoryController)(nil)
