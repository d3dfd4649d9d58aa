package analysis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMemoryController_CancelLifecycle(t *testing.T) {
	c := NewMemoryController()
	flowID := uuid.New()

	// Nothing tracked yet.
	assert.False(t, c.RequestCancel(flowID))
	assert.False(t, c.IsCancelRequested(flowID))

	c.MarkRunning(flowID)
	assert.False(t, c.IsCancelRequested(flowID))

	assert.True(t, c.RequestCancel(flowID))
	assert.True(t, c.IsCancelRequested(flowID))

	// Requesting again still reports the entry as found.
	assert.True(t, c.RequestCancel(flowID))

	c.Clear(flowID)
	assert.False(t, c.IsCancelRequested(flowID))
	assert.False(t, c.RequestCancel(flowID))
}

func TestMemoryController_MarkRunningResetsStaleFlag(t *testing.T) {
	c := NewMemoryController()
	flowID := uuid.New()

	c.MarkRunning(flowID)
	c.RequestCancel(flowID)

	// A new run for the same flow must not inherit the old cancel flag.
	c.MarkRunning(flowID)
	assert.False(t, c.IsCancelRequested(flowID))
}

func TestMemoryController_FlowsAreIndependent(t *testing.T) {
	c := NewMemoryController()
	a, b := uuid.New(), uuid.New()

	c.MarkRunning(a)
	c.MarkRunning(b)
	c.RequestCancel(a)

	assert.True(t, c.IsCancelRequested(a))
	assert.False(t, c.IsCancelRequested(b))
}
