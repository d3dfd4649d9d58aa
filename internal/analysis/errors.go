package analysis

import "errors"

var (
	// ErrAlreadyRunning is returned when a start request hits a flow whose
	// analysis status is already running.
	ErrAlreadyRunning = errors.New("analysis already running for this flow")
	// ErrNoItems is returned when a flow has no source items to analyze.
	ErrNoItems = errors.New("no items to analyze")
	// ErrNoBatches is returned when partitioning produced zero batches.
	ErrNoBatches = errors.New("unable to batch items for analysis")
	// ErrNotRunning is returned by cancel requests against a flow with no
	// running analysis.
	ErrNotRunning = errors.New("no running analysis to cancel")
	// ErrMergeSelf is returned when a manual merge names the same cluster as
	// both source and target.
	ErrMergeSelf = errors.New("cannot merge a cluster into itself")
)

// errNoClustersMsg is the terminal error recorded when a run completes every
// batch without producing a single cluster.
const errNoClustersMsg = "analysis completed but no clusters were generated"
