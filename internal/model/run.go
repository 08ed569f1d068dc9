package model

import (
	"time"

	"github.com/sells-group/netmerge/internal/consolidate"
	"github.com/sells-group/netmerge/internal/network"
)

// RunStatus represents the current state of a consolidation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ParseRunStatus validates a status name. The empty string is accepted
// and means any status.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch st := RunStatus(s); st {
	case "", RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return st, true
	}
	return "", false
}

// RunInput describes the networks and settings a run starts from.
type RunInput struct {
	NetworkA network.Description `json:"network_a" yaml:"network_a"`
	NetworkB network.Description `json:"network_b" yaml:"network_b"`
	Settings RunSettings         `json:"settings" yaml:"settings"`
}

// RunSettings records the classifier configuration of a run.
type RunSettings struct {
	MergeThreshold float64 `json:"merge_threshold" yaml:"merge_threshold"`
	AskThreshold   float64 `json:"ask_threshold" yaml:"ask_threshold"`
	MatchRadiusKM  float64 `json:"match_radius_km" yaml:"match_radius_km"`
	SpatialPrune   bool    `json:"spatial_prune" yaml:"spatial_prune"`
}

// Run represents one consolidation of two networks.
type Run struct {
	ID        string     `json:"id" yaml:"id"`
	Input     RunInput   `json:"input" yaml:"input"`
	Status    RunStatus  `json:"status" yaml:"status"`
	Result    *RunResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// RunResult holds the counts of a finished run.
type RunResult struct {
	Output      network.Description `json:"output" yaml:"output"`
	Nodes       consolidate.Stats   `json:"nodes" yaml:"nodes"`
	Spans       consolidate.Stats   `json:"spans" yaml:"spans"`
	OutputNodes int                 `json:"output_nodes" yaml:"output_nodes"`
	OutputSpans int                 `json:"output_spans" yaml:"output_spans"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.Status == RunStatusRunning {
		return 0
	}
	return r.UpdatedAt.Sub(r.CreatedAt)
}
