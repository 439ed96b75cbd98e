package pipeline

import (
	"maps"
	"slices"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

// Status is the lifecycle state of a pipeline run.
type Status string

// Status values. A run moves idle -> running -> completed|cancelled|failed,
// and Clear returns it to idle.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status ends a run.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// GroupType classifies why photos were grouped.
type GroupType string

// GroupType values.
const (
	GroupExactDuplicates        GroupType = "exact_duplicates"
	GroupRetryShots             GroupType = "retry_shots"
	GroupAngleVariations        GroupType = "angle_variations"
	GroupIncrementalProgress    GroupType = "incremental_progress"
	GroupRedundantDocumentation GroupType = "redundant_documentation"
)

// Group is a set of at least two similar photos. A photo is in at most one
// group per run.
type Group struct {
	ID                  string           `json:"id"`
	Photos              []string         `json:"photos"`
	RepresentativeScore similarity.Score `json:"representative_score"`
	GroupType           GroupType        `json:"group_type"`
	Confidence          float64          `json:"confidence"`
	Layer               Layer            `json:"layer"`
}

// Contains reports whether the group includes photoID.
func (g *Group) Contains(photoID string) bool {
	return slices.Contains(g.Photos, photoID)
}

// Matrix maps photo pairs to their similarity score. Lookups are symmetric.
type Matrix map[string]map[string]similarity.Score

// Set records the score for the pair (a, b) in both directions.
func (m Matrix) Set(a, b string, s similarity.Score) {
	if m[a] == nil {
		m[a] = make(map[string]similarity.Score)
	}
	if m[b] == nil {
		m[b] = make(map[string]similarity.Score)
	}
	m[a][b] = s
	m[b][a] = s
}

// Get returns the score recorded for the pair (a, b).
func (m Matrix) Get(a, b string) (similarity.Score, bool) {
	s, ok := m[a][b]
	return s, ok
}

// Pairs returns the number of distinct pairs recorded.
func (m Matrix) Pairs() int {
	n := 0
	for _, row := range m {
		n += len(row)
	}
	return n / 2
}

func (m Matrix) clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for k, row := range m {
		out[k] = maps.Clone(row)
	}
	return out
}

// LayerStat summarizes one executed layer.
type LayerStat struct {
	Layer      Layer         `json:"layer"`
	Input      int           `json:"input"`
	Output     int           `json:"output"`
	Groups     int           `json:"groups"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
}

// RunState is the observable state of the current or last run.
type RunState struct {
	RunID            string      `json:"run_id,omitempty"`
	Status           Status      `json:"status"`
	IsAnalyzing      bool        `json:"is_analyzing"`
	Progress         int         `json:"progress"`
	Stage            string      `json:"stage,omitempty"`
	Error            string      `json:"error,omitempty"`
	PhotoCount       int         `json:"photo_count"`
	AllGroups        []Group     `json:"all_groups"`
	FilteredGroups   []Group     `json:"filtered_groups"`
	SimilarityMatrix Matrix      `json:"similarity_matrix,omitempty"`
	Layers           []LayerStat `json:"layers,omitempty"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

func idleState() RunState {
	return RunState{
		Status:         StatusIdle,
		AllGroups:      []Group{},
		FilteredGroups: []Group{},
	}
}

// clone returns a deep copy that shares nothing with the receiver.
func (s *RunState) clone() RunState {
	out := *s
	out.AllGroups = cloneGroups(s.AllGroups)
	out.FilteredGroups = cloneGroups(s.FilteredGroups)
	out.SimilarityMatrix = s.SimilarityMatrix.clone()
	out.Layers = slices.Clone(s.Layers)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func cloneGroups(groups []Group) []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		g.Photos = slices.Clone(g.Photos)
		out[i] = g
	}
	return out
}

// filterByConfidence keeps groups whose confidence reaches threshold.
func filterByConfidence(groups []Group, threshold float64) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.Confidence >= threshold {
			out = append(out, g)
		}
	}
	return out
}

// Result is the structured outcome of Run.
type Result struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	State   RunState `json:"state"`
}
