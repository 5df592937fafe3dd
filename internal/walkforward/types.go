package walkforward

import (
	"context"

	"github.com/rohankatakam/defectlab/internal/labeling"
	"github.com/rohankatakam/defectlab/internal/models"
)

// Role tags a snapshot as training or testing data
type Role string

const (
	RoleTraining Role = "training"
	RoleTesting  Role = "testing"
)

// State is the scheduler's run state
type State string

const (
	StateRunning State = "RUNNING"
	StateDone    State = "DONE"
)

// DoneReason explains the DONE transition
type DoneReason string

const (
	DoneExhausted        DoneReason = "exhausted"
	DoneNoTestingRelease DoneReason = "no_testing_release"
)

// Row is one labeled method of one release
type Row struct {
	ReleaseIndex int    `json:"release_index" db:"release_index"`
	ReleaseName  string `json:"release_name" db:"release_name"`
	ClassPath    string `json:"class_path" db:"class_path"`
	ClassName    string `json:"class_name" db:"class_name"`
	Method       string `json:"method" db:"method"`
	StartLine    int    `json:"start_line" db:"start_line"`
	EndLine      int    `json:"end_line" db:"end_line"`
	models.ClassMetrics
	Buggy bool `json:"buggy" db:"buggy"`
}

// Snapshot is the labeled content of one role of one iteration
type Snapshot struct {
	Project   string `json:"project"`
	Iteration int    `json:"iteration"`
	Role      Role   `json:"role"`
	Releases  []int  `json:"releases"`
	Rows      []Row  `json:"rows"`
}

// Buggy returns the number of buggy rows
func (s *Snapshot) Buggy() int {
	n := 0
	for _, r := range s.Rows {
		if r.Buggy {
			n++
		}
	}
	return n
}

// Sink persists snapshots
type Sink interface {
	Write(ctx context.Context, snap *Snapshot) error
}

// Labeler labels releases from tickets; *labeling.Labeler implements it
type Labeler interface {
	Label(ctx context.Context, releases []*models.Release, tickets []*models.Ticket) (*labeling.Result, error)
}

// IterationOutcome reports one iteration
type IterationOutcome struct {
	Iteration    int              `json:"iteration" yaml:"iteration"`
	TrainingRows int              `json:"training_rows" yaml:"training_rows"`
	TrainingBugs int              `json:"training_bugs" yaml:"training_bugs"`
	TestingRows  int              `json:"testing_rows" yaml:"testing_rows"`
	TestingBugs  int              `json:"testing_bugs" yaml:"testing_bugs"`
	Training     *labeling.Result `json:"training_labeling" yaml:"training_labeling"`
	Testing      *labeling.Result `json:"testing_labeling" yaml:"testing_labeling"`
	Skipped      bool             `json:"skipped" yaml:"skipped"`
	Error        string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary reports a whole run
type Summary struct {
	Releases   int                `json:"releases" yaml:"releases"`
	Bound      int                `json:"bound" yaml:"bound"`
	Iterations []IterationOutcome `json:"iterations" yaml:"iterations"`
	Skipped    int                `json:"skipped" yaml:"skipped"`
	Terminal   State              `json:"terminal" yaml:"terminal"`
	Reason     DoneReason         `json:"reason" yaml:"reason"`
}
