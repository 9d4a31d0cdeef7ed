package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// State is the engine's position in a pass.
type State string

const (
	StateIdle           State = "idle"
	StateValidating     State = "validating"
	StatePhaseDirectory State = "phase_directory"
	StatePhaseLocalOnly State = "phase_local_only"
	StateFinished       State = "finished"
	StateInterrupted    State = "interrupted"
	// StateAborted ends a pass that hit a fatal error.
	StateAborted State = "aborted"
)

// Terminal reports whether the state ends a pass.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateInterrupted || s == StateAborted
}

type IssueKind string

const (
	IssueConflict  IssueKind = "conflict"
	IssueDuplicate IssueKind = "duplicate"
	IssueEmptyID   IssueKind = "empty_id"
)

// Issue is a recoverable problem recorded during a pass.
type Issue struct {
	EntityID string    `json:"id"`
	Side     string    `json:"side,omitempty"`
	Fields   []string  `json:"fields,omitempty"`
	Kind     IssueKind `json:"kind"`
	Message  string    `json:"message"`
}

// Err returns the sentinel error matching the issue kind.
func (i Issue) Err() error {
	switch i.Kind {
	case IssueDuplicate:
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, i.Message)
	case IssueConflict:
		return fmt.Errorf("%w: %s", ErrFieldConflict, i.Message)
	default:
		return fmt.Errorf("%s: %s", i.Kind, i.Message)
	}
}

// Counts tallies what a pass did.
type Counts struct {
	Visited            int `json:"visited"`
	Unchanged          int `json:"unchanged"`
	Changed            int `json:"changed"`
	FieldCopies        int `json:"field_copies"`
	Recorded           int `json:"recorded"`
	CreatedInDirectory int `json:"created_in_directory"`
	CreatedInLocal     int `json:"created_in_local"`
	DeletedInDirectory int `json:"deleted_in_directory"`
	DeletedInLocal     int `json:"deleted_in_local"`
	Conflicts          int `json:"conflicts"`
	Warnings           int `json:"warnings"`
}

// Report is the result of a pass.
type Report struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Counts     Counts    `json:"counts"`
	Issues     []Issue   `json:"issues"`
	Error      string    `json:"error,omitempty"`
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) created(k SideKind) {
	if k == Directory {
		r.Counts.CreatedInDirectory++
	} else {
		r.Counts.CreatedInLocal++
	}
}

func (r *Report) deleted(k SideKind) {
	if k == Directory {
		r.Counts.DeletedInDirectory++
	} else {
		r.Counts.DeletedInLocal++
	}
}

func (r *Report) addIssue(i Issue) {
	r.Issues = append(r.Issues, i)
	if i.Kind == IssueConflict {
		r.Counts.Conflicts++
	} else {
		r.Counts.Warnings++
	}
}

// Summary is a one line description of the pass.
func (r *Report) Summary() string {
	c := r.Counts
	var b strings.Builder
	fmt.Fprintf(&b, "%s in %s: %s visited, %s changed, %s created, %s deleted, %s conflicts",
		r.State,
		r.Duration().Round(time.Millisecond),
		humanize.Comma(int64(c.Visited)),
		humanize.Comma(int64(c.Changed)),
		humanize.Comma(int64(c.CreatedInDirectory+c.CreatedInLocal)),
		humanize.Comma(int64(c.DeletedInDirectory+c.DeletedInLocal)),
		humanize.Comma(int64(c.Conflicts)),
	)
	if c.Warnings > 0 {
		fmt.Fprintf(&b, ", %s", english.Plural(c.Warnings, "warning", "warnings"))
	}
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	return b.String()
}
