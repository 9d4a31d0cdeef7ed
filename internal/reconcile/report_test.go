package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReport_Summary(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Report{
		State:      StateFinished,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Counts: Counts{
			Visited:            1200,
			Changed:            3,
			CreatedInDirectory: 1,
			CreatedInLocal:     2,
			DeletedInLocal:     1,
		},
	}

	assert.Equal(t, "finished in 1.5s: 1,200 visited, 3 changed, 3 created, 1 deleted, 0 conflicts", r.Summary())

	r.addIssue(Issue{Kind: IssueDuplicate})
	assert.Contains(t, r.Summary(), ", 1 warning")

	r.addIssue(Issue{Kind: IssueDuplicate})
	r.DryRun = true
	assert.Contains(t, r.Summary(), ", 2 warnings (dry run)")
}
