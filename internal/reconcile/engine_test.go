package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/openmined/dirsync/internal/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_CreatesNewDirectoryEntityInLocal(t *testing.T) {
	f := newFixture(t)
	f.dir.put("42", "cn", "Alice", "mail", "alice@example.com")

	report := f.run(t)

	assert.Equal(t, StateFinished, report.State)
	assert.Equal(t, 1, report.Counts.CreatedInLocal)
	assert.Equal(t, "Alice", f.local.value("42", "cn"))
	assert.Equal(t, "alice@example.com", f.local.value("42", "mail"))
	assert.Equal(t, field.Hash(field.NewScalar("Alice")), f.base(t, "42", "cn"))
	assert.Equal(t, field.Hash(field.NewScalar("alice@example.com")), f.base(t, "42", "mail"))
	assert.Contains(t, f.events, "Adding '42' to Local")
	assert.Equal(t, 1, f.closed)
}

func TestEngine_CreatesNewLocalEntityInDirectory(t *testing.T) {
	f := newFixture(t)
	f.local.put("9", "cn", "Bob")

	report := f.run(t)

	assert.Equal(t, 1, report.Counts.CreatedInDirectory)
	assert.Equal(t, "Bob", f.dir.value("9", "cn"))
	assert.Equal(t, field.Hash(field.NewScalar("Bob")), f.base(t, "9", "cn"))
	assert.Equal(t, field.Absent, f.base(t, "9", "mail"))
	assert.Contains(t, f.events, "Adding '9' to Directory")
}

func TestEngine_PropagatesDirectoryChange(t *testing.T) {
	f := newFixture(t)
	f.dir.put("7", "cn", "Carol", "mail", "new@example.com")
	f.local.put("7", "cn", "Carol", "mail", "old@example.com")
	f.seed(t, "7", "cn", "Carol", "mail", "old@example.com")

	report := f.run(t)

	assert.Equal(t, "new@example.com", f.local.value("7", "mail"))
	assert.Equal(t, field.Hash(field.NewScalar("new@example.com")), f.base(t, "7", "mail"))
	assert.Equal(t, 1, report.Counts.Changed)
	assert.Equal(t, 1, report.Counts.FieldCopies)
	assert.Contains(t, f.events, "Changed '7'")
}

func TestEngine_PropagatesLocalChange(t *testing.T) {
	f := newFixture(t)
	f.dir.put("7", "cn", "Carol", "mail", "old@example.com")
	f.local.put("7", "cn", "Caroline", "mail", "old@example.com")
	f.seed(t, "7", "cn", "Carol", "mail", "old@example.com")

	f.run(t)

	assert.Equal(t, "Caroline", f.dir.value("7", "cn"))
	assert.Equal(t, field.Hash(field.NewScalar("Caroline")), f.base(t, "7", "cn"))
}

func TestEngine_SecondPassIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.dir.put("1", "cn", "A", "mail", "a@example.com")
	f.dir.put("2", "cn", "B")
	f.local.put("3", "cn", "C")
	f.local.put("1", "cn", "A")

	first := f.run(t)
	require.Empty(t, first.Issues)

	f.events = nil
	second := f.run(t)

	assert.Equal(t, StateFinished, second.State)
	assert.Zero(t, second.Counts.Changed)
	assert.Zero(t, second.Counts.CreatedInDirectory+second.Counts.CreatedInLocal)
	assert.Zero(t, second.Counts.DeletedInDirectory+second.Counts.DeletedInLocal)
	assert.Zero(t, second.Counts.Recorded)
	assert.Equal(t, 3, second.Counts.Unchanged)
	assert.Equal(t, []string{"Starting sync...", "...finished sync."}, f.events)
}

func TestEngine_ConflictLeavesBothSidesAlone(t *testing.T) {
	f := newFixture(t)
	f.dir.put("7", "cn", "Carol", "mail", "dir@example.com")
	f.local.put("7", "cn", "Carol", "mail", "local@example.com")
	f.seed(t, "7", "cn", "Carol", "mail", "old@example.com")

	report := f.run(t)

	assert.Equal(t, "dir@example.com", f.dir.value("7", "mail"))
	assert.Equal(t, "local@example.com", f.local.value("7", "mail"))
	assert.Equal(t, field.Hash(field.NewScalar("old@example.com")), f.base(t, "7", "mail"))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueConflict, report.Issues[0].Kind)
	assert.Equal(t, []string{"mail"}, report.Issues[0].Fields)
	assert.ErrorIs(t, report.Issues[0].Err(), ErrFieldConflict)
	assert.Contains(t, f.events, "There is a conflict for id '7' (fields: mail), please resolve manually")
}

func TestEngine_DirectoryAlwaysWinsConverges(t *testing.T) {
	f := newFixture(t)
	f.policy.DirectoryAlwaysWins = true
	f.dir.put("7", "cn", "Carol", "mail", "dir@example.com")
	f.local.put("7", "cn", "Carol", "mail", "local@example.com")
	f.seed(t, "7", "cn", "Carol", "mail", "old@example.com")

	report := f.run(t)

	assert.Empty(t, report.Issues)
	assert.Equal(t, "dir@example.com", f.local.value("7", "mail"))
	assert.Equal(t, field.Hash(field.NewScalar("dir@example.com")), f.base(t, "7", "mail"))
}

func TestEngine_FirstContactRecordsAgreement(t *testing.T) {
	f := newFixture(t)
	f.dir.put("5", "cn", "Eve", "mail", "eve@example.com")
	f.local.put("5", "cn", "Eve")

	report := f.run(t)

	assert.Equal(t, 1, report.Counts.Recorded)
	assert.Equal(t, "eve@example.com", f.local.value("5", "mail"))
	assert.Equal(t, field.Hash(field.NewScalar("Eve")), f.base(t, "5", "cn"))
	assert.Equal(t, field.Hash(field.NewScalar("eve@example.com")), f.base(t, "5", "mail"))
}

func TestEngine_RecordsSameChangeOnBothSides(t *testing.T) {
	f := newFixture(t)
	f.dir.put("5", "cn", "Eve", "mail", "new@example.com")
	f.local.put("5", "cn", "Eve", "mail", "new@example.com")
	f.seed(t, "5", "cn", "Eve", "mail", "old@example.com")

	report := f.run(t)

	assert.Equal(t, 1, report.Counts.Recorded)
	assert.Zero(t, report.Counts.Changed)
	assert.Empty(t, report.Issues)
	assert.Equal(t, field.Hash(field.NewScalar("new@example.com")), f.base(t, "5", "mail"))
	assert.Contains(t, f.events, "Field 'mail' of '5' was changed to the same value in both Directory and Local")
}

func TestEngine_ScalarFieldKeepsDirectoryList(t *testing.T) {
	f := newFixture(t)
	f.shapes = map[string]field.Shape{"cn": field.Scalar, "mail": field.List}
	f.dir.putList("3", "cn", "Alice", "Ally")

	first := f.run(t)
	require.Equal(t, 1, first.Counts.CreatedInLocal)
	assert.Equal(t, []string{"Alice"}, f.local.get("3").fields["cn"].Values())
	assert.Equal(t, field.Hash(field.NewScalar("Alice")), f.base(t, "3", "cn"))

	second := f.run(t)

	assert.Zero(t, second.Counts.Changed)
	assert.Zero(t, second.Counts.FieldCopies)
	assert.Zero(t, second.Counts.Recorded)
	assert.Equal(t, 1, second.Counts.Unchanged)
	assert.Equal(t, []string{"Alice", "Ally"}, f.dir.get("3").fields["cn"].Values())
}

func TestEngine_ScalarFieldFollowsFirstDirectoryValue(t *testing.T) {
	f := newFixture(t)
	f.shapes = map[string]field.Shape{"cn": field.Scalar}
	f.dir.putList("3", "cn", "Alicia", "Ally")
	f.local.put("3", "cn", "Alice")
	f.seed(t, "3", "cn", "Alice")

	report := f.run(t)

	assert.Equal(t, 1, report.Counts.FieldCopies)
	assert.Equal(t, []string{"Alicia"}, f.local.get("3").fields["cn"].Values())
	assert.Equal(t, field.Hash(field.NewScalar("Alicia")), f.base(t, "3", "cn"))
}

func TestEngine_EmptyListElementsAreNotAChange(t *testing.T) {
	f := newFixture(t)
	f.local.put("4", "cn", "Bob")
	f.local.putList("4", "mail", "bob@example.com", "")

	first := f.run(t)
	require.Equal(t, 1, first.Counts.CreatedInDirectory)
	assert.Equal(t, []string{"bob@example.com"}, f.dir.get("4").fields["mail"].Values())

	second := f.run(t)

	assert.Zero(t, second.Counts.Changed)
	assert.Zero(t, second.Counts.FieldCopies)
	assert.Equal(t, 1, second.Counts.Unchanged)
}

func TestEngine_DeletesEntityRemovedOnOtherSide(t *testing.T) {
	f := newFixture(t)
	f.dir.put("7", "cn", "Carol")
	f.seed(t, "7", "cn", "Carol")

	report := f.run(t)

	assert.Nil(t, f.dir.get("7"))
	assert.Equal(t, 1, report.Counts.DeletedInDirectory)
	ok, err := f.ledger.Has(context.Background(), "7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, f.events, "Deleting '7' in Directory")
}

func TestEngine_DeleteChangeConflict(t *testing.T) {
	f := newFixture(t)
	f.local.put("7", "cn", "Caroline")
	f.seed(t, "7", "cn", "Carol")

	report := f.run(t)

	assert.NotNil(t, f.local.get("7"))
	assert.Nil(t, f.dir.get("7"))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueConflict, report.Issues[0].Kind)
	assert.Equal(t, "Local", report.Issues[0].Side)
}

func TestEngine_RejectsContradictoryPolicy(t *testing.T) {
	f := newFixture(t)
	f.policy.DirectoryAlwaysWins = true
	f.policy.LocalAlwaysWins = true
	f.dir.put("1", "cn", "A")

	opened := false
	load := func(ctx context.Context) (*Plan, error) {
		plan, err := f.load(ctx)
		open := plan.Open
		plan.Open = func(ctx context.Context) (*Session, error) {
			opened = true
			return open(ctx)
		}
		return plan, err
	}

	report, err := f.engine.Run(context.Background(), load)
	require.ErrorIs(t, err, ErrConfigInvalid)
	assert.Equal(t, StateAborted, report.State)
	assert.False(t, opened)
	assert.Nil(t, f.local.get("1"))
}

func TestEngine_LoadErrorIsConfigInvalid(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Run(context.Background(), func(context.Context) (*Plan, error) {
		return nil, errors.New("bad yaml")
	})
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Equal(t, StateAborted, e.State())
}

func TestEngine_StoreFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.dir.put("1", "cn", "A")
	f.dir.put("2", "cn", "B")
	f.local.failOn = "create"

	report, err := f.engine.Run(context.Background(), f.load)

	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorIs(t, err, errInjected)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "Local", storeErr.Side)
	assert.Equal(t, "create", storeErr.Op)
	assert.Equal(t, StateAborted, report.State)
	assert.Equal(t, 1, f.closed)

	ok, err := f.ledger.Has(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_OpenFailureAborts(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Run(context.Background(), func(context.Context) (*Plan, error) {
		return &Plan{
			Policy: DefaultPolicy(),
			Fields: []string{"cn"},
			Open: func(context.Context) (*Session, error) {
				return nil, errors.New("connection refused")
			},
		}, nil
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestEngine_StopInterruptsBetweenEntities(t *testing.T) {
	f := newFixture(t)
	f.dir.put("1", "cn", "A")
	f.dir.put("2", "cn", "B")
	f.engine.sink = SinkFunc(func(msg string) {
		f.events = append(f.events, msg)
		if msg == "Adding '1' to Local" {
			assert.True(t, f.engine.Stop())
		}
	})

	report, err := f.engine.Run(context.Background(), f.load)

	require.NoError(t, err)
	assert.Equal(t, StateInterrupted, report.State)
	assert.NotNil(t, f.local.get("1"))
	assert.Nil(t, f.local.get("2"))
	assert.Equal(t, 1, f.closed)
	assert.False(t, f.engine.Stop())
}

func TestEngine_CancelledContextInterrupts(t *testing.T) {
	f := newFixture(t)
	f.dir.put("1", "cn", "A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.engine.Run(ctx, f.load)
	require.NoError(t, err)
	assert.Equal(t, StateInterrupted, report.State)
	assert.Nil(t, f.local.get("1"))
}

func TestEngine_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (*Plan, error) {
		close(entered)
		<-release
		return f.load(ctx)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.engine.Run(context.Background(), load)
		assert.NoError(t, err)
	}()

	<-entered
	assert.True(t, f.engine.Running())
	_, err := f.engine.Run(context.Background(), f.load)
	assert.ErrorIs(t, err, ErrSyncAlreadyRunning)

	close(release)
	wg.Wait()
	assert.Equal(t, StateFinished, f.engine.State())
	require.NotNil(t, f.engine.LastReport())
}

func TestEngine_DuplicateIdentifiers(t *testing.T) {
	f := newFixture(t)
	f.dir.put("5", "cn", "First")
	f.dir.put("5", "cn", "Second")
	f.local.put("6", "cn", "L1")
	f.local.put("6", "cn", "L2")

	report := f.run(t)

	var dups []Issue
	for _, i := range report.Issues {
		if i.Kind == IssueDuplicate {
			dups = append(dups, i)
		}
	}
	require.Len(t, dups, 2)
	assert.ErrorIs(t, dups[0].Err(), ErrDuplicateIdentifier)
	assert.Equal(t, "First", f.local.value("5", "cn"))
	assert.Equal(t, "L1", f.dir.value("6", "cn"))
}

func TestEngine_SkipsEmptyIdentifierAndOutOfScope(t *testing.T) {
	f := newFixture(t)
	f.scope = Scope{Exclude: []string{"admin*"}}
	f.dir.put("", "cn", "Nobody")
	f.dir.put("admin1", "cn", "Root")
	f.dir.put("3", "cn", "C")

	report := f.run(t)

	assert.Equal(t, 1, report.Counts.Visited)
	assert.Nil(t, f.local.get("admin1"))
	assert.NotNil(t, f.local.get("3"))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueEmptyID, report.Issues[0].Kind)
}

func TestEngine_DryRunMutatesNothing(t *testing.T) {
	f := newFixture(t)
	f.dryRun = true
	f.dir.put("42", "cn", "Alice")
	f.local.put("7", "cn", "Caroline")
	f.seed(t, "7", "cn", "Carol")
	f.dir.put("8", "cn", "New")
	f.local.put("8", "cn", "Old")
	f.seed(t, "8", "cn", "Old")

	report := f.run(t)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Counts.CreatedInLocal)
	assert.Equal(t, 1, report.Counts.Changed)
	assert.Nil(t, f.local.get("42"))
	assert.Equal(t, "Old", f.local.value("8", "cn"))
	assert.Equal(t, field.Hash(field.NewScalar("Old")), f.base(t, "8", "cn"))
	assert.Contains(t, f.events, "[dry-run] Adding '42' to Local")
	assert.Contains(t, f.events, "[dry-run] Changed '8'")
}

func TestPlan_Validate(t *testing.T) {
	open := func(context.Context) (*Session, error) { return nil, nil }

	assert.NoError(t, (&Plan{Policy: DefaultPolicy(), Fields: []string{"cn"}, Open: open}).Validate())
	assert.Error(t, (&Plan{Policy: DefaultPolicy(), Open: open}).Validate())
	assert.Error(t, (&Plan{Policy: DefaultPolicy(), Fields: []string{"cn", "cn"}, Open: open}).Validate())
	assert.Error(t, (&Plan{Policy: DefaultPolicy(), Fields: []string{"cn"}}).Validate())
	assert.Error(t, (&Plan{Policy: DefaultPolicy(), Fields: []string{"cn"}, Scope: Scope{Include: []string{"[a-"}}, Open: open}).Validate())
}

func TestSession_CloseIsIdempotentAndJoinsErrors(t *testing.T) {
	var order []int
	s := NewSession(nil, nil, nil,
		func() error { order = append(order, 1); return errors.New("first") },
		func() error { order = append(order, 2); return errors.New("second") },
	)

	err := s.Close()
	assert.ErrorContains(t, err, "first")
	assert.ErrorContains(t, err, "second")
	assert.Equal(t, []int{2, 1}, order)
	assert.Equal(t, err, s.Close())
	assert.Len(t, order, 2)
}
