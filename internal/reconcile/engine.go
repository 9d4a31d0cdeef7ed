package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/dirsync/internal/field"
)

// OpenFunc acquires the stores for one pass.
type OpenFunc func(ctx context.Context) (*Session, error)

// Plan is everything a pass needs, loaded fresh at the start of each pass.
type Plan struct {
	Policy Policy
	// Fields are the mapped field names, keyed by Directory attribute.
	Fields []string
	// Shapes is the form each field takes in the local store. Values are
	// projected onto it before they are compared, copied or recorded.
	// Fields without an entry are lists.
	Shapes map[string]field.Shape
	Scope  Scope
	DryRun bool
	Open   OpenFunc
}

func (p *Plan) Validate() error {
	var errs []error
	if err := p.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(p.Fields) == 0 {
		errs = append(errs, errors.New("no mapped fields"))
	}
	seen := make(map[string]struct{}, len(p.Fields))
	for _, f := range p.Fields {
		if f == "" {
			errs = append(errs, errors.New("empty field name"))
			continue
		}
		if _, ok := seen[f]; ok {
			errs = append(errs, fmt.Errorf("field %q mapped twice", f))
		}
		seen[f] = struct{}{}
	}
	if err := p.Scope.Validate(); err != nil {
		errs = append(errs, err)
	}
	if p.Open == nil {
		errs = append(errs, errors.New("no session opener"))
	}
	return errors.Join(errs...)
}

func (p *Plan) shape(fieldName string) field.Shape {
	if s, ok := p.Shapes[fieldName]; ok {
		return s
	}
	return field.List
}

// LoadFunc produces the plan for a pass, typically by reading the config.
type LoadFunc func(ctx context.Context) (*Plan, error)

// Engine runs passes, one at a time.
type Engine struct {
	sink Sink

	muRun sync.Mutex

	mu     sync.RWMutex
	state  State
	last   *Report
	cancel context.CancelFunc
}

func NewEngine(sink Sink) *Engine {
	if sink == nil {
		sink = discardSink{}
	}
	return &Engine{
		sink:  sink,
		state: StateIdle,
	}
}

// Run executes one pass. Cancellation of ctx, or Stop, ends the pass
// Interrupted with a nil error. Fatal errors return a report in
// StateAborted along with the error.
func (e *Engine) Run(ctx context.Context, load LoadFunc) (*Report, error) {
	if !e.muRun.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer e.muRun.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := &Report{
		RunID:     uuid.NewString(),
		State:     StateValidating,
		StartedAt: time.Now(),
		Issues:    []Issue{},
	}

	e.mu.Lock()
	e.cancel = cancel
	e.state = StateValidating
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	e.sink.Event("Starting sync...")
	slog.Info("sync start", "run", report.RunID)

	err := e.run(ctx, load, report)

	report.FinishedAt = time.Now()
	switch {
	case errors.Is(err, errInterrupted):
		err = nil
		report.State = StateInterrupted
		e.sink.Event("Aborted sync.")
	case err != nil:
		report.State = StateAborted
		report.Error = err.Error()
		e.sink.Event(fmt.Sprintf("Error: %v", err))
		e.sink.Event("Aborting sync...")
	default:
		report.State = StateFinished
		e.sink.Event("...finished sync.")
	}
	e.setState(report.State)

	e.mu.Lock()
	e.last = report
	e.mu.Unlock()

	slog.Info("sync end", "run", report.RunID, "state", report.State, "duration", report.Duration(), "error", err)
	return report, err
}

var errInterrupted = errors.New("interrupted")

func (e *Engine) run(ctx context.Context, load LoadFunc, report *Report) error {
	plan, err := load(ctx)
	if err != nil {
		return configErr(err)
	}
	if err := plan.Validate(); err != nil {
		return configErr(err)
	}
	report.DryRun = plan.DryRun

	if ctx.Err() != nil {
		return errInterrupted
	}

	sess, err := plan.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("session close", "error", err)
		}
	}()

	p := newPass(plan, sess, report, e.sink)

	e.setState(StatePhaseDirectory)
	if err := p.directoryPhase(ctx); err != nil {
		return err
	}

	e.setState(StatePhaseLocalOnly)
	return p.localOnlyPhase(ctx)
}

// Stop interrupts the running pass, if any.
func (e *Engine) Stop() bool {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel == nil {
		return false
	}
	slog.Info("sync stop requested")
	cancel()
	return true
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Running reports whether a pass is in progress.
func (e *Engine) Running() bool {
	s := e.State()
	return s != StateIdle && !s.Terminal()
}

// LastReport returns a copy of the most recent report, or nil.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return nil
	}
	r := *e.last
	r.Issues = slices.Clone(e.last.Issues)
	return &r
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}
