package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigInvalid aborts a pass before any store is touched.
	ErrConfigInvalid = errors.New("configuration invalid")
	// ErrStoreUnavailable aborts a pass on the first failed store or ledger
	// call. Mutations applied before the failure stay committed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateIdentifier marks a warning: several records share an id on
	// one side, the first one is used.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrFieldConflict marks an entity or field left untouched because no
	// rule licensed a mutation.
	ErrFieldConflict = errors.New("conflict")
	// ErrSyncAlreadyRunning is returned when a pass is requested while one is
	// in progress.
	ErrSyncAlreadyRunning = errors.New("sync already running")
)

// StoreError wraps a failed call to one of the stores or the ledger.
type StoreError struct {
	Side string
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Side, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func storeErr(store fmt.Stringer, op string, err error) error {
	return &StoreError{Side: store.String(), Op: op, Err: err}
}

type ledgerName struct{}

func (ledgerName) String() string { return "ledger" }

func ledgerErr(op string, err error) error {
	return storeErr(ledgerName{}, op, err)
}

func configErr(err error) error {
	return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
}
