// Package syncer wires the config, the stores and the ledger of a data
// directory into the reconcile engine.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/directory"
	"github.com/openmined/dirsync/internal/eventlog"
	"github.com/openmined/dirsync/internal/ledger"
	"github.com/openmined/dirsync/internal/local"
	"github.com/openmined/dirsync/internal/reconcile"
	"github.com/openmined/dirsync/internal/workspace"
	"golang.org/x/sync/errgroup"
)

const directoryPageSize = 500

// DialFunc connects to the Directory described by cfg.
type DialFunc func(ctx context.Context, cfg *config.Config) (directory.Store, error)

type Options struct {
	DataDir string
	// Journal receives the sync events. A journal with the default capacity
	// is created when nil.
	Journal *eventlog.Journal
	// Dial overrides the LDAP connection, mostly for tests.
	Dial DialFunc
}

// Syncer runs passes against one data directory.
type Syncer struct {
	ws      *workspace.Workspace
	journal *eventlog.Journal
	engine  *reconcile.Engine
	dial    DialFunc

	triggers chan struct{}
}

func New(opts Options) (*Syncer, error) {
	ws, err := workspace.New(opts.DataDir)
	if err != nil {
		return nil, err
	}

	journal := opts.Journal
	if journal == nil {
		journal = eventlog.NewJournal(eventlog.DefaultCapacity)
	}

	dial := opts.Dial
	if dial == nil {
		dial = dialLDAP
	}

	return &Syncer{
		ws:       ws,
		journal:  journal,
		engine:   reconcile.NewEngine(journal),
		dial:     dial,
		triggers: make(chan struct{}, 1),
	}, nil
}

func (s *Syncer) Workspace() *workspace.Workspace { return s.ws }

func (s *Syncer) Journal() *eventlog.Journal { return s.journal }

func (s *Syncer) Engine() *reconcile.Engine { return s.engine }

// Run executes one pass. The config is re-read from disk each time.
func (s *Syncer) Run(ctx context.Context, dryRun bool) (*reconcile.Report, error) {
	return s.engine.Run(ctx, s.loader(dryRun))
}

// Stop interrupts the running pass.
func (s *Syncer) Stop() bool {
	return s.engine.Stop()
}

func (s *Syncer) State() reconcile.State {
	return s.engine.State()
}

func (s *Syncer) LastReport() *reconcile.Report {
	return s.engine.LastReport()
}

// Trigger asks the daemon loop for a pass. Requests made while one is
// already queued are coalesced.
func (s *Syncer) Trigger() error {
	if s.engine.Running() {
		return reconcile.ErrSyncAlreadyRunning
	}
	select {
	case s.triggers <- struct{}{}:
	default:
	}
	return nil
}

// LoadConfig reads and validates the config of the data directory.
func (s *Syncer) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(s.ws.Root, nil)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Syncer) loader(dryRun bool) reconcile.LoadFunc {
	return func(ctx context.Context) (*reconcile.Plan, error) {
		cfg, err := s.LoadConfig()
		if err != nil {
			return nil, err
		}
		return &reconcile.Plan{
			Policy: cfg.Policy,
			Fields: cfg.Fields(),
			Shapes: cfg.Shapes(),
			Scope:  cfg.Scope,
			DryRun: dryRun,
			Open: func(ctx context.Context) (*reconcile.Session, error) {
				return s.open(ctx, cfg)
			},
		}, nil
	}
}

// open locks the data directory and opens the three stores concurrently.
// On failure everything acquired so far is released.
func (s *Syncer) open(ctx context.Context, cfg *config.Config) (*reconcile.Session, error) {
	// a fresh flock per session so that in-process callers exclude each other
	ws, err := workspace.New(s.ws.Root)
	if err != nil {
		return nil, err
	}
	if err := ws.Lock(); err != nil {
		return nil, err
	}

	var (
		led *ledger.Ledger
		dir directory.Store
		loc *local.Store
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		led, err = ledger.Open(ws.LedgerPath)
		return err
	})
	eg.Go(func() (err error) {
		dir, err = s.dial(egCtx, cfg)
		return err
	})
	eg.Go(func() (err error) {
		loc, err = local.Open(cfg.LocalPath())
		return err
	})

	if err := eg.Wait(); err != nil {
		var errs []error
		if led != nil {
			errs = append(errs, led.Close())
		}
		if dir != nil {
			errs = append(errs, dir.Close())
		}
		if loc != nil {
			errs = append(errs, loc.Close())
		}
		errs = append(errs, ws.Unlock())
		if cerr := errors.Join(errs...); cerr != nil {
			slog.Warn("session cleanup", "error", cerr)
		}
		return nil, err
	}

	naming := directory.Naming{
		BaseDN:        cfg.Directory.BaseDN,
		Leaf:          cfg.Identifier.DNLeaf,
		LeafCopies:    cfg.Identifier.DNLeafCopies,
		ObjectClasses: cfg.Identifier.ObjectClasses,
	}

	return reconcile.NewSession(
		led,
		directory.NewSide(dir, cfg.Identifier.Directory, naming),
		local.NewSide(loc, cfg.Identifier.Local, cfg.Mapping),
		ws.Unlock, led.Close, dir.Close, loc.Close,
	), nil
}

// CleanLedger empties the ledger so that the next pass starts from first
// contact. It fails while a pass holds the data directory.
func (s *Syncer) CleanLedger(ctx context.Context) error {
	if s.engine.Running() {
		return reconcile.ErrSyncAlreadyRunning
	}

	ws, err := workspace.New(s.ws.Root)
	if err != nil {
		return err
	}
	if err := ws.Lock(); err != nil {
		return err
	}
	defer ws.Unlock()

	led, err := ledger.Open(ws.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	if err := led.Clean(ctx); err != nil {
		return fmt.Errorf("ledger clean: %w", err)
	}
	s.journal.Event("Ledger cleaned, the next sync starts from scratch.")
	return nil
}

// LedgerStats opens the ledger read side and returns its size.
func (s *Syncer) LedgerStats(ctx context.Context) (ledger.Stats, error) {
	led, err := ledger.Open(s.ws.LedgerPath)
	if err != nil {
		return ledger.Stats{}, err
	}
	defer led.Close()
	return led.Stats(ctx)
}

// LedgerEntries returns the fingerprints recorded for id.
func (s *Syncer) LedgerEntries(ctx context.Context, id string) ([]ledger.Entry, error) {
	led, err := ledger.Open(s.ws.LedgerPath)
	if err != nil {
		return nil, err
	}
	defer led.Close()
	return led.Entries(ctx, id)
}

func dialLDAP(_ context.Context, cfg *config.Config) (directory.Store, error) {
	attrs := cfg.Fields()
	if !slices.Contains(attrs, cfg.Identifier.Directory) {
		attrs = append(attrs, cfg.Identifier.Directory)
	}
	store, err := directory.Dial(directory.Options{
		URL:                cfg.Directory.URL,
		BindDN:             cfg.Directory.BindDN,
		Password:           cfg.Directory.Password,
		BaseDN:             cfg.Directory.BaseDN,
		Filter:             cfg.Directory.Filter,
		StartTLS:           cfg.Directory.StartTLS,
		InsecureSkipVerify: cfg.Directory.InsecureSkipVerify,
		Attributes:         attrs,
		PageSize:           directoryPageSize,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
