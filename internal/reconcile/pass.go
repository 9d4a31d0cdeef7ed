package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/dirsync/internal/field"
)

// pass walks both sides once. Store calls run on work, which ignores
// cancellation so an in-flight call always completes. Cancellation is only
// observed between entities.
type pass struct {
	plan   *Plan
	sess   *Session
	report *Report
	sink   Sink
	seen   mapset.Set[string]
}

func newPass(plan *Plan, sess *Session, report *Report, sink Sink) *pass {
	return &pass{
		plan:   plan,
		sess:   sess,
		report: report,
		sink:   sink,
		seen:   mapset.NewThreadUnsafeSet[string](),
	}
}

func (p *pass) event(format string, args ...any) {
	p.sink.Event(fmt.Sprintf(format, args...))
}

// mutation reports a create, delete or change. Dry runs are marked.
func (p *pass) mutation(format string, args ...any) {
	if p.plan.DryRun {
		format = "[dry-run] " + format
	}
	p.event(format, args...)
}

func (p *pass) directoryPhase(ctx context.Context) error {
	work := context.WithoutCancel(ctx)

	entities, err := p.sess.Directory.List(work)
	if err != nil {
		return storeErr(Directory, "list", err)
	}
	slog.Debug("sync directory phase", "entities", len(entities))

	for _, d := range entities {
		if ctx.Err() != nil {
			return errInterrupted
		}
		id, ok := p.admit(Directory, d)
		if !ok {
			continue
		}
		if p.seen.Contains(id) {
			p.duplicate(Directory, id)
			continue
		}
		p.seen.Add(id)
		p.report.Counts.Visited++

		matches, err := p.sess.Local.Lookup(work, id)
		if err != nil {
			return storeErr(Local, "lookup", err)
		}
		if len(matches) == 0 {
			err = p.resolve(work, Directory, d)
		} else {
			if len(matches) > 1 {
				p.duplicate(Local, id)
			}
			err = p.merge(work, d, matches[0])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) localOnlyPhase(ctx context.Context) error {
	work := context.WithoutCancel(ctx)

	entities, err := p.sess.Local.List(work)
	if err != nil {
		return storeErr(Local, "list", err)
	}
	slog.Debug("sync local phase", "entities", len(entities))

	handled := mapset.NewThreadUnsafeSet[string]()
	for _, l := range entities {
		if ctx.Err() != nil {
			return errInterrupted
		}
		id, ok := p.admit(Local, l)
		if !ok || p.seen.Contains(id) {
			continue
		}
		if !handled.Add(id) {
			p.duplicate(Local, id)
			continue
		}
		p.report.Counts.Visited++

		if err := p.resolve(work, Local, l); err != nil {
			return err
		}
	}
	return nil
}

// admit filters out entities with an empty identifier or outside the scope.
func (p *pass) admit(k SideKind, e Entity) (string, bool) {
	id := e.ID()
	if id == "" {
		p.report.addIssue(Issue{
			Side:    k.String(),
			Kind:    IssueEmptyID,
			Message: "record without identifier skipped",
		})
		p.event("Warning: skipping a record without identifier in %s", k)
		return "", false
	}
	return id, p.plan.Scope.Contains(id)
}

func (p *pass) duplicate(k SideKind, id string) {
	p.report.addIssue(Issue{
		EntityID: id,
		Side:     k.String(),
		Kind:     IssueDuplicate,
		Message:  fmt.Sprintf("more than one record for id %q in %s", id, k),
	})
	p.event("Warning: more than one record for id '%s' in %s, using the first one, please clean up", id, k)
	slog.Warn("sync duplicate", "id", id, "side", k)
}

// resolve handles an entity found on side x only.
func (p *pass) resolve(ctx context.Context, x SideKind, e Entity) error {
	id := e.ID()
	y := x.Other()

	existed, err := p.sess.Ledger.Has(ctx, id)
	if err != nil {
		return ledgerErr("has", err)
	}

	values := make(map[string]field.Value, len(p.plan.Fields))
	unchanged := true
	for _, f := range p.plan.Fields {
		v, err := e.Values(ctx, f)
		if err != nil {
			return storeErr(x, "read", err)
		}
		v = v.As(p.plan.shape(f))
		values[f] = v
		if !existed || !unchanged {
			continue
		}
		base, err := p.sess.Ledger.Get(ctx, id, f)
		if err != nil {
			return ledgerErr("get", err)
		}
		if field.Hash(v) != base {
			unchanged = false
		}
	}

	action, rule := decideOneSided(p.plan.Policy, existence{x: x, existed: existed, unchanged: unchanged})
	slog.Debug("sync resolve", "id", id, "side", x, "existed", existed, "unchanged", unchanged, "action", action, "rule", rule)

	switch action {
	case OneSidedDelete:
		p.mutation("Deleting '%s' in %s", id, x)
		p.report.deleted(x)
		if p.plan.DryRun {
			return nil
		}
		if err := p.sess.side(x).Delete(ctx, e); err != nil {
			return storeErr(x, "delete", err)
		}
		if err := p.sess.Ledger.RemoveAll(ctx, id); err != nil {
			return ledgerErr("remove", err)
		}

	case OneSidedCreate:
		p.mutation("Adding '%s' to %s", id, y)
		p.report.created(y)
		if p.plan.DryRun {
			return nil
		}
		if err := p.sess.side(y).Create(ctx, id, values); err != nil {
			return storeErr(y, "create", err)
		}
		if err := p.sess.Ledger.RemoveAll(ctx, id); err != nil {
			return ledgerErr("remove", err)
		}
		for _, f := range p.plan.Fields {
			if err := p.sess.Ledger.Put(ctx, id, f, field.Hash(values[f])); err != nil {
				return ledgerErr("put", err)
			}
		}

	default:
		var msg string
		if existed {
			msg = fmt.Sprintf("There is a delete/change conflict for id '%s', it was removed from %s but changed in %s, please resolve manually", id, y, x)
		} else {
			msg = fmt.Sprintf("There is a conflict for id '%s', it exists in %s only and may not be created in %s, please resolve manually", id, x, y)
		}
		p.report.addIssue(Issue{
			EntityID: id,
			Side:     x.String(),
			Kind:     IssueConflict,
			Message:  msg,
		})
		p.event("%s", msg)
	}
	return nil
}

// merge reconciles every mapped field of an entity present on both sides.
func (p *pass) merge(ctx context.Context, d, l Entity) error {
	id := d.ID()
	changed := false
	var conflicts []string

	for _, f := range p.plan.Fields {
		dv, err := d.Values(ctx, f)
		if err != nil {
			return storeErr(Directory, "read", err)
		}
		lv, err := l.Values(ctx, f)
		if err != nil {
			return storeErr(Local, "read", err)
		}
		base, err := p.sess.Ledger.Get(ctx, id, f)
		if err != nil {
			return ledgerErr("get", err)
		}
		shape := p.plan.shape(f)
		dv, lv = dv.As(shape), lv.As(shape)

		st := fieldState{directory: field.Hash(dv), local: field.Hash(lv), base: base}
		action, rule := decideMerge(p.plan.Policy, st)
		if action != MergeNone {
			slog.Debug("sync merge", "id", id, "field", f, "shape", shape,
				"directory", st.directory.Short(), "local", st.local.Short(), "base", st.base.Short(),
				"action", action, "rule", rule)
		}

		var agreed field.Fingerprint
		switch action {
		case MergeNone:
			continue
		case MergeConflict:
			conflicts = append(conflicts, f)
			continue
		case MergeRecord:
			agreed = st.directory
			p.report.Counts.Recorded++
			if !st.base.IsAbsent() {
				p.event("Field '%s' of '%s' was changed to the same value in both %s and %s", f, id, Directory, Local)
			}
		case MergeCopyToLocal:
			agreed = st.directory
			changed = true
			p.report.Counts.FieldCopies++
			if !p.plan.DryRun {
				if err := p.sess.Local.Apply(ctx, l, f, dv); err != nil {
					return storeErr(Local, "modify", err)
				}
			}
		case MergeCopyToDirectory:
			agreed = st.local
			changed = true
			p.report.Counts.FieldCopies++
			if !p.plan.DryRun {
				if err := p.sess.Directory.Apply(ctx, d, f, lv); err != nil {
					return storeErr(Directory, "modify", err)
				}
			}
		}

		if p.plan.DryRun {
			continue
		}
		if err := p.sess.Ledger.Put(ctx, id, f, agreed); err != nil {
			return ledgerErr("put", err)
		}
	}

	switch {
	case changed:
		p.report.Counts.Changed++
		p.mutation("Changed '%s'", id)
	case len(conflicts) == 0:
		p.report.Counts.Unchanged++
	}

	if len(conflicts) > 0 {
		msg := fmt.Sprintf("There is a conflict for id '%s' (fields: %s), please resolve manually", id, strings.Join(conflicts, ", "))
		p.report.addIssue(Issue{
			EntityID: id,
			Fields:   conflicts,
			Kind:     IssueConflict,
			Message:  msg,
		})
		p.event("%s", msg)
	}
	return nil
}
