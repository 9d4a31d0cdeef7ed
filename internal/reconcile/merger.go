package reconcile

import "github.com/openmined/dirsync/internal/field"

// MergeAction is the per-field outcome of a three-way merge.
type MergeAction int

const (
	MergeNone MergeAction = iota
	// MergeRecord stores the agreed fingerprint without touching a store.
	MergeRecord
	MergeCopyToLocal
	MergeCopyToDirectory
	MergeConflict
)

func (a MergeAction) String() string {
	switch a {
	case MergeNone:
		return "none"
	case MergeRecord:
		return "record"
	case MergeCopyToLocal:
		return "copy-to-local"
	case MergeCopyToDirectory:
		return "copy-to-directory"
	default:
		return "conflict"
	}
}

// fieldState holds the three fingerprints of one field.
type fieldState struct {
	directory field.Fingerprint
	local     field.Fingerprint
	base      field.Fingerprint
}

func (s fieldState) on(k SideKind) field.Fingerprint {
	if k == Directory {
		return s.directory
	}
	return s.local
}

type mergeRule struct {
	name   string
	action MergeAction
	when   func(p Policy, s fieldState) bool
}

func copyTo(target SideKind) MergeAction {
	if target == Directory {
		return MergeCopyToDirectory
	}
	return MergeCopyToLocal
}

var agree = mergeRule{
	name:   "agree",
	action: MergeRecord,
	when:   func(_ Policy, s fieldState) bool { return s.directory == s.local },
}

// fillMissing copies onto target when only the other side has a value.
func fillMissing(target SideKind) mergeRule {
	source := target.Other()
	return mergeRule{
		name:   "fill-missing-" + target.String(),
		action: copyTo(target),
		when: func(p Policy, s fieldState) bool {
			return p.changeOn(target) &&
				((!s.on(source).IsAbsent() && s.on(target).IsAbsent() && !p.allChangesFrom(target)) ||
					p.allChangesFrom(source))
		},
	}
}

// followChange copies onto target when target still holds the ledger value.
func followChange(target SideKind) mergeRule {
	source := target.Other()
	return mergeRule{
		name:   "follow-change-" + target.String(),
		action: copyTo(target),
		when: func(p Policy, s fieldState) bool {
			return p.changeOn(target) &&
				((s.base == s.on(target) && !p.allChangesFrom(target)) || p.allChangesFrom(source))
		},
	}
}

// wins copies winner onto the other side when winner always wins.
func wins(winner SideKind) mergeRule {
	target := winner.Other()
	return mergeRule{
		name:   winner.String() + "-always-wins",
		action: copyTo(target),
		when: func(p Policy, _ fieldState) bool {
			return p.changeOn(target) && p.alwaysWins(winner) && !p.allChangesFrom(target)
		},
	}
}

// untrackedRules apply when the ledger has no fingerprint for the field.
var untrackedRules = []mergeRule{
	agree,
	fillMissing(Directory),
	fillMissing(Local),
	wins(Local),
	wins(Directory),
}

// trackedRules apply when the ledger has a fingerprint for the field.
var trackedRules = []mergeRule{
	agree,
	followChange(Local),
	followChange(Directory),
	wins(Directory),
	wins(Local),
}

// decideMerge returns the action for one field and the name of the rule that
// produced it.
func decideMerge(p Policy, s fieldState) (MergeAction, string) {
	if s.directory == s.local && s.local == s.base {
		return MergeNone, "in-sync"
	}
	rules := trackedRules
	if s.base.IsAbsent() {
		rules = untrackedRules
	}
	for _, r := range rules {
		if r.when(p, s) {
			return r.action, r.name
		}
	}
	return MergeConflict, "no-rule"
}
