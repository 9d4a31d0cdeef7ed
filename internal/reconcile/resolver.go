package reconcile

// OneSidedAction is the outcome for an entity present on one side only.
type OneSidedAction int

const (
	OneSidedConflict OneSidedAction = iota
	// OneSidedDelete removes the entity from the side it is still on.
	OneSidedDelete
	// OneSidedCreate copies the entity to the side it is missing from.
	OneSidedCreate
)

func (a OneSidedAction) String() string {
	switch a {
	case OneSidedDelete:
		return "delete"
	case OneSidedCreate:
		return "create"
	default:
		return "conflict"
	}
}

// existence describes an entity found on side x and missing from the other.
type existence struct {
	x SideKind
	// existed is true when the ledger has any row for the id.
	existed bool
	// unchanged is true when every mapped field on x still hashes to the
	// ledger's fingerprint.
	unchanged bool
}

type oneSidedRule struct {
	name   string
	action OneSidedAction
	when   func(p Policy, e existence) bool
}

// Delete is checked before create.
var oneSidedRules = []oneSidedRule{
	{
		name:   "delete-on-source",
		action: OneSidedDelete,
		when: func(p Policy, e existence) bool {
			y := e.x.Other()
			return p.deleteOn(e.x) &&
				((e.existed && e.unchanged && !p.allChangesFrom(e.x)) || p.allChangesFrom(y))
		},
	},
	{
		name:   "create-on-target",
		action: OneSidedCreate,
		when: func(p Policy, e existence) bool {
			y := e.x.Other()
			return p.createOn(y) &&
				((!e.existed && !p.allChangesFrom(y)) || p.allChangesFrom(e.x))
		},
	},
}

// decideOneSided returns the first matching rule's action and name, or a
// conflict when no rule matches.
func decideOneSided(p Policy, e existence) (OneSidedAction, string) {
	for _, r := range oneSidedRules {
		if r.when(p, e) {
			return r.action, r.name
		}
	}
	return OneSidedConflict, "no-rule"
}
