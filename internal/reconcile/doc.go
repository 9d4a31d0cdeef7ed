// Package reconcile is the two-way synchronization core between a Directory
// (LDAP style) store and a Local contact store.
//
// A pass walks every Directory entity, merges it field by field with its
// Local counterpart or resolves it one-sided when the counterpart is
// missing, then resolves the Local entities the first phase never saw. All
// change detection is done against the checksum ledger: the fingerprint of
// every (entity, field) pair as of the last pass that agreed on it.
//
// The create/delete and per-field copy decisions are pure functions over
// ordered rule lists (see resolver.go and merger.go). The Engine only
// performs the I/O those decisions call for.
package reconcile
