// Package housekeeper is the reconciliation core: it inspects a
// registry snapshot, proposes corrective mutations as a reviewable
// plan, applies approved mutations while recording before-state, and
// rolls applied mutations back on demand.
//
// The package is organised around four phases sharing one immutable
// Snapshot:
//
//   - Audit: read-only statistics and findings (audit.go).
//   - Plan: the ordered rule pipeline producing Actions (planner.go,
//     rules.go, tokens.go, fingerprint.go).
//   - Apply: approval-gated execution with rollback capture (apply.go).
//   - Rollback: best-effort reverse replay of captured state
//     (rollback.go).
//
// Engine (engine.go) serialises the phases behind a single mutex and
// owns the persisted plan, rollback record and ignore set (store.go).
// Registry access goes through the Client interface so tests can
// substitute a fake.
package housekeeper
