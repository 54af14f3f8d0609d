// Package manager owns the single active model binding and coordinates the
// chunk cache, the repository client and the generation engine. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (State, Snapshot, PersistedState).
//   - errors.go: error types and helpers (IsNotActive, IsNoBinding, ...).
//   - validate.go: model and chunk reference validation.
//   - bind.go: Bind, the manifest fetch, initial prefetch and atomic commit.
//   - prefetch.go: PrefetchNext and the shared chunk fetch/verify step.
//   - generate.go: Generate, the bound-model wrapper around the engine.
//   - status_report.go: Health, LoaderStats, Status and Snapshot reporting.
//   - persist.go: ExportState/ImportState for host snapshots.
//   - metrics.go: Prometheus collector over cache and binding state.
//
// Locking: m.mu guards the binding slot and counters. It is never held across
// a repository call; fetches happen unlocked and results are committed in one
// locked step. The cache has its own lock.
//
// External packages should use public methods only (NewWithConfig, Bind,
// PrefetchNext, Generate, Health, Status). Internal types are subject to change.
package manager
