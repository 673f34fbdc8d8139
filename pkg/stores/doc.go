// Package stores persists provisioning run history in SQLite.
//
// Every run is one row in runs and one row per executed stage in
// stage_results. The schema is managed by embedded golang-migrate
// migrations. The store is written to through a Recorder, which the
// orchestrator notifies as a run progresses; recording failures never
// change the outcome of a run.
package stores
