// Package harvest defines the core types and collaborator interfaces shared by
// the collection, dedup, persistence and export subsystems.
//
// A run flows Searcher -> Dispatcher (fetch + extract per location) -> Saver
// (hash, dedup, validate, persist) -> Exporter. Every component in between talks
// to its neighbours through the interfaces declared here so that collectors,
// stores and sinks can be swapped for in-memory fakes in tests.
package harvest
