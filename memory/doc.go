// Package memory provides implementations of the core.Store persistence
// facade: a mutex-guarded in-memory store for tests and ephemeral agents,
// and a SQLite-backed store in the sqlite subpackage for durable deployments.
package memory
