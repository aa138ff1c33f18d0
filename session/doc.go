// Package session stores the conversation history that follow-up requests
// carry into their fan-out. The Store interface lives here together with its
// in-memory implementation so the façade depends on the boundary, not on
// concrete storage.
//
// Add additional backends (Redis, Postgres, etc.) in sub-packages without
// changing any calling code; only the wiring layer decides which
// implementation to instantiate.
package session
