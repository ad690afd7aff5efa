// Package memindex implements the manager facade (C9): the single entry
// point an agent runtime talks to. One Manager owns one store, one sync
// engine, one query engine, and one trigger supervisor; Get returns the
// same instance for repeated calls with the same agent/workspace/settings
// identity rather than constructing a new one each time.
package memindex
