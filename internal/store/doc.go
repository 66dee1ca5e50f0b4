// Package store defines interfaces for persistence dependencies (lead repositories and
// blob stores). Implementations live under internal/storage; this package must not
// import database drivers or concrete clients.
package store
