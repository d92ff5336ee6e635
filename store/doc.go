// Package store keeps the reconciled vehicle map in SQLite so a restarted
// process can seed its reconciler instead of starting empty.
package store
