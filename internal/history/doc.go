// Package history keeps an append-only journal of spin events in SQLite.
//
// The journal exists for the operator ("diskpark history"), not for the
// daemon: runtime state is rebuilt from the live device list on every boot
// and nothing is ever restored from the journal.
package history
