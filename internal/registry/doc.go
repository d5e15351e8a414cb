// Package registry owns the live set of monitored devices.
//
// Entries are keyed by canonical identity so hot-plug insertion and removal
// never disturb other entries. The registry assigns each entry its immutable
// configuration (explicit directive entry at bootstrap, final default for
// devices discovered later) and creates its runtime state; it never inspects
// or mutates state after insertion.
package registry
