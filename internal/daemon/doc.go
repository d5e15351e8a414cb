// Package daemon runs the diskpark control loop.
//
// One goroutine owns everything: a periodic tick samples every registered
// device and advances its idle state machine, and a coarser rescan (timer or
// udev block event, always between ticks) reconciles registry membership.
// flock-based locking prevents a second instance. The loop exits cleanly on
// context cancellation without issuing further commands.
package daemon
