// Package idle advances the per-device spin-down state machine.
//
// Each device moves between Active, CountingDown, and SpunDown driven by one
// activity sample per tick. Idle time is measured from the last observed
// activity, not from daemon start, and the actuator commands (sync before
// spin-down, the spindle stop itself, sync on spin-up) fire exactly once per
// transition. A failed spindle stop leaves the device counting down so the
// command is retried on a later tick.
package idle
