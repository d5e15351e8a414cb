// Package blockdev resolves user-supplied device paths to canonical
// identities and issues the low-level control operations the daemon needs:
// the SCSI stop-spindle command and filesystem flushes.
//
// A canonical identity is the whole-disk node under /dev (for example
// /dev/sda); partition paths and symlinks such as /dev/disk/by-id aliases
// resolve to the identity of their parent disk. Only devices with a SCSI
// block major are eligible.
package blockdev
