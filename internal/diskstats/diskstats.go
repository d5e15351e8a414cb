// Package diskstats samples cumulative I/O counters from /proc/diskstats.
//
// Counters are aggregated per whole disk but summed only over partition
// rows: read-only diagnostic queries against the whole-disk node (SMART
// pollers and the like) never move data through a partition's I/O path, so
// they cannot register as activity here.
package diskstats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"diskpark/internal/blockdev"
)

const procDiskstatsPath = "/proc/diskstats"

// Counters holds cumulative sector counts for one disk. Values only grow
// while a device stays attached.
type Counters struct {
	SectorsRead      uint64
	SectorsWritten   uint64
	SectorsDiscarded uint64
}

// Activity reports whether any counter increased between two samples.
func Activity(prev, cur Counters) bool {
	return cur.SectorsRead > prev.SectorsRead ||
		cur.SectorsWritten > prev.SectorsWritten ||
		cur.SectorsDiscarded > prev.SectorsDiscarded
}

// Total is the combined sector count, used for activity traces.
func (c Counters) Total() uint64 {
	return c.SectorsRead + c.SectorsWritten + c.SectorsDiscarded
}

// Sampler reads the kernel disk statistics table. One Snapshot per tick
// serves both activity sampling and device discovery.
type Sampler struct {
	path string
}

// NewSampler returns a Sampler over /proc/diskstats.
func NewSampler() *Sampler {
	return &Sampler{path: procDiskstatsPath}
}

// NewSamplerAt returns a Sampler over an alternate statistics file, for
// tests.
func NewSamplerAt(path string) *Sampler {
	return &Sampler{path: path}
}

// Snapshot returns current counters for every eligible SCSI disk, keyed by
// canonical identity.
func (s *Sampler) Snapshot() (map[blockdev.Identity]Counters, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()
	return parseSnapshot(f)
}

// parseSnapshot reads diskstats rows and accumulates partition sector
// counters into their parent disk. Whole-disk rows and non-SCSI majors are
// skipped. Diskstats line layout (fields 1-based):
//
//	1 major  2 minor  3 name  4 reads  5 reads merged  6 sectors read
//	7 ms reading  8 writes  9 writes merged  10 sectors written
//	11 ms writing  12 in flight  13 ms io  14 weighted ms
//	15 discards  16 discards merged  17 sectors discarded ...
//
// The discard columns appeared in Linux 4.18; older tables are accepted
// without them.
func parseSnapshot(r io.Reader) (map[blockdev.Identity]Counters, error) {
	snapshot := make(map[blockdev.Identity]Counters)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		major, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("diskstats major %q: %w", fields[0], err)
		}
		if !blockdev.IsSCSIMajor(uint32(major)) {
			continue
		}

		name := fields[2]
		disk := blockdev.ParentDisk(name)
		if disk == name {
			// Whole-disk row; only partition counters are trusted.
			continue
		}

		var c Counters
		if c.SectorsRead, err = strconv.ParseUint(fields[5], 10, 64); err != nil {
			return nil, fmt.Errorf("diskstats sectors read for %s: %w", name, err)
		}
		if c.SectorsWritten, err = strconv.ParseUint(fields[9], 10, 64); err != nil {
			return nil, fmt.Errorf("diskstats sectors written for %s: %w", name, err)
		}
		if len(fields) >= 17 {
			if c.SectorsDiscarded, err = strconv.ParseUint(fields[16], 10, 64); err != nil {
				return nil, fmt.Errorf("diskstats sectors discarded for %s: %w", name, err)
			}
		}

		id := blockdev.Identity("/dev/" + disk)
		total := snapshot[id]
		total.SectorsRead += c.SectorsRead
		total.SectorsWritten += c.SectorsWritten
		total.SectorsDiscarded += c.SectorsDiscarded
		snapshot[id] = total
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read diskstats: %w", err)
	}
	return snapshot, nil
}
