package blockdev

import (
	"bufio"
	"os"
	"strings"
)

const procMountsPath = "/proc/self/mounts"

// mountTable answers "which mount points sit on this disk" from the kernel
// mount table, re-read on every query.
type mountTable struct {
	path string
}

func newMountTable(path string) *mountTable {
	return &mountTable{path: path}
}

// pointsFor returns the mount points whose source is the named disk or one
// of its partitions.
func (t *mountTable) pointsFor(disk string) ([]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prefix := "/dev/" + disk
	var points []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		source := fields[0]
		if !strings.HasPrefix(source, prefix) {
			continue
		}
		// Reject devices that merely share the prefix, e.g. sdaa vs sda.
		rest := source[len(prefix):]
		if rest != "" && ParentDisk(source[len("/dev/"):]) != disk {
			continue
		}
		points = append(points, unescapeMountPoint(fields[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// unescapeMountPoint decodes the octal escapes the kernel uses for spaces
// and similar characters in mount paths.
func unescapeMountPoint(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			v := (s[i+1]-'0')*64 + (s[i+2]-'0')*8 + (s[i+3] - '0')
			b.WriteByte(v)
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
