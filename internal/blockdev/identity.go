package blockdev

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Identity is the canonical path of a whole-disk block device node, used as
// the registry key. Two inputs resolving to the same node are the same
// entity.
type Identity string

// DiskName returns the bare device name, e.g. "sda" for "/dev/sda".
func (id Identity) DiskName() string {
	return filepath.Base(string(id))
}

var (
	// ErrNotFound reports a device path that does not exist.
	ErrNotFound = errors.New("device not found")
	// ErrNotBlock reports a path that exists but is not a block device node.
	ErrNotBlock = errors.New("not a block device")
	// ErrNotSCSI reports a block device outside the SCSI disk majors.
	ErrNotSCSI = errors.New("not a SCSI disk")
)

// IsSCSIMajor reports whether a block major number belongs to the SCSI disk
// driver (sd): 8 plus the extension range 65 through 71.
func IsSCSIMajor(major uint32) bool {
	return major == 8 || (major >= 65 && major <= 71)
}

// ParentDisk strips a partition suffix from a device name: "sda2" becomes
// "sda". Names without trailing digits are returned unchanged.
func ParentDisk(name string) string {
	end := len(name)
	for end > 0 && name[end-1] >= '0' && name[end-1] <= '9' {
		end--
	}
	if end == 0 {
		return name
	}
	return name[:end]
}

// Resolve canonicalizes a user-supplied device path (possibly a symlink or a
// partition node) to the identity of its whole-disk SCSI device.
func Resolve(path string) (Identity, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Stat(real, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", real, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return "", fmt.Errorf("%w: %s", ErrNotBlock, path)
	}
	if !IsSCSIMajor(unix.Major(st.Rdev)) {
		return "", fmt.Errorf("%w: %s", ErrNotSCSI, path)
	}

	name := filepath.Base(real)
	if unix.Minor(st.Rdev)%16 != 0 {
		// Partition node: monitoring is keyed by the parent disk.
		name = ParentDisk(name)
	}
	return Identity(filepath.Join("/dev", name)), nil
}
