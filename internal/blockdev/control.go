package blockdev

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Controller issues spin-down and sync commands for a device. The daemon's
// state machine depends on this interface so tests can substitute a fake.
type Controller interface {
	// SpinDown stops the device's spindle.
	SpinDown(id Identity) error
	// SyncFilesystems flushes every filesystem mounted from the device and
	// then the device's own buffers. A device with nothing mounted syncs
	// only its buffers.
	SyncFilesystems(id Identity) error
}

// SGController talks to real devices through the SCSI generic interface.
type SGController struct {
	mounts *mountTable
}

// NewSGController returns a Controller backed by SG_IO and syncfs.
func NewSGController() *SGController {
	return &SGController{mounts: newMountTable(procMountsPath)}
}

// sgIOHdr mirrors struct sg_io_hdr from <scsi/sg.h>.
type sgIOHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSBLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         unsafe.Pointer
	cmdp           unsafe.Pointer
	sbp            unsafe.Pointer
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         unsafe.Pointer
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

const (
	sgIO           = 0x2285
	sgDxferNone    = -1
	checkCondition = 0x01
)

// scsiStop is the START STOP UNIT command with the START bit clear.
var scsiStop = [6]byte{0x1b, 0x00, 0x00, 0x00, 0x00, 0x00}

// SpinDown sends a SCSI START STOP UNIT (stop) command to the disk node.
func (c *SGController) SpinDown(id Identity) error {
	return withDevice(id, func(fd int) error {
		var sense [255]byte
		hdr := sgIOHdr{
			interfaceID:    'S',
			dxferDirection: sgDxferNone,
			cmdLen:         uint8(len(scsiStop)),
			mxSBLen:        uint8(len(sense)),
			cmdp:           unsafe.Pointer(&scsiStop[0]),
			sbp:            unsafe.Pointer(&sense[0]),
		}
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), sgIO, uintptr(unsafe.Pointer(&hdr))); errno != 0 {
			return fmt.Errorf("SG_IO ioctl on %s: %w", id, errno)
		}
		switch hdr.maskedStatus {
		case 0:
			return nil
		case checkCondition:
			return fmt.Errorf("stop unit on %s: CHECK CONDITION, sense %x", id, sense[:hdr.sbLenWr])
		default:
			return fmt.Errorf("stop unit on %s: SCSI status %#04x", id, hdr.maskedStatus)
		}
	})
}

// SyncFilesystems runs syncfs on every mount point backed by the device,
// then flushes the device's block buffers.
func (c *SGController) SyncFilesystems(id Identity) error {
	points, err := c.mounts.pointsFor(id.DiskName())
	if err != nil {
		return fmt.Errorf("read mount table: %w", err)
	}
	for _, point := range points {
		if err := syncMount(point); err != nil {
			return err
		}
	}
	return withDevice(id, func(fd int) error {
		if _, err := unix.IoctlRetInt(fd, unix.BLKFLSBUF); err != nil {
			return fmt.Errorf("flush buffers of %s: %w", id, err)
		}
		return nil
	})
}

func syncMount(point string) error {
	fd, err := unix.Open(point, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open mount point %s: %w", point, err)
	}
	defer unix.Close(fd)
	if err := unix.Syncfs(fd); err != nil {
		return fmt.Errorf("syncfs %s: %w", point, err)
	}
	return nil
}

func withDevice(id Identity, f func(fd int) error) error {
	fd, err := unix.Open(string(id), unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", id, err)
	}
	defer unix.Close(fd)
	return f(fd)
}
