package fileutil

import (
	"errors"
	"fmt"
	"os"
)

// MinFreeBytes is the floor of free space required before any write.
const MinFreeBytes = 1024 * 1024

// ErrInsufficientDisk is returned when a write would not fit on disk.
var ErrInsufficientDisk = errors.New("fileutil: insufficient disk space")

// DiskSpaceInfo describes the volume holding a path.
type DiskSpaceInfo struct {
	Total     uint64
	Free      uint64
	Available uint64
	UsedPct   int
}

// CheckFree fails with ErrInsufficientDisk when the volume holding path has
// less than max(MinFreeBytes, 2*size) bytes available. A failure to stat the
// volume is reported on stderr and does not block the write.
func CheckFree(path string, size int) error {
	info, err := DiskSpace(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to check disk space: %v\n", err)
		return nil
	}

	required := uint64(MinFreeBytes)
	if uint64(size)*2 > required {
		required = uint64(size) * 2
	}
	if info.Available < required {
		return fmt.Errorf("%w: %d bytes available, need %d", ErrInsufficientDisk, info.Available, required)
	}
	return nil
}

func usedPct(total, free uint64) int {
	if total == 0 {
		return 0
	}
	return int(100 * (total - free) / total)
}
