//go:build !windows

package fileutil

import (
	"fmt"
	"path/filepath"
	"syscall"
)

// DiskSpace reports free space on the volume holding path. When path does not
// exist yet its nearest existing parent is used.
func DiskSpace(path string) (*DiskSpaceInfo, error) {
	var stat syscall.Statfs_t
	for {
		err := syscall.Statfs(path, &stat)
		if err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			return nil, fmt.Errorf("fileutil: failed to get disk stats: %w", err)
		}
		path = parent
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: stat.Bavail * uint64(stat.Bsize),
		UsedPct:   usedPct(total, free),
	}, nil
}
