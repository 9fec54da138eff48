//go:build windows

package fileutil

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// DiskSpace reports free space on the volume holding path. When path does not
// exist yet its nearest existing parent is used.
func DiskSpace(path string) (*DiskSpaceInfo, error) {
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("fileutil: failed to convert path: %w", err)
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &available, &total, &free); err != nil {
		return nil, fmt.Errorf("fileutil: failed to get disk stats: %w", err)
	}
	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: available,
		UsedPct:   usedPct(total, free),
	}, nil
}
