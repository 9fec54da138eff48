//go:build windows

package mcp

import (
	"errors"
	"fmt"
	"os"
)

// openPolicyFile opens the policy file. Creating symlinks on Windows needs
// elevated privileges, so they are not checked here.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("mcp: failed to open policy file: %w", err)
	}
	return f, nil
}

// checkFileOwnership is a no-op: Windows ownership lives in ACLs.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
