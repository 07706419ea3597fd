package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// MinCacheFreeBytes is the free space the cache volume must keep available.
// Entries are single images, so a few hundred megabytes is plenty of headroom.
const MinCacheFreeBytes int64 = 256 * BytesPerMB

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	Path           string
	Total          int64
	Free           int64
	TotalFormatted string
	FreeFormatted  string
}

// DiskSpaceError indicates a disk space problem.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, FormatBytes(e.Required), FormatBytes(e.Available))
}

// GetDiskSpace returns disk space information for the filesystem holding path.
// Missing paths are resolved to their nearest existing ancestor.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	dir, err := nearestExistingDir(path)
	if err != nil {
		return nil, err
	}

	total, free, err := getDiskSpace(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", dir, err)
	}

	return &DiskSpaceInfo{
		Path:           dir,
		Total:          total,
		Free:           free,
		TotalFormatted: FormatBytes(total),
		FreeFormatted:  FormatBytes(free),
	}, nil
}

// CheckDiskSpace verifies there is at least requiredBytes free at path.
func CheckDiskSpace(path string, requiredBytes int64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}
	if info.Free < requiredBytes {
		return &DiskSpaceError{Path: info.Path, Required: requiredBytes, Available: info.Free}
	}
	return nil
}

// nearestExistingDir walks up from path until it finds an existing directory.
func nearestExistingDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	for {
		info, err := os.Stat(abs)
		if err == nil {
			if info.IsDir() {
				return abs, nil
			}
			return filepath.Dir(abs), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot access path %s: %w", abs, err)
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		abs = parent
	}
}
