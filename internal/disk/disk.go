package disk

import (
	"fmt"
	"syscall"
)

// Usage describes the filesystem holding a path.
type Usage struct {
	FreeBytes   int64
	TotalBytes  int64
	UsedPercent float64
}

// GetUsage returns capacity figures for the filesystem containing path
func GetUsage(path string) (Usage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	// Calculate total and free bytes
	u := Usage{
		TotalBytes: int64(stat.Blocks) * int64(stat.Bsize),
		FreeBytes:  int64(stat.Bavail) * int64(stat.Bsize),
	}

	if u.TotalBytes > 0 {
		used := u.TotalBytes - u.FreeBytes
		u.UsedPercent = (float64(used) / float64(u.TotalBytes)) * 100.0
	}

	return u, nil
}

// FreePercent returns the percentage of free disk space
func (u Usage) FreePercent() float64 {
	if u.TotalBytes == 0 {
		return 0
	}
	return 100.0 - u.UsedPercent
}
