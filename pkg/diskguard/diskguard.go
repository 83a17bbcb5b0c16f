package diskguard

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const bytesPerGB = 1 << 30

// FreeGB returns the free space on the filesystem holding path, in gigabytes
func FreeGB(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	free := float64(st.Bavail) * float64(st.Bsize)
	return free / bytesPerGB, nil
}

// Check reports whether path has at least minFreeGB gigabytes free.
// Returns the observed free space alongside the verdict.
func Check(path string, minFreeGB int) (bool, float64, error) {
	free, err := FreeGB(path)
	if err != nil {
		return false, 0, err
	}
	return free >= float64(minFreeGB), free, nil
}
