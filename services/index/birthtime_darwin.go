//go:build darwin

package index

import (
	"os"
	"syscall"
	"time"
)

// fileBirthTime reads the creation time from the stat birth timestamp.
// Absence is reported as the zero time.
func fileBirthTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}
	}
	return time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec).UTC()
}
