//go:build linux

package index

import (
	"time"

	"golang.org/x/sys/unix"
)

// fileBirthTime reads the creation time via statx. Not every filesystem
// records a birth time; absence is reported as the zero time.
func fileBirthTime(path string) time.Time {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return time.Time{}
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)).UTC()
}
