//go:build !linux && !darwin

package index

import "time"

// fileBirthTime has no portable source on this platform; absence is reported
// as the zero time and the indexed document simply omits it.
func fileBirthTime(string) time.Time {
	return time.Time{}
}
