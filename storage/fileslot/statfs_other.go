//go:build !linux && !darwin

package fileslot

import "errors"

func statfsFree(string) (uint64, error) {
	return 0, errors.New("free space query not supported on this platform")
}
