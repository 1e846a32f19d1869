//go:build !unix

package ledger

import "os"

// lockFile is a no-op where flock is unavailable; appends are then only
// serialised within one process.
func lockFile(*os.File, bool) (func(), error) {
	return func() {}, nil
}
