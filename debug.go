package packedmap

import "fmt"

// debug gates verbose trace output on the hot paths. Flip it locally when
// chasing a bug; it is never wired to an environment variable or flag.
const debug = false

// invariants gates the expensive self-checks in checkInvariants that walk
// every bucket and pool slot. Off by default; tests call checkInvariants
// directly instead of flipping this const, since a const can't vary
// per-test-run without a build tag.
const invariants = false

func tracef(format string, args ...any) {
	if debug {
		fmt.Printf(format, args...)
	}
}
