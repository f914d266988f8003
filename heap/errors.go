package heap

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the heap's public API. Callers that need to
// distinguish cases use errors.Is; internal invariant violations that
// should never happen given a correct caller panic instead, following the
// same convention the VM this package is modeled on uses for its own
// "unreachable" checks.
var (
	// ErrOutOfMemory is returned when an allocation cannot be satisfied even
	// after a scavenge (and, for AllocateOld, a major collection).
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrRootOverflow is returned by AddRoot when the root table is full and
	// Config.MaxRoots is not zero (0 means unbounded).
	ErrRootOverflow = errors.New("heap: root table overflow")

	// ErrSnapshotInvalid and its wrapped, more specific siblings are
	// returned by Deserialize. A caller that only cares that the snapshot
	// was rejected can check errors.Is(err, ErrSnapshotInvalid); a caller
	// that wants the detail checks the more specific sentinel.
	ErrSnapshotInvalid      = errors.New("heap: invalid snapshot")
	ErrSnapshotBadMagic     = fmt.Errorf("%w: bad snapshot magic", ErrSnapshotInvalid)
	ErrSnapshotBadVersion   = fmt.Errorf("%w: unsupported snapshot version", ErrSnapshotInvalid)
	ErrSnapshotWordMismatch = fmt.Errorf("%w: snapshot word size does not match this build", ErrSnapshotInvalid)
	ErrSnapshotBadChecksum  = fmt.Errorf("%w: snapshot checksum mismatch", ErrSnapshotInvalid)
	ErrSnapshotTruncated    = fmt.Errorf("%w: snapshot truncated", ErrSnapshotInvalid)
	ErrSnapshotBadReference = fmt.Errorf("%w: snapshot back-reference out of range", ErrSnapshotInvalid)

	// ErrUnknownCid is returned when a snapshot cluster names a class id
	// that is neither a built-in variant nor a class registered in the
	// deserializing heap's class table.
	ErrUnknownCid = fmt.Errorf("%w: snapshot references an unknown class id", ErrSnapshotInvalid)
)

// Unreachable panics with msg. It marks code paths the pointer visitor,
// header decoder, or snapshot format should make impossible to reach given
// a well-formed heap; reaching one anyway means an invariant was violated
// upstream; there's nothing a caller could usefully recover from.
func Unreachable(msg string) {
	panic("heap: unreachable: " + msg)
}
