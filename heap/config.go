package heap

// HeapConfig fixes the sizes and knobs a Heap is built with. There is no
// file or environment-variable form: callers that want configurability
// build a HeapConfig themselves the way the image reader/writer pair this
// package is modeled on builds its options from constructor arguments, not
// from ambient state.
type HeapConfig struct {
	// NewSpaceSize is the size, in bytes, of each of the two semispaces
	// that make up new space. Rounded up to a page.
	NewSpaceSize uintptr

	// OldSpaceSize is the maximum size, in bytes, old space is allowed to
	// grow to before a major collection is forced rather than expanding.
	OldSpaceSize uintptr

	// MaxRoots bounds the root table. Zero means unbounded (grows as
	// needed).
	MaxRoots int

	// PromotionAge is the number of scavenges a from-space object survives
	// before it is promoted to old space instead of being copied to the
	// other semispace again.
	PromotionAge int

	// StringHashSalt is a salt an embedder can pass to
	// ByteStringView/WideStringView.EnsureHash, which take the salt as an
	// argument; the heap itself never reads this field. Two runs that pass
	// the same salt produce identical hashes.
	StringHashSalt uint32

	// Logf, if non-nil, receives one line per scavenge and major
	// collection, mirroring the verbose-GC line the registry-level
	// collector this package is modeled on prints when enabled. Nil by
	// default: the heap never logs on its own.
	Logf func(format string, args ...any)
}

// DefaultConfig returns reasonable defaults for interactive use and tests:
// a 1 MiB new space, a 16 MiB old-space ceiling, an unbounded root table,
// and promotion after two survived scavenges.
func DefaultConfig() HeapConfig {
	return HeapConfig{
		NewSpaceSize:   1 << 20,
		OldSpaceSize:   16 << 20,
		MaxRoots:       0,
		PromotionAge:   2,
		StringHashSalt: 0x9e3779b9,
	}
}

func (c HeapConfig) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}
