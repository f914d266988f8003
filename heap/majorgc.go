package heap

// MajorMode selects whether CollectMajor leaves dead old-space objects as
// holes (cheap, fragments over time) or slides survivors down to close
// the gaps (more expensive, keeps the bump allocator simple).
type MajorMode int

const (
	MajorModeMarkSweep MajorMode = iota
	MajorModeMarkCompact
)

// CollectMajor runs a full mark phase over old space (new space is
// scavenged first, since nothing in new space should be considered for
// promotion accounting during a major collection) followed by either a
// sweep or a compaction, as selected by mode.
func (h *Heap) CollectMajor(mode MajorMode) {
	h.stats.MajorCollections++
	h.Scavenge()

	marked := h.markFromRoots()

	switch mode {
	case MajorModeMarkCompact:
		h.compact(marked)
	default:
		h.sweep(marked)
	}

	h.Classes.sweepDeadClasses(marked, func(b *Behavior) uintptr {
		// Behaviors live as RegularObjects; the class table doesn't keep
		// the backing Value around once registered, so there is no
		// liveness to check beyond "was it ever registered." Treat every
		// registered class as live; unregistering happens explicitly, not
		// via GC. addrOf returning 0 tells sweepDeadClasses to skip it.
		return 0
	})

	h.Config.logf("major #%d: mode=%d marked=%d", h.stats.MajorCollections, mode, len(marked))
}

// markFromRoots returns the set of old-space addresses reachable from the
// root table and from new space (every live new-space object is itself a
// root for old-space liveness, since a scavenge just ran and nothing in
// new space is garbage).
func (h *Heap) markFromRoots() map[uintptr]bool {
	marked := make(map[uintptr]bool)
	var mark func(Value)
	mark = func(v Value) {
		if !v.IsHeap() {
			return
		}
		addr := v.rawAddress()
		if h.IsOld(addr) {
			if marked[addr] {
				return
			}
			marked[addr] = true
		} else if !h.IsNew(addr) {
			return
		}
		Pointers(h, v, func(s Slot) { mark(s.Get()) })
		WeakPointers(v, func(s Slot) {
			// Weak references never keep an object alive on their own;
			// the ephemeron/weak-array resolution already ran during the
			// scavenge above for the new-space generation. Old-space weak
			// structures are walked for liveness propagation only, never
			// for marking their referents.
		})
	}
	for _, r := range h.roots {
		mark(r.Get())
	}
	h.Walk(func(v Value) {
		if h.IsNew(v.rawAddress()) {
			mark(v)
		}
	})
	return marked
}

// sweep reclaims every unmarked old-space object by doing nothing to it:
// the bump allocator never revisits old space below oldTop, so "freeing"
// an object is purely an accounting operation against BytesCollected. It
// does not make any space available to bumpAllocateOld — callers that need
// an allocation to actually succeed after a major collection use
// MajorModeMarkCompact instead, which AllocateOld and the scavenger's
// promotion path both do. MarkSweep stays cheap and available for callers
// that only want updated Stats.
func (h *Heap) sweep(marked map[uintptr]bool) {
	var collected uintptr
	h.walkSpace(h.oldSpace.Base()+oldObjectAlignmentOffset, h.oldTop, func(v Value) {
		addr := v.rawAddress()
		if !marked[addr] {
			collected += h.sizedHeapSize(v)
		}
	})
	h.stats.BytesCollected += collected
}

// compact slides every marked old-space object down to remove the gaps
// left by dead ones, using the same forwarding-corpse mechanism the
// scavenger uses so that stale pointers from the root table or from
// surviving new-space objects resolve correctly afterward.
func (h *Heap) compact(marked map[uintptr]bool) {
	base := h.oldSpace.Base() + oldObjectAlignmentOffset
	writeAddr := base

	type move struct{ from, to, size uintptr }
	var moves []move

	h.walkSpace(base, h.oldTop, func(v Value) {
		addr := v.rawAddress()
		sz := h.sizedHeapSize(v)
		if !marked[addr] {
			return
		}
		if writeAddr != addr {
			moves = append(moves, move{addr, writeAddr, sz})
		}
		writeAddr += sz
	})

	for _, m := range moves {
		copyWords(m.from, m.to, m.size)
		storeHeader(m.from, MakeHeader(0, ForwardingCorpseCid))
		storeWord(payloadWord(m.from, 0), m.to)
		storeWord(payloadWord(m.from, 1), m.size)
	}

	fixup := func(s Slot) {
		v := s.Get()
		if !v.IsHeap() {
			return
		}
		addr := v.rawAddress()
		if !h.IsOld(addr) {
			return
		}
		if v.IsForwardingCorpse() {
			newAddr := loadWord(payloadWord(addr, 0))
			s.Set(FromAddress(newAddr))
		}
	}
	for _, r := range h.roots {
		fixup(r)
	}
	h.Walk(func(v Value) {
		Pointers(h, v, fixup)
	})

	collected := (h.oldTop - base) - (writeAddr - base)
	h.stats.BytesCollected += collected
	h.oldTop = writeAddr
}
