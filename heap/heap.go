package heap

import "fmt"

// Heap is the object-memory core: two new-space semispaces, an old space,
// a root table, and the class table every object's cid is resolved
// against. Nothing outside this package ever allocates or scans raw
// memory directly; interpreters interact with it only through Allocate,
// AddRoot/RemoveRoot, and the safe-point hooks in handle.go.
type Heap struct {
	Config HeapConfig
	Classes *classTable

	// WellKnown holds the singleton Values every interpreter needs to find
	// without a lookup: nil, true, false, and the scheduler. They stay the
	// zero Value until something populates them — New leaves a fresh heap
	// with none of these allocated, and Deserialize fills them in from the
	// snapshot's ObjectStore instance, if the snapshot carried one.
	WellKnown WellKnownObjects

	toSpace   *Region
	fromSpace *Region
	top       uintptr // next free address in toSpace
	limit     uintptr // toSpace.Limit()

	oldSpace    *Region
	oldTop      uintptr
	oldLimit    uintptr
	oldSpaceCap uintptr

	roots []Slot

	// age tracks, per from-space object address, how many scavenges it has
	// survived without being promoted. Cleared on every scavenge for the
	// addresses that get promoted or die; carried forward (at the new
	// address) for survivors that stay in new space.
	age map[uintptr]int

	rememberedSet map[uintptr]bool

	// pendingEphemerons holds finalizer Values from ephemerons whose key
	// died in any collection since the last DrainFinalizers.
	pendingEphemerons []Value

	stats Stats
}

// WellKnownObjects is the fixed set of singleton objects an interpreter
// expects to be able to reach directly, the same roots the source VM's
// ObjectStore holds: the two booleans, nil, and the process scheduler.
type WellKnownObjects struct {
	Nil       Value
	True      Value
	False     Value
	Scheduler Value
}

// Stats accumulates lifetime collection counters, exposed read-only via
// Heap.Stats for diagnostics.
type Stats struct {
	Scavenges       int
	MajorCollections int
	BytesPromoted   uintptr
	BytesCollected  uintptr
}

// New builds a Heap with the given configuration, reserving and committing
// its semispaces and old space immediately.
func New(cfg HeapConfig) (*Heap, error) {
	// IsNewSpace tests a single address bit; that only works while the
	// alignment constants keep new- and old-space objects on opposite
	// parities of it.
	if objectAlignment != 1<<objectAlignmentLog2 || newObjectAlignmentOffset != wordSize || oldObjectAlignmentOffset != 0 {
		Unreachable("object alignment constants disagree with the IsNewSpace parity test")
	}
	toSpace, err := ReserveRegion(cfg.NewSpaceSize)
	if err != nil {
		return nil, fmt.Errorf("heap: reserving to-space: %w", err)
	}
	if err := toSpace.Commit(ProtReadWrite); err != nil {
		return nil, err
	}
	fromSpace, err := ReserveRegion(cfg.NewSpaceSize)
	if err != nil {
		return nil, fmt.Errorf("heap: reserving from-space: %w", err)
	}
	if err := fromSpace.Commit(ProtReadWrite); err != nil {
		return nil, err
	}
	oldSpace, err := ReserveRegion(cfg.OldSpaceSize)
	if err != nil {
		return nil, fmt.Errorf("heap: reserving old space: %w", err)
	}
	if err := oldSpace.Commit(ProtReadWrite); err != nil {
		return nil, err
	}

	h := &Heap{
		Config:    cfg,
		Classes:   newClassTable(),
		toSpace:   toSpace,
		fromSpace: fromSpace,
		// Every object's real start address (where its header word
		// lives) carries the new/old-space parity bit described by
		// IsNewSpace, so the bump pointer for each space is pre-offset
		// here rather than re-added at every allocation.
		top:           toSpace.Base() + newObjectAlignmentOffset,
		limit:         toSpace.Limit(),
		oldSpace:      oldSpace,
		oldTop:        oldSpace.Base() + oldObjectAlignmentOffset,
		oldLimit:      oldSpace.Limit(),
		oldSpaceCap:   cfg.OldSpaceSize,
		age:           make(map[uintptr]int),
		rememberedSet: make(map[uintptr]bool),
	}
	return h, nil
}

// Close releases the heap's underlying OS mappings. The heap must not be
// used afterward.
func (h *Heap) Close() error {
	for _, r := range []*Region{h.toSpace, h.fromSpace, h.oldSpace} {
		if err := r.Free(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Heap) Stats() Stats { return h.stats }

// Allocate carves heapSize bytes (already rounded to objectAlignment) out
// of new space, scavenging once if there isn't room. It returns
// ErrOutOfMemory if the object doesn't fit even in an empty semispace.
func (h *Heap) Allocate(heapSize uintptr, cid uint32) (Value, error) {
	if heapSize > h.toSpace.Size() {
		return 0, fmt.Errorf("%w: object of %d bytes larger than new space", ErrOutOfMemory, heapSize)
	}
	addr := h.bumpAllocate(heapSize)
	if addr == 0 {
		h.Scavenge()
		addr = h.bumpAllocate(heapSize)
		if addr == 0 {
			return 0, ErrOutOfMemory
		}
	}
	storeHeader(addr, MakeHeader(heapSize, cid))
	storeWord(wordAt(addr, identityHashWordIndex), 0)
	return FromAddress(addr), nil
}

func (h *Heap) bumpAllocate(heapSize uintptr) uintptr {
	addr := h.top
	if addr+heapSize > h.limit {
		return 0
	}
	h.top += heapSize
	return addr
}

// AllocateOld allocates directly in old space, for objects a caller knows
// will be long-lived (interned literals, class metadata). The scavenger's
// promotion path does not go through here; it calls bumpAllocateOld
// directly. Triggers a major collection once before failing.
func (h *Heap) AllocateOld(heapSize uintptr, cid uint32) (Value, error) {
	addr := h.bumpAllocateOld(heapSize)
	if addr == 0 {
		// MarkSweep alone never frees bytes the bump allocator can reuse
		// (see sweep's doc comment); MarkCompact is the only mode that
		// actually makes room here.
		h.CollectMajor(MajorModeMarkCompact)
		addr = h.bumpAllocateOld(heapSize)
		if addr == 0 {
			return 0, fmt.Errorf("%w: old space exhausted", ErrOutOfMemory)
		}
	}
	storeHeader(addr, MakeHeader(heapSize, cid))
	storeWord(wordAt(addr, identityHashWordIndex), 0)
	return FromAddress(addr), nil
}

func (h *Heap) bumpAllocateOld(heapSize uintptr) uintptr {
	addr := h.oldTop
	if addr+heapSize > h.oldLimit {
		return 0
	}
	h.oldTop += heapSize
	return addr
}

// AddRoot registers slot as a GC root: its Value is treated as reachable,
// and updated in place whenever the object it refers to moves.
func (h *Heap) AddRoot(slot Slot) error {
	if h.Config.MaxRoots != 0 && len(h.roots) >= h.Config.MaxRoots {
		return ErrRootOverflow
	}
	h.roots = append(h.roots, slot)
	return nil
}

// RemoveRoot unregisters a previously added root. A no-op if slot was
// never registered.
func (h *Heap) RemoveRoot(slot Slot) {
	for i, s := range h.roots {
		if s == slot {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Walk calls visit once for every live object directly addressable right
// now: everything allocated in to-space up to the current bump pointer,
// and everything allocated in old space up to its bump pointer. It does
// not imply reachability from roots — use Scavenge or CollectMajor first if
// you want only live objects.
func (h *Heap) Walk(visit func(Value)) {
	h.walkSpace(h.toSpace.Base()+newObjectAlignmentOffset, h.top, visit)
	h.walkSpace(h.oldSpace.Base()+oldObjectAlignmentOffset, h.oldTop, visit)
}

// walkSpace visits every object between start and top, both of which must
// already be real object-start addresses (i.e. include the space's
// alignment offset), in allocation order.
func (h *Heap) walkSpace(start, top uintptr, visit func(Value)) {
	addr := start
	for addr < top {
		v := FromAddress(addr)
		sz := h.sizedHeapSize(v)
		visit(v)
		addr += sz
	}
}

// SizeOf returns v's heap size in bytes, the same value Walk uses to step
// from one object to the next.
func (h *Heap) SizeOf(v Value) uintptr { return h.sizedHeapSize(v) }

// IsOld reports whether addr lies within old space.
func (h *Heap) IsOld(addr uintptr) bool { return h.oldSpace.Contains(addr) }

// IsNew reports whether addr lies within the active (to-space) semispace.
func (h *Heap) IsNew(addr uintptr) bool { return h.toSpace.Contains(addr) }
