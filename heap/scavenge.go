package heap

// NilValue is the sentinel stored into a weak slot once its referent has
// been proven unreachable. It is bit-identical to the tagged small integer
// zero; like the tag scheme itself, this package does not give nil its own
// bit pattern, matching the original object model's choice to represent it
// as an ordinary (tagged) object rather than carve out a reserved value.
var NilValue = TagSmi(0)

// Scavenge runs one Cheney-style minor collection: every object reachable
// from the root table or the remembered set is copied out of the active
// semispace into the other one (or promoted into old space by the
// Config.PromotionAge-th scavenge it survives), and every pointer to it
// is updated in place. Objects left behind are never read again: the old
// semispace is zeroed and becomes the copy target of the next scavenge.
func (h *Heap) Scavenge() {
	h.stats.Scavenges++

	from := h.toSpace
	dest := h.fromSpace
	destBase := dest.Base() + newObjectAlignmentOffset
	destTop := destBase

	forwarded := make(map[uintptr]uintptr) // from-space addr -> new addr, this scavenge only
	pendingWeakArrays := []Value(nil)
	pendingEphemerons := []Value(nil)

	copyOut := func(v Value) Value {
		addr := v.rawAddress()
		if !from.Contains(addr) {
			return v // already in old space, or in dest from an earlier forward this scavenge
		}
		if newAddr, ok := forwarded[addr]; ok {
			return FromAddress(newAddr)
		}

		age := h.age[addr]
		sz := h.sizedHeapSize(v)
		cid := v.Header().ClassID()

		var newAddr uintptr
		promoted := age+1 >= h.Config.PromotionAge
		if promoted {
			newAddr = h.bumpAllocateOld(sz)
			if newAddr == 0 {
				// MarkSweep doesn't free anything the bump allocator can
				// reuse; only MarkCompact actually makes room mid-scavenge.
				h.CollectMajor(MajorModeMarkCompact)
				newAddr = h.bumpAllocateOld(sz)
			}
			if newAddr == 0 {
				Unreachable("old space exhausted mid-scavenge with no recovery path")
			}
			h.stats.BytesPromoted += sz
		} else {
			newAddr = destTop
			destTop += sz
		}

		copyWords(addr, newAddr, sz)
		forwarded[addr] = newAddr

		delete(h.age, addr)
		if !promoted {
			h.age[newAddr] = age + 1
		}

		// Leave a forwarding corpse so any other slot still pointing at
		// addr, scanned later, resolves to the same new location.
		storeHeader(addr, MakeHeader(0, ForwardingCorpseCid))
		storeWord(payloadWord(addr, 0), newAddr)
		storeWord(payloadWord(addr, 1), sz)

		newV := FromAddress(newAddr)

		switch cid {
		case WeakArrayCid:
			pendingWeakArrays = append(pendingWeakArrays, newV)
		case EphemeronCid:
			pendingEphemerons = append(pendingEphemerons, newV)
		}

		return newV
	}

	forwardRoot := func(s Slot) {
		v := s.Get()
		if v.IsHeap() {
			s.Set(copyOut(v))
		}
	}

	for _, r := range h.roots {
		forwardRoot(r)
	}
	for _, addr := range h.rememberedObjects() {
		owner := FromAddress(addr)
		Pointers(h, owner, forwardRoot)
		stillPointsNew := false
		Pointers(h, owner, func(s Slot) {
			v := s.Get()
			if v.IsHeap() && dest.Contains(v.rawAddress()) {
				stillPointsNew = true
			}
		})
		if !stillPointsNew {
			h.forget(owner)
		}
	}

	// Cheney scan: walk dest from its base to the advancing destTop,
	// forwarding every strong pointer found in objects already copied in.
	// destTop keeps moving as forwarding discovers more reachable objects,
	// so this loop drains the whole live set in breadth-first order.
	for scan := destBase; scan < destTop; {
		obj := FromAddress(scan)
		sz := h.sizedHeapSize(obj)
		Pointers(h, obj, forwardRoot)
		scan += sz
	}

	// Ephemerons are resolved before weak arrays: resolving an ephemeron's
	// value can itself copy out a weak array that nothing else in this
	// scavenge had discovered yet, and pendingWeakArrays is read below only
	// after that has had a chance to happen.
	dead := h.resolveEphemerons(&pendingEphemerons, from, copyOut, func() uintptr { return destTop }, func(scanFrom, scanTo uintptr) {
		for scan := scanFrom; scan < scanTo; {
			obj := FromAddress(scan)
			sz := h.sizedHeapSize(obj)
			Pointers(h, obj, forwardRoot)
			scan += sz
		}
	})
	h.pendingEphemerons = append(h.pendingEphemerons, dead...)
	h.resolveWeakArrays(pendingWeakArrays, from, copyOut)

	// Anything still aged at a from-space address died in this scavenge.
	for addr := range h.age {
		if from.Contains(addr) {
			delete(h.age, addr)
		}
	}
	from.Zero()
	h.toSpace, h.fromSpace = dest, from
	h.top = destTop
	h.limit = dest.Limit()

	h.Config.logf("scavenge #%d: %d bytes promoted", h.stats.Scavenges, h.stats.BytesPromoted)
}

// copyWords copies sz bytes (a whole number of machine words, since every
// heap object's size is alignment-rounded) from src to dst.
func copyWords(src, dst, sz uintptr) {
	n := int(sz / wordSize)
	for i := 0; i < n; i++ {
		storeWord(wordAt(dst, i), loadWord(wordAt(src, i)))
	}
}
