package heap

// StorePointer writes v into slot and runs the write barrier: if slot lives
// in an object that's already in old space and v refers to something
// still in new space, the containing object is added to the
// remembered set so the next scavenge finds this old->new edge without
// having to scan all of old space. Every pointer-field mutation an
// interpreter performs after the initial allocation must go through this,
// not through Slot.Set directly.
func (h *Heap) StorePointer(slot Slot, owner Value, v Value) {
	slot.Set(v)
	if !v.IsHeap() {
		return
	}
	if h.IsOld(owner.rawAddress()) && h.IsNew(v.rawAddress()) {
		h.remember(owner)
	}
}

func (h *Heap) remember(owner Value) {
	addr := owner.rawAddress()
	if h.rememberedSet[addr] {
		return
	}
	h.rememberedSet[addr] = true
	owner.SetHeader(owner.Header().withRemembered(true))
}

func (h *Heap) forget(owner Value) {
	addr := owner.rawAddress()
	delete(h.rememberedSet, addr)
	owner.SetHeader(owner.Header().withRemembered(false))
}

// rememberedObjects returns the current remembered-set addresses. Used by
// the scavenger as extra scavenge roots beyond the root table.
func (h *Heap) rememberedObjects() []uintptr {
	addrs := make([]uintptr, 0, len(h.rememberedSet))
	for addr := range h.rememberedSet {
		addrs = append(addrs, addr)
	}
	return addrs
}
