package heap

// resolveWeakArrays is the scavenger's weak-array pass, run once the
// strong-pointer scan has reached a fixed point. pending holds the
// already-copied (in dest) weak arrays; their element slots still contain
// raw from-space addresses because Pointers deliberately never traces
// them. For each element: if the object it names was reached by the
// strong scan (and so now carries a forwarding corpse), the slot is
// updated to the new address; otherwise the element is dead and the slot
// is cleared to NilValue.
func (h *Heap) resolveWeakArrays(pending []Value, from *Region, copyOut func(Value) Value) {
	for _, wv := range pending {
		w := AsWeakArray(wv)
		n := w.Length()
		for i := 0; i < n; i++ {
			v := w.At(i)
			if !v.IsHeap() {
				continue
			}
			addr := v.rawAddress()
			if !from.Contains(addr) {
				continue // already old space, untouched by this scavenge
			}
			if v.IsForwardingCorpse() {
				newAddr := loadWord(payloadWord(addr, 0))
				w.SetAt(i, FromAddress(newAddr))
			} else {
				w.SetAt(i, NilValue)
			}
		}
	}
	_ = copyOut
}
