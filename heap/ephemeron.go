package heap

// resolveEphemerons runs the ephemeron fixed-point pass: an ephemeron's
// value and finalizer only become reachable once its key is proven
// reachable by some other path, and proving that can itself make more
// objects reachable (including other ephemerons' keys), so the pass
// repeats until a full round makes no further progress. This mirrors the
// work-list formulation called for by the shared pointer-visitation
// design rather than a naive recursive walk, which could revisit the same
// ephemeron arbitrarily many times on a long chain.
//
// rescan is called with the [from, to) byte range of any newly copied
// objects so the caller's Cheney scan picks up their strong pointers too.
// resolveEphemerons returns the finalizer Value of every ephemeron whose
// key was proven dead this round, for the interpreter to later collect via
// Heap.DrainFinalizers.
//
// pending is a pointer to the caller's work list, not a snapshot of it:
// resolving one ephemeron's value can itself discover a new ephemeron (one
// reachable only through another ephemeron's value, never through a root
// or the strong-pointer scan), and copyOut appends that new ephemeron to
// the same backing slice the caller holds. Taking pending by value would
// freeze the work list at call time and silently drop that ephemeron from
// the fixed-point loop.
func (h *Heap) resolveEphemerons(pending *[]Value, from *Region, copyOut func(Value) Value, destTop func() uintptr, rescan func(uintptr, uintptr)) []Value {
	resolved := make(map[int]bool)

	for {
		progress := false
		for i := 0; i < len(*pending); i++ {
			if resolved[i] {
				continue
			}
			e := AsEphemeron((*pending)[i])
			key := e.Key()
			if !key.IsHeap() {
				resolved[i] = true
				continue
			}
			addr := key.rawAddress()
			keyAlive := !from.Contains(addr) || key.IsForwardingCorpse()
			if !keyAlive {
				continue // try again next round; might become alive via another ephemeron's value
			}

			if from.Contains(addr) {
				newAddr := loadWord(payloadWord(addr, 0))
				e.SetKey(FromAddress(newAddr))
			}

			before := destTop()
			e.SetValue(copyOut(e.Value()))
			e.SetFinalizer(copyOut(e.Finalizer()))
			after := destTop()
			if after > before {
				rescan(before, after)
			}

			resolved[i] = true
			progress = true
		}
		if !progress {
			break
		}
	}

	var dead []Value
	for i, ev := range *pending {
		if resolved[i] {
			continue
		}
		e := AsEphemeron(ev)
		before := destTop()
		fin := copyOut(e.Finalizer())
		if after := destTop(); after > before {
			rescan(before, after)
		}
		e.SetFinalizer(fin)
		dead = append(dead, fin)
		e.SetKey(NilValue)
	}
	return dead
}
