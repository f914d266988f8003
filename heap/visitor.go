package heap

// Slot is the address of a single word that holds a Value. It is the unit
// both the garbage collector and the snapshot serializer operate on: a
// slice of Slots is "every place a pointer might need fixing up," whether
// that fix-up is a scavenge forwarding address or a back-reference being
// resolved during deserialization.
type Slot uintptr

func (s Slot) Get() Value     { return loadValue(uintptr(s)) }
func (s Slot) Set(v Value)    { storeValue(uintptr(s), v) }

// Pointers calls visit once for every strong pointer slot in the object v
// refers to, in slot order. It is the single shared definition of "what
// counts as a reference" that the scavenger, the major collector, and the
// snapshot writer all walk — grounded on the dispatch-by-cid shape of the
// pointer-visitation pass in the source object model. Weak references
// (WeakArray elements, an Ephemeron's key) are deliberately excluded; call
// WeakPointers for those.
func Pointers(h *Heap, v Value, visit func(Slot)) {
	addr := v.rawAddress()
	cid := v.Header().ClassID()

	visitSlots := func(base uintptr, n int) {
		for i := 0; i < n; i++ {
			visit(Slot(wordAt(base, i)))
		}
	}

	switch cid {
	case SmiCid, MintCid, BigintCid, Float64Cid, ByteArrayCid, ByteStringCid, WideStringCid:
		// No pointer payload: numeric boxes and raw buffers are leaves.
		return

	case ArrayCid:
		n := AsArray(v).Length()
		visitSlots(payloadWord(addr, 1), n)

	case WeakArrayCid:
		// The length/link slot itself is never a pointer; elements are
		// weak and handled by WeakPointers instead.
		return

	case EphemeronCid:
		e := AsEphemeron(v)
		_ = e
		// Key is weak (see WeakPointers); value and finalizer are strong
		// but only become reachable once the ephemeron algorithm marks the
		// key live, so the scavenger/marker visits them explicitly rather
		// than through this generic path. Nothing to do here.
		return

	case ActivationCid:
		visitSlots(payloadWord(addr, activationSlotMethod), activationSlotTempsBase)
		a := AsActivation(v)
		visitSlots(payloadWord(addr, activationSlotTempsBase), a.StackDepth())

	case ClosureCid:
		c := AsClosure(v)
		visitSlots(payloadWord(addr, closureSlotDefiningActivation), closureSlotCopiedBase-closureSlotDefiningActivation+c.NumCopied())

	default:
		// A regular, fixed-slot object: every slot is a pointer.
		b := h.Classes.ClassAt(cid)
		n := 0
		if b != nil {
			n = b.NumSlots
		}
		visitSlots(payloadWord(addr, 0), n)
	}
}

// WeakPointers calls visit for every weak slot in v: a WeakArray's
// elements, or an Ephemeron's key. These are never traced by Pointers;
// weak.go and ephemeron.go decide their fate during a collection.
func WeakPointers(v Value, visit func(Slot)) {
	switch v.Header().ClassID() {
	case WeakArrayCid:
		w := AsWeakArray(v)
		n := w.Length()
		for i := 0; i < n; i++ {
			visit(Slot(wordAt(w.V.rawAddress(), firstPayloadWordIndex+1+i)))
		}
	case EphemeronCid:
		e := AsEphemeron(v)
		visit(Slot(payloadWord(e.V.rawAddress(), 0)))
	}
}
