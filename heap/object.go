package heap

// Every heap object's first two words are fixed: a Header and an
// identity-hash slot. Everything after that is variant-specific payload,
// described by the per-cid accessors in object_variants.go.
const (
	headerWordIndex        = 0
	identityHashWordIndex  = 1
	firstPayloadWordIndex  = 2
)

// Header returns the header word of the heap object v refers to.
func (v Value) Header() Header {
	return loadHeader(v.rawAddress())
}

// SetHeader overwrites the header word in place.
func (v Value) SetHeader(h Header) {
	storeHeader(v.rawAddress(), h)
}

// IdentityHash returns the object's cached identity-hash slot, or 0 if one
// hasn't been assigned yet.
func (v Value) IdentityHash() uintptr {
	return loadWord(wordAt(v.rawAddress(), identityHashWordIndex))
}

// SetIdentityHash overwrites the identity-hash slot.
func (v Value) SetIdentityHash(hash uintptr) {
	storeWord(wordAt(v.rawAddress(), identityHashWordIndex), hash)
}

// ClassID returns the class id of v: SmiCid for small integers, or the
// object header's class id for heap references.
func (v Value) ClassID() uint32 {
	if v.IsSmi() {
		return SmiCid
	}
	return v.Header().ClassID()
}

// IsForwardingCorpse reports whether v's target has already been relocated
// during the scavenge in progress.
func (v Value) IsForwardingCorpse() bool {
	return v.IsHeap() && v.Header().ClassID() == ForwardingCorpseCid
}

// payloadWord returns the address of the i-th payload word (0-based, after
// header and identity hash).
func payloadWord(addr uintptr, i int) uintptr {
	return wordAt(addr, firstPayloadWordIndex+i)
}

// sizedHeapSize resolves an object's true heap size, falling back to the
// cid-specific derivation when the header's size tag is the zero sentinel.
func (h *Heap) sizedHeapSize(v Value) uintptr {
	tagged := v.Header().HeapSize()
	if tagged != 0 {
		return tagged
	}
	return h.heapSizeFromClass(v)
}

// heapSizeFromClass computes the heap size of a variable-size built-in
// object whose size isn't encoded in the header's size field (because it
// overflowed sizeFieldSize bits). Matches Object::HeapSizeFromClass in the
// source object model.
func (h *Heap) heapSizeFromClass(v Value) uintptr {
	addr := v.rawAddress()
	cid := v.Header().ClassID()
	switch cid {
	case ArrayCid, WeakArrayCid:
		n := loadValue(payloadWord(addr, 0)).UntagSmi()
		return roundToAlignment(uintptr(firstPayloadWordIndex+1+int(n)) * wordSize)
	case ByteArrayCid:
		n := loadValue(payloadWord(addr, 0)).UntagSmi()
		return roundToAlignment(uintptr(firstPayloadWordIndex+1)*wordSize + uintptr(n))
	case BigintCid:
		n := loadValue(payloadWord(addr, 1)).UntagSmi()
		return roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(n))
	case ByteStringCid:
		n := loadValue(payloadWord(addr, 0)).UntagSmi()
		return roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(n))
	case WideStringCid:
		n := loadValue(payloadWord(addr, 0)).UntagSmi()
		return roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(n)*4)
	case ForwardingCorpseCid:
		return loadWord(payloadWord(addr, 1))
	default:
		panic("heap: heapSizeFromClass called on a cid with no zero-size-tag form")
	}
}
