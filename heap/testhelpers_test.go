package heap

import "testing"

// newTestHeap builds a Heap sized for quick, deterministic tests: small
// enough that a handful of objects is meaningful, but tests trigger
// collections explicitly via Scavenge/CollectMajor rather than relying on
// allocation pressure, since Region rounds every reservation up to a
// full page regardless of the requested size.
func newTestHeap(t testing.TB) *Heap {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NewSpaceSize = 4096
	cfg.OldSpaceSize = 1 << 16
	cfg.PromotionAge = 2
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func allocArray(t testing.TB, h *Heap, elems []Value) Value {
	t.Helper()
	n := len(elems)
	size := roundToAlignment(uintptr(firstPayloadWordIndex+1+n) * wordSize)
	v, err := h.Allocate(size, ArrayCid)
	if err != nil {
		t.Fatalf("allocArray: %v", err)
	}
	storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(n)))
	a := AsArray(v)
	for i, e := range elems {
		a.SetAt(i, e)
	}
	return v
}

func allocWeakArray(t testing.TB, h *Heap, elems []Value) Value {
	t.Helper()
	n := len(elems)
	size := roundToAlignment(uintptr(firstPayloadWordIndex+1+n) * wordSize)
	v, err := h.Allocate(size, WeakArrayCid)
	if err != nil {
		t.Fatalf("allocWeakArray: %v", err)
	}
	storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(n)))
	w := AsWeakArray(v)
	for i, e := range elems {
		w.SetAt(i, e)
	}
	return v
}

func allocByteString(t testing.TB, h *Heap, s string) Value {
	t.Helper()
	n := len(s)
	size := roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(n))
	v, err := h.Allocate(size, ByteStringCid)
	if err != nil {
		t.Fatalf("allocByteString: %v", err)
	}
	storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(n)))
	storeWord(payloadWord(v.rawAddress(), 1), hashUnset)
	bs := AsByteString(v)
	for i := 0; i < n; i++ {
		bs.SetAt(i, s[i])
	}
	return v
}

func allocRegular(t testing.TB, h *Heap, cid uint32, slots []Value) Value {
	t.Helper()
	n := len(slots)
	size := roundToAlignment(uintptr(firstPayloadWordIndex+n) * wordSize)
	v, err := h.Allocate(size, cid)
	if err != nil {
		t.Fatalf("allocRegular: %v", err)
	}
	ro := AsRegularObject(v)
	for i, s := range slots {
		ro.SetSlot(i, s)
	}
	return v
}

func allocEphemeron(t testing.TB, h *Heap, key, value, finalizer Value) Value {
	t.Helper()
	size := roundToAlignment(uintptr(firstPayloadWordIndex+3) * wordSize)
	v, err := h.Allocate(size, EphemeronCid)
	if err != nil {
		t.Fatalf("allocEphemeron: %v", err)
	}
	e := AsEphemeron(v)
	e.SetKey(key)
	e.SetValue(value)
	e.SetFinalizer(finalizer)
	return v
}

func allocMint(t testing.TB, h *Heap, n int64) Value {
	t.Helper()
	size := roundToAlignment(uintptr(firstPayloadWordIndex+1) * wordSize)
	v, err := h.Allocate(size, MintCid)
	if err != nil {
		t.Fatalf("allocMint: %v", err)
	}
	AsMint(v).SetInt64(n)
	return v
}

func allocFloat64(t testing.TB, h *Heap, f float64) Value {
	t.Helper()
	size := roundToAlignment(uintptr(firstPayloadWordIndex+1) * wordSize)
	v, err := h.Allocate(size, Float64Cid)
	if err != nil {
		t.Fatalf("allocFloat64: %v", err)
	}
	AsFloat64(v).SetFloat64(f)
	return v
}

func allocBigint(t testing.TB, h *Heap, negative bool, magnitude []byte) Value {
	t.Helper()
	n := len(magnitude)
	size := roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(n))
	v, err := h.Allocate(size, BigintCid)
	if err != nil {
		t.Fatalf("allocBigint: %v", err)
	}
	sign := int64(0)
	if negative {
		sign = 1
	}
	storeValue(payloadWord(v.rawAddress(), 0), TagSmi(sign))
	storeValue(payloadWord(v.rawAddress(), 1), TagSmi(int64(n)))
	b := AsBigint(v)
	for i, c := range magnitude {
		b.SetAt(i, c)
	}
	return v
}

func allocWideString(t testing.TB, h *Heap, s string) Value {
	t.Helper()
	runes := []rune(s)
	n := len(runes)
	size := roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(n)*4)
	v, err := h.Allocate(size, WideStringCid)
	if err != nil {
		t.Fatalf("allocWideString: %v", err)
	}
	storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(n)))
	storeWord(payloadWord(v.rawAddress(), 1), hashUnset)
	ws := AsWideString(v)
	for i, r := range runes {
		ws.SetAt(i, r)
	}
	return v
}

func allocActivation(t testing.TB, h *Heap, method, closure, receiver, sender Value) Value {
	t.Helper()
	size := roundToAlignment(uintptr(firstPayloadWordIndex+activationSlotTempsBase+ActivationTempsCapacity) * wordSize)
	v, err := h.Allocate(size, ActivationCid)
	if err != nil {
		t.Fatalf("allocActivation: %v", err)
	}
	a := AsActivation(v)
	a.setSlot(activationSlotMethod, method)
	a.SetClosure(closure)
	a.setSlot(activationSlotReceiver, receiver)
	a.setSlot(activationSlotSender, sender)
	a.SetPC(0)
	a.setStackDepth(0)
	return v
}

func allocClosure(t testing.TB, h *Heap, definingActivation Value, initialBCI, argumentCount int, copied []Value) Value {
	t.Helper()
	n := len(copied)
	size := roundToAlignment(uintptr(firstPayloadWordIndex+closureSlotCopiedBase+n) * wordSize)
	v, err := h.Allocate(size, ClosureCid)
	if err != nil {
		t.Fatalf("allocClosure: %v", err)
	}
	c := AsClosure(v)
	c.SetDefiningActivation(definingActivation)
	c.SetInitialBCI(initialBCI)
	c.SetArgumentCount(argumentCount)
	storeValue(payloadWord(v.rawAddress(), closureSlotNumCopied), TagSmi(int64(n)))
	for i, cv := range copied {
		c.SetCopiedAt(i, cv)
	}
	return v
}
