package heap

import "math"

func float64bits(f float64) uint64     { return math.Float64bits(f) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }

// This file gives each built-in variant a typed view over the raw word
// layout described in object.go. None of these types own memory: they are
// thin wrappers around a Value that already refers to a live heap object of
// the matching cid. Callers that don't know (or care about) the variant use
// the shared accessors in object.go and visitor.go instead.

// MintView is a boxed machine integer: a single word holding an int64 that
// didn't fit a tagged Smi.
type MintView struct{ V Value }

func AsMint(v Value) MintView { return MintView{v} }

func (m MintView) Int64() int64 {
	return int64(loadWord(payloadWord(m.V.rawAddress(), 0)))
}

func (m MintView) SetInt64(n int64) {
	storeWord(payloadWord(m.V.rawAddress(), 0), uintptr(n))
}

// Float64View is a boxed IEEE-754 double.
type Float64View struct{ V Value }

func AsFloat64(v Value) Float64View { return Float64View{v} }

func (f Float64View) Float64() float64 {
	return float64frombits(loadFloat64bits(payloadWord(f.V.rawAddress(), 0)))
}

func (f Float64View) SetFloat64(x float64) {
	storeFloat64bits(payloadWord(f.V.rawAddress(), 0), float64bits(x))
}

// BigintView is an arbitrary-precision integer too large for a Mint: a
// sign flag and a big-endian magnitude, the same representation
// math/big.Int.Bytes produces, stored inline after a length word.
type BigintView struct{ V Value }

func AsBigint(v Value) BigintView { return BigintView{v} }

func (b BigintView) Negative() bool {
	return loadValue(payloadWord(b.V.rawAddress(), 0)).UntagSmi() != 0
}

func (b BigintView) Length() int {
	return int(loadValue(payloadWord(b.V.rawAddress(), 1)).UntagSmi())
}

func (b BigintView) Magnitude() []byte {
	base := payloadWord(b.V.rawAddress(), 2)
	out := make([]byte, b.Length())
	for i := range out {
		out[i] = loadByte(base + uintptr(i))
	}
	return out
}

func (b BigintView) SetAt(i int, c byte) {
	storeByte(payloadWord(b.V.rawAddress(), 2)+uintptr(i), c)
}

// RegularObject views any fixed-slot instance: user-defined classes, and
// the built-in metadata objects (Behavior, Class, Metaclass, AbstractMixin,
// Method, Message, Thread, Scheduler, ObjectStore) that the source VM also
// represents as ordinary slotted objects rather than giving each its own
// C++ layout.
type RegularObject struct{ V Value }

func AsRegularObject(v Value) RegularObject { return RegularObject{v} }

// NumSlots reports how many instance-variable slots this object carries,
// resolved through the class table since fixed-slot objects don't encode
// their own slot count in the header.
func (o RegularObject) NumSlots(h *Heap) int {
	b := h.Classes.ClassAt(o.V.ClassID())
	if b == nil {
		return 0
	}
	return b.NumSlots
}

func (o RegularObject) Slot(i int) Value {
	return loadValue(payloadWord(o.V.rawAddress(), i))
}

func (o RegularObject) SetSlot(i int, val Value) {
	storeValue(payloadWord(o.V.rawAddress(), i), val)
}

// Well-known slot indices for the built-in metadata classes. These exist so
// that code reading Behavior.Name or Method.Selector doesn't have to spell
// out magic numbers at every call site; they carry no other meaning beyond
// RegularObject.Slot.
const (
	BehaviorSlotSuperclass = 0
	BehaviorSlotName       = 1
	BehaviorSlotNumSlots   = 2

	ClassSlotMixin = 3

	MethodSlotSelector   = 0
	MethodSlotHolder     = 1
	MethodSlotBytecode   = 2
	MethodSlotLiterals   = 3
	MethodSlotAccessMode = 4 // packed arity/access-mode bitfield, see AccessMode

	MessageSlotSelector   = 0
	MessageSlotArguments  = 1

	ObjectStoreSlotNil       = 0
	ObjectStoreSlotTrue      = 1
	ObjectStoreSlotFalse     = 2
	ObjectStoreSlotScheduler = 3
)

// AccessMode unpacks a Method's packed arity/access-mode slot. The slot is
// opaque to the heap itself (the interpreter gives it meaning); the heap
// only needs to know it's a tagged Smi so it is skipped by the pointer
// visitor like any other non-pointer payload.
type AccessMode struct {
	Arity      int
	IsPrimitive bool
}

func DecodeAccessMode(v Value) AccessMode {
	raw := v.UntagSmi()
	return AccessMode{
		Arity:       int(raw & 0xff),
		IsPrimitive: raw&0x100 != 0,
	}
}

func EncodeAccessMode(m AccessMode) Value {
	raw := int64(m.Arity & 0xff)
	if m.IsPrimitive {
		raw |= 0x100
	}
	return TagSmi(raw)
}

// ArrayView is a fixed Array: a tagged length followed by that many Value
// slots, all traced by the pointer visitor.
type ArrayView struct{ V Value }

func AsArray(v Value) ArrayView { return ArrayView{v} }

func (a ArrayView) Length() int {
	return int(loadValue(payloadWord(a.V.rawAddress(), 0)).UntagSmi())
}

func (a ArrayView) At(i int) Value {
	return loadValue(payloadWord(a.V.rawAddress(), 1+i))
}

func (a ArrayView) SetAt(i int, v Value) {
	storeValue(payloadWord(a.V.rawAddress(), 1+i), v)
}

// WeakArrayView is like ArrayView, but its element slots are weak: the
// pointer visitor does not trace them directly. During a scavenge the
// collector keeps weak arrays it has copied on a separate Go slice and
// clears or forwards their elements after the strong scan (see weak.go);
// the length slot is never repurposed.
type WeakArrayView struct{ V Value }

func AsWeakArray(v Value) WeakArrayView { return WeakArrayView{v} }

func (w WeakArrayView) Length() int {
	return int(loadValue(payloadWord(w.V.rawAddress(), 0)).UntagSmi())
}

func (w WeakArrayView) At(i int) Value {
	return loadValue(payloadWord(w.V.rawAddress(), 1+i))
}

func (w WeakArrayView) SetAt(i int, v Value) {
	storeValue(payloadWord(w.V.rawAddress(), 1+i), v)
}

func (w WeakArrayView) sizeSlotAddr() uintptr {
	return payloadWord(w.V.rawAddress(), 0)
}

func (w WeakArrayView) nextLinkRaw() Value {
	return loadValue(w.sizeSlotAddr())
}

func (w WeakArrayView) setNextLinkRaw(v Value) {
	storeValue(w.sizeSlotAddr(), v)
}

// EphemeronView is a fixed key/value/finalizer triple. The key slot is weak
// (not traced directly); value and finalizer are only traced once the
// ephemeron algorithm (ephemeron.go) has proven the key live.
type EphemeronView struct{ V Value }

func AsEphemeron(v Value) EphemeronView { return EphemeronView{v} }

func (e EphemeronView) Key() Value       { return loadValue(payloadWord(e.V.rawAddress(), 0)) }
func (e EphemeronView) SetKey(v Value)   { storeValue(payloadWord(e.V.rawAddress(), 0), v) }
func (e EphemeronView) Value() Value     { return loadValue(payloadWord(e.V.rawAddress(), 1)) }
func (e EphemeronView) SetValue(v Value) { storeValue(payloadWord(e.V.rawAddress(), 1), v) }
func (e EphemeronView) Finalizer() Value { return loadValue(payloadWord(e.V.rawAddress(), 2)) }
func (e EphemeronView) SetFinalizer(v Value) {
	storeValue(payloadWord(e.V.rawAddress(), 2), v)
}

func (e EphemeronView) nextLinkRaw() Value     { return loadValue(payloadWord(e.V.rawAddress(), 0)) }
func (e EphemeronView) setNextLinkRaw(v Value) { storeValue(payloadWord(e.V.rawAddress(), 0), v) }

// ByteArrayView is a raw byte buffer with no identity-hash semantics beyond
// the common one every object carries.
type ByteArrayView struct{ V Value }

func AsByteArray(v Value) ByteArrayView { return ByteArrayView{v} }

func (b ByteArrayView) Length() int {
	return int(loadValue(payloadWord(b.V.rawAddress(), 0)).UntagSmi())
}

func (b ByteArrayView) byteBase() uintptr {
	return payloadWord(b.V.rawAddress(), 1)
}

func (b ByteArrayView) At(i int) byte {
	return loadByte(b.byteBase() + uintptr(i))
}

func (b ByteArrayView) SetAt(i int, c byte) {
	storeByte(b.byteBase()+uintptr(i), c)
}

func (b ByteArrayView) Bytes() []byte {
	out := make([]byte, b.Length())
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

// hashUnset is the sentinel stored in a string's hash slot before
// EnsureHash has run once. 0 is reserved because it is also a valid FNV
// seed collision point we'd rather not special-case; -1 (all bits set) as
// an untagged word can never collide with a real 32-bit hash promoted into
// a uintptr.
const hashUnset = ^uintptr(0)

// ByteStringView is a byte string: length, a lazily-computed identity hash,
// then raw bytes. EnsureHash implements the same lazy FNV-1a-with-salt
// scheme ByteString::EnsureHash uses in the object model this package is
// grounded on.
type ByteStringView struct{ V Value }

func AsByteString(v Value) ByteStringView { return ByteStringView{v} }

func (s ByteStringView) Length() int {
	return int(loadValue(payloadWord(s.V.rawAddress(), 0)).UntagSmi())
}

func (s ByteStringView) hashSlotAddr() uintptr {
	return payloadWord(s.V.rawAddress(), 1)
}

func (s ByteStringView) byteBase() uintptr {
	return payloadWord(s.V.rawAddress(), 2)
}

func (s ByteStringView) At(i int) byte { return loadByte(s.byteBase() + uintptr(i)) }

func (s ByteStringView) SetAt(i int, c byte) { storeByte(s.byteBase()+uintptr(i), c) }

func (s ByteStringView) Bytes() []byte {
	out := make([]byte, s.Length())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// EnsureHash returns the string's identity hash, computing and caching it
// on first use with the process-wide string hash salt.
func (s ByteStringView) EnsureHash(salt uint32) uint32 {
	cached := loadWord(s.hashSlotAddr())
	if cached != hashUnset {
		return uint32(cached)
	}
	h := fnv1aSalted(s.Bytes(), salt)
	storeWord(s.hashSlotAddr(), uintptr(h))
	return h
}

// WideStringView is the 4-byte-per-codepoint analogue of ByteStringView.
type WideStringView struct{ V Value }

func AsWideString(v Value) WideStringView { return WideStringView{v} }

func (s WideStringView) Length() int {
	return int(loadValue(payloadWord(s.V.rawAddress(), 0)).UntagSmi())
}

func (s WideStringView) hashSlotAddr() uintptr {
	return payloadWord(s.V.rawAddress(), 1)
}

func (s WideStringView) charBase() uintptr {
	return payloadWord(s.V.rawAddress(), 2)
}

func (s WideStringView) At(i int) rune {
	return rune(loadUint32(s.charBase() + uintptr(i)*4))
}

func (s WideStringView) SetAt(i int, r rune) {
	storeUint32(s.charBase()+uintptr(i)*4, uint32(r))
}

func (s WideStringView) Runes() []rune {
	out := make([]rune, s.Length())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

func (s WideStringView) EnsureHash(salt uint32) uint32 {
	cached := loadWord(s.hashSlotAddr())
	if cached != hashUnset {
		return uint32(cached)
	}
	buf := make([]byte, 0, s.Length()*4)
	for _, r := range s.Runes() {
		buf = append(buf, byte(r), byte(r>>8), byte(r>>16), byte(r>>24))
	}
	h := fnv1aSalted(buf, salt)
	storeWord(s.hashSlotAddr(), uintptr(h))
	return h
}

func fnv1aSalted(data []byte, salt uint32) uint32 {
	const prime = 16777619
	h := uint32(2166136261) ^ salt
	for _, b := range data {
		h ^= uint32(b)
		h *= prime
	}
	if h == 0 {
		h = 1
	}
	return h
}

// ActivationTempsCapacity is the fixed number of local/temp slots an
// Activation carries inline, matching the source interpreter's frame
// layout. Activations needing more locals than this are a compile-time
// error in the surface language, not something this package enforces.
const ActivationTempsCapacity = 35

const (
	activationSlotMethod   = 0
	activationSlotClosure  = 1
	activationSlotReceiver = 2
	activationSlotSender   = 3
	activationSlotPC       = 4
	activationSlotStackPtr = 5
	activationSlotTempsBase = 6
)

// ActivationView is a method-call stack frame: fixed bookkeeping slots
// followed by a fixed-capacity temps/operand-stack buffer. StackPtr counts
// how many of the temps slots currently hold live values, the frame's
// local variables (pushed by Grow) included; Push/Pop/Drop/Grow move that
// boundary, mirroring
// Activation::Push et al.
type ActivationView struct{ V Value }

func AsActivation(v Value) ActivationView { return ActivationView{v} }

func (a ActivationView) Method() Value     { return a.slot(activationSlotMethod) }
func (a ActivationView) Closure() Value    { return a.slot(activationSlotClosure) }
func (a ActivationView) SetClosure(v Value) { a.setSlot(activationSlotClosure, v) }
func (a ActivationView) Receiver() Value   { return a.slot(activationSlotReceiver) }
func (a ActivationView) Sender() Value     { return a.slot(activationSlotSender) }
func (a ActivationView) PC() int           { return int(a.slot(activationSlotPC).UntagSmi()) }
func (a ActivationView) SetPC(pc int)      { a.setSlot(activationSlotPC, TagSmi(int64(pc))) }
func (a ActivationView) SetSender(v Value) { a.setSlot(activationSlotSender, v) }

func (a ActivationView) slot(i int) Value     { return loadValue(payloadWord(a.V.rawAddress(), i)) }
func (a ActivationView) setSlot(i int, v Value) { storeValue(payloadWord(a.V.rawAddress(), i), v) }

func (a ActivationView) StackDepth() int {
	return int(a.slot(activationSlotStackPtr).UntagSmi())
}

func (a ActivationView) setStackDepth(n int) {
	a.setSlot(activationSlotStackPtr, TagSmi(int64(n)))
}

// Stack returns the value n slots below the top of the operand stack (0 is
// the top).
func (a ActivationView) Stack(depthFromTop int) Value {
	i := activationSlotTempsBase + a.StackDepth() - 1 - depthFromTop
	return loadValue(payloadWord(a.V.rawAddress(), i))
}

func (a ActivationView) StackPut(depthFromTop int, v Value) {
	i := activationSlotTempsBase + a.StackDepth() - 1 - depthFromTop
	storeValue(payloadWord(a.V.rawAddress(), i), v)
}

// Push appends v to the top of the operand stack.
func (a ActivationView) Push(v Value) {
	if a.StackDepth() >= ActivationTempsCapacity {
		panic("heap: activation stack overflow")
	}
	i := activationSlotTempsBase + a.StackDepth()
	storeValue(payloadWord(a.V.rawAddress(), i), v)
	a.setStackDepth(a.StackDepth() + 1)
}

// Pop removes and returns the top of the operand stack.
func (a ActivationView) Pop() Value {
	v := a.Stack(0)
	a.setStackDepth(a.StackDepth() - 1)
	return v
}

// Drop discards the top n values without returning them.
func (a ActivationView) Drop(n int) {
	a.setStackDepth(a.StackDepth() - n)
}

// PopNAndPush discards the top n values, then pushes v. Used by primitive
// and message-send bytecodes that replace their arguments with a result.
func (a ActivationView) PopNAndPush(n int, v Value) {
	a.Drop(n)
	a.Push(v)
}

// Grow reserves n additional uninitialized (nil-valued) stack slots, used
// when entering a method body to make room for its declared locals.
func (a ActivationView) Grow(n int, nilValue Value) {
	for i := 0; i < n; i++ {
		a.Push(nilValue)
	}
}

const (
	closureSlotDefiningActivation = 0
	closureSlotInitialBCI         = 1
	closureSlotArgumentCount      = 2
	closureSlotNumCopied          = 3
	closureSlotCopiedBase         = 4
)

// ClosureView is a captured-activation pointer plus the bytecode index the
// closure resumes at, its argument count, and a trailing array of
// copied-down values. It carries no method slot of its own: the method is
// reached through DefiningActivation, the same way the original object
// model never duplicates it either.
type ClosureView struct{ V Value }

func AsClosure(v Value) ClosureView { return ClosureView{v} }

func (c ClosureView) DefiningActivation() Value {
	return loadValue(payloadWord(c.V.rawAddress(), closureSlotDefiningActivation))
}

func (c ClosureView) SetDefiningActivation(v Value) {
	storeValue(payloadWord(c.V.rawAddress(), closureSlotDefiningActivation), v)
}

func (c ClosureView) InitialBCI() int {
	return int(loadValue(payloadWord(c.V.rawAddress(), closureSlotInitialBCI)).UntagSmi())
}

func (c ClosureView) SetInitialBCI(pc int) {
	storeValue(payloadWord(c.V.rawAddress(), closureSlotInitialBCI), TagSmi(int64(pc)))
}

func (c ClosureView) ArgumentCount() int {
	return int(loadValue(payloadWord(c.V.rawAddress(), closureSlotArgumentCount)).UntagSmi())
}

func (c ClosureView) SetArgumentCount(n int) {
	storeValue(payloadWord(c.V.rawAddress(), closureSlotArgumentCount), TagSmi(int64(n)))
}

func (c ClosureView) NumCopied() int {
	return int(loadValue(payloadWord(c.V.rawAddress(), closureSlotNumCopied)).UntagSmi())
}

func (c ClosureView) CopiedAt(i int) Value {
	return loadValue(payloadWord(c.V.rawAddress(), closureSlotCopiedBase+i))
}

func (c ClosureView) SetCopiedAt(i int, v Value) {
	storeValue(payloadWord(c.V.rawAddress(), closureSlotCopiedBase+i), v)
}
