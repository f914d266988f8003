package heap

// Object alignment. All objects are aligned to twice the word size; the low
// bit of that extra word is what IsNewSpace/IsOldSpace test.
const (
	objectAlignment     = 2 * wordSize
	objectAlignmentMask = objectAlignment - 1
	objectAlignmentLog2 = 4 // log2(16) for an 8-byte word

	newObjectAlignmentOffset = wordSize
	oldObjectAlignmentOffset = 0
)

// roundToAlignment rounds size up to the next multiple of objectAlignment.
func roundToAlignment(size uintptr) uintptr {
	return (size + objectAlignmentMask) &^ objectAlignmentMask
}

// Header bit positions, mirroring the source's HeaderBits enum exactly so a
// reader who knows the original layout recognizes this one. Only remembered
// is set by the heap itself (the major collector tracks marks in a side
// map, not in markBit); the rest keep their position but are never set by
// this package.
const (
	markBit               = 0
	rememberedBit         = 1
	canonicalBit          = 2
	inClassTableBit       = 3
	watchedBit            = 4
	shallowImmutabilityBit = 5
	deepImmutabilityBit   = 6
	reservedBit           = 7

	sizeFieldOffset = 16
	sizeFieldSize   = 16

	classIdFieldOffset = 32
	classIdFieldSize   = 32
)

// bitField describes a fixed-width bitfield within a header word.
type bitField struct {
	shift uint
	size  uint
}

func (f bitField) mask() uintptr {
	return (uintptr(1)<<f.size - 1) << f.shift
}

func (f bitField) decode(word uintptr) uintptr {
	return (word & f.mask()) >> f.shift
}

func (f bitField) update(value, word uintptr) uintptr {
	return (word &^ f.mask()) | ((value << f.shift) & f.mask())
}

// isValid reports whether value fits in the field without truncation.
func (f bitField) isValid(value uintptr) bool {
	return value <= (uintptr(1)<<f.size - 1)
}

var (
	markField            = bitField{markBit, 1}
	rememberedField       = bitField{rememberedBit, 1}
	canonicalField        = bitField{canonicalBit, 1}
	inClassTableField     = bitField{inClassTableBit, 1}
	watchedField          = bitField{watchedBit, 1}
	shallowImmutableField = bitField{shallowImmutabilityBit, 1}
	deepImmutableField    = bitField{deepImmutabilityBit, 1}
	reservedField         = bitField{reservedBit, 1}
	sizeField             = bitField{sizeFieldOffset, sizeFieldSize}
	classIdField          = bitField{classIdFieldOffset, classIdFieldSize}
)

// Header is an object's first word: mark/remembered/canonical/... flags,
// a size tag (in units of objectAlignment, 0 meaning "derive from class"),
// and a class id.
type Header uintptr

// MakeHeader builds a fresh, unmarked header for an object of the given
// aligned heap size and class id. If heapSize doesn't fit the size field,
// the size tag is left at zero and the class id must be one the pointer
// visitor and size calculator can derive a size for (array-like objects,
// numeric boxes).
func MakeHeader(heapSize uintptr, cid uint32) Header {
	sizeTag := heapSize >> objectAlignmentLog2
	if !sizeField.isValid(sizeTag) {
		sizeTag = 0
	}
	var h uintptr
	h = sizeField.update(sizeTag, h)
	h = classIdField.update(uintptr(cid), h)
	return Header(h)
}

func (h Header) Mark() bool            { return markField.decode(uintptr(h)) != 0 }
func (h Header) Remembered() bool      { return rememberedField.decode(uintptr(h)) != 0 }
func (h Header) Canonical() bool       { return canonicalField.decode(uintptr(h)) != 0 }
func (h Header) InClassTable() bool    { return inClassTableField.decode(uintptr(h)) != 0 }
func (h Header) Watched() bool         { return watchedField.decode(uintptr(h)) != 0 }
func (h Header) ShallowImmutable() bool { return shallowImmutableField.decode(uintptr(h)) != 0 }
func (h Header) DeepImmutable() bool   { return deepImmutableField.decode(uintptr(h)) != 0 }
func (h Header) Reserved() bool        { return reservedField.decode(uintptr(h)) != 0 }

func (h Header) SizeTag() uintptr { return sizeField.decode(uintptr(h)) }
func (h Header) ClassID() uint32  { return uint32(classIdField.decode(uintptr(h))) }

// HeapSize returns the object's aligned size in bytes from its size tag, or
// 0 if the size tag is the "derive from class" sentinel.
func (h Header) HeapSize() uintptr { return h.SizeTag() << objectAlignmentLog2 }

func setBit(f bitField, value bool, h Header) Header {
	var v uintptr
	if value {
		v = 1
	}
	return Header(f.update(v, uintptr(h)))
}

func (h Header) withMark(v bool) Header       { return setBit(markField, v, h) }
func (h Header) withRemembered(v bool) Header { return setBit(rememberedField, v, h) }
func (h Header) withCanonical(v bool) Header  { return setBit(canonicalField, v, h) }
func (h Header) withClassID(cid uint32) Header {
	return Header(classIdField.update(uintptr(cid), uintptr(h)))
}
