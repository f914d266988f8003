package heap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// rawCluster holds one object's parsed-but-unresolved wire record: every
// pointer field is still a raw encodedRef uvarint, because resolving it to
// a Value requires the full object table, which isn't built until every
// cluster's size has been read and every object allocated.
type rawCluster struct {
	cid  uint32
	hash uint64

	intVal   int64
	floatBits uint64
	bigNeg   bool
	bigMag   []byte
	bytes    []byte
	hashSlot uint64
	runes    []rune

	pc         int64
	stackDepth int

	closureInitialBCI    int64
	closureArgumentCount int64

	refs []uint64 // element/slot/copied-value refs, in wire order
}

// Deserialize reads a snapshot produced by Serialize and rebuilds its
// object graph in h's old space, returning every rebuilt object in
// snapshot table order. The table starts with the distinct heap Values of
// the roots slice originally passed to Serialize, in that order (small
// integers and repeated roots get no entry of their own), followed by the
// rest of the reachable graph.
func (h *Heap) Deserialize(r io.Reader) ([]Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotTruncated, err)
	}
	if len(data) < snapshotPreambleLen+4 {
		return nil, fmt.Errorf("%w: shorter than a preamble+trailer", ErrSnapshotInvalid)
	}

	body := data[:len(data)-4]
	wantSum := binary.BigEndian.Uint32(data[len(data)-4:])
	if gotSum := crc32.ChecksumIEEE(body); gotSum != wantSum {
		return nil, ErrSnapshotBadChecksum
	}

	preamble := body[:snapshotPreambleLen]
	if string(preamble[0:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: got %q", ErrSnapshotBadMagic, preamble[0:4])
	}
	version := binary.BigEndian.Uint16(preamble[4:6])
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSnapshotBadVersion, version, snapshotVersion)
	}
	gotWordSize := preamble[6]
	if gotWordSize != byte(wordSize) {
		return nil, fmt.Errorf("%w: snapshot word size %d, this build uses %d", ErrSnapshotWordMismatch, gotWordSize, wordSize)
	}
	count := binary.BigEndian.Uint32(preamble[8:12])

	br := bytes.NewReader(body[snapshotPreambleLen:])
	if err := readClassTable(br, h); err != nil {
		return nil, fmt.Errorf("%w: class table: %v", ErrSnapshotTruncated, err)
	}

	rawClusters := make([]rawCluster, count)
	for i := range rawClusters {
		rc, err := readRawCluster(br, h)
		if err != nil {
			return nil, fmt.Errorf("%w: cluster %d: %v", ErrSnapshotTruncated, i, err)
		}
		rawClusters[i] = rc
	}

	table := make([]Value, count)
	for i, rc := range rawClusters {
		v, err := h.allocateFromCluster(rc)
		if err != nil {
			return nil, fmt.Errorf("heap: allocating snapshot object %d: %w", i, err)
		}
		table[i] = v
	}

	for i, rc := range rawClusters {
		if err := h.fillCluster(table[i], rc, table); err != nil {
			return nil, fmt.Errorf("heap: filling snapshot object %d: %w", i, err)
		}
	}

	h.installWellKnown(table)

	roots := make([]Value, len(table))
	copy(roots, table)
	return roots, nil
}

// readClassTable installs the regular-object classes a snapshot's writer
// recorded into h's class table, at the same cids they held in the source
// heap, before any cluster referencing those cids is parsed.
func readClassTable(r *bytes.Reader, h *Heap) error {
	n, err := readUvarint(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		cid, err := readUvarint(r)
		if err != nil {
			return err
		}
		numSlots, err := readUvarint(r)
		if err != nil {
			return err
		}
		nameLen, err := readUvarint(r)
		if err != nil {
			return err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return err
		}
		h.Classes.registerAt(uint32(cid), &Behavior{Name: string(nameBuf), NumSlots: int(numSlots)})
	}
	return nil
}

// installWellKnown looks for an ObjectStore instance among the objects a
// snapshot just rebuilt and, if one is present, populates h.WellKnown from
// its nil/true/false/scheduler slots per spec.md's deserialization step 2.
// Snapshots that never serialized an ObjectStore (most test fixtures) leave
// h.WellKnown at its zero value.
func (h *Heap) installWellKnown(table []Value) {
	b, ok := h.Classes.ByName("ObjectStore")
	if !ok {
		return
	}
	for _, v := range table {
		if v.Header().ClassID() != b.Cid {
			continue
		}
		ro := AsRegularObject(v)
		h.WellKnown.Nil = ro.Slot(ObjectStoreSlotNil)
		h.WellKnown.True = ro.Slot(ObjectStoreSlotTrue)
		h.WellKnown.False = ro.Slot(ObjectStoreSlotFalse)
		h.WellKnown.Scheduler = ro.Slot(ObjectStoreSlotScheduler)
		return
	}
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func readRawCluster(r *bytes.Reader, h *Heap) (rawCluster, error) {
	var rc rawCluster
	cid, err := readUvarint(r)
	if err != nil {
		return rc, err
	}
	rc.cid = uint32(cid)
	hash, err := readUvarint(r)
	if err != nil {
		return rc, err
	}
	rc.hash = hash

	readRef := func() (uint64, error) { return readUvarint(r) }
	readBytes := func(n int) ([]byte, error) {
		buf := make([]byte, n)
		_, err := io.ReadFull(r, buf)
		return buf, err
	}

	switch rc.cid {
	case MintCid:
		raw, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.intVal = unzigzag(raw)

	case Float64Cid:
		buf, err := readBytes(8)
		if err != nil {
			return rc, err
		}
		rc.floatBits = binary.BigEndian.Uint64(buf)

	case BigintCid:
		neg, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.bigNeg = neg != 0
		n, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		if rc.bigMag, err = readBytes(int(n)); err != nil {
			return rc, err
		}

	case ByteArrayCid:
		n, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		if rc.bytes, err = readBytes(int(n)); err != nil {
			return rc, err
		}

	case ByteStringCid:
		n, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		if rc.hashSlot, err = readUvarint(r); err != nil {
			return rc, err
		}
		if rc.bytes, err = readBytes(int(n)); err != nil {
			return rc, err
		}

	case WideStringCid:
		n, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		if rc.hashSlot, err = readUvarint(r); err != nil {
			return rc, err
		}
		rc.runes = make([]rune, n)
		for i := range rc.runes {
			buf, err := readBytes(4)
			if err != nil {
				return rc, err
			}
			rc.runes[i] = rune(binary.BigEndian.Uint32(buf))
		}

	case ArrayCid, WeakArrayCid:
		n, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.refs = make([]uint64, n)
		for i := range rc.refs {
			if rc.refs[i], err = readRef(); err != nil {
				return rc, err
			}
		}

	case EphemeronCid:
		rc.refs = make([]uint64, 3)
		for i := range rc.refs {
			var err error
			if rc.refs[i], err = readRef(); err != nil {
				return rc, err
			}
		}

	case ActivationCid:
		rc.refs = make([]uint64, 4)
		for i := range rc.refs {
			var err error
			if rc.refs[i], err = readRef(); err != nil {
				return rc, err
			}
		}
		pc, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.pc = unzigzag(pc)
		depth, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.stackDepth = int(depth)
		for i := 0; i < rc.stackDepth; i++ {
			ref, err := readRef()
			if err != nil {
				return rc, err
			}
			rc.refs = append(rc.refs, ref)
		}

	case ClosureCid:
		rc.refs = make([]uint64, 1)
		for i := range rc.refs {
			var err error
			if rc.refs[i], err = readRef(); err != nil {
				return rc, err
			}
		}
		bci, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.closureInitialBCI = unzigzag(bci)
		argc, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.closureArgumentCount = unzigzag(argc)
		n, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		for i := uint64(0); i < n; i++ {
			ref, err := readRef()
			if err != nil {
				return rc, err
			}
			rc.refs = append(rc.refs, ref)
		}
		rc.stackDepth = int(n) // reused to carry NumCopied through to fillCluster

	default:
		if h.Classes.ClassAt(rc.cid) == nil {
			return rc, fmt.Errorf("%w: cid %d", ErrUnknownCid, rc.cid)
		}
		n, err := readUvarint(r)
		if err != nil {
			return rc, err
		}
		rc.refs = make([]uint64, n)
		for i := range rc.refs {
			if rc.refs[i], err = readRef(); err != nil {
				return rc, err
			}
		}
	}
	return rc, nil
}

func (h *Heap) allocateFromCluster(rc rawCluster) (Value, error) {
	var size uintptr
	switch rc.cid {
	case MintCid, Float64Cid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+1) * wordSize)
	case BigintCid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(len(rc.bigMag)))
	case ByteArrayCid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+1)*wordSize + uintptr(len(rc.bytes)))
	case ByteStringCid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(len(rc.bytes)))
	case WideStringCid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+2)*wordSize + uintptr(len(rc.runes))*4)
	case ArrayCid, WeakArrayCid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+1+len(rc.refs)) * wordSize)
	case EphemeronCid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+3) * wordSize)
	case ActivationCid:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+activationSlotTempsBase+ActivationTempsCapacity) * wordSize)
	case ClosureCid:
		numCopied := rc.stackDepth
		size = roundToAlignment(uintptr(firstPayloadWordIndex+closureSlotCopiedBase+numCopied) * wordSize)
	default:
		size = roundToAlignment(uintptr(firstPayloadWordIndex+len(rc.refs)) * wordSize)
	}

	v, err := h.AllocateOld(size, rc.cid)
	if err != nil {
		return 0, err
	}
	v.SetIdentityHash(uintptr(rc.hash))
	return v, nil
}

func (h *Heap) fillCluster(v Value, rc rawCluster, table []Value) error {
	var resolveErr error
	resolve := func(raw uint64) Value {
		val, err := decodeRef(raw, table)
		if err != nil && resolveErr == nil {
			resolveErr = err
		}
		return val
	}
	switch rc.cid {
	case MintCid:
		AsMint(v).SetInt64(rc.intVal)

	case Float64Cid:
		AsFloat64(v).SetFloat64(float64frombits(rc.floatBits))

	case BigintCid:
		b := AsBigint(v)
		neg := TagSmi(0)
		if rc.bigNeg {
			neg = TagSmi(1)
		}
		storeValue(payloadWord(v.rawAddress(), 0), neg)
		storeValue(payloadWord(v.rawAddress(), 1), TagSmi(int64(len(rc.bigMag))))
		for i, c := range rc.bigMag {
			b.SetAt(i, c)
		}

	case ByteArrayCid:
		storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(len(rc.bytes))))
		ba := AsByteArray(v)
		for i, c := range rc.bytes {
			ba.SetAt(i, c)
		}

	case ByteStringCid:
		storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(len(rc.bytes))))
		storeWord(payloadWord(v.rawAddress(), 1), uintptr(rc.hashSlot))
		s := AsByteString(v)
		for i, c := range rc.bytes {
			s.SetAt(i, c)
		}

	case WideStringCid:
		storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(len(rc.runes))))
		storeWord(payloadWord(v.rawAddress(), 1), uintptr(rc.hashSlot))
		s := AsWideString(v)
		for i, c := range rc.runes {
			s.SetAt(i, c)
		}

	case ArrayCid:
		storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(len(rc.refs))))
		a := AsArray(v)
		for i, ref := range rc.refs {
			a.SetAt(i, resolve(ref))
		}

	case WeakArrayCid:
		storeValue(payloadWord(v.rawAddress(), 0), TagSmi(int64(len(rc.refs))))
		w := AsWeakArray(v)
		for i, ref := range rc.refs {
			w.SetAt(i, resolve(ref))
		}

	case EphemeronCid:
		e := AsEphemeron(v)
		e.SetKey(resolve(rc.refs[0]))
		e.SetValue(resolve(rc.refs[1]))
		e.SetFinalizer(resolve(rc.refs[2]))

	case ActivationCid:
		a := AsActivation(v)
		a.setSlot(activationSlotMethod, resolve(rc.refs[0]))
		a.SetClosure(resolve(rc.refs[1]))
		a.setSlot(activationSlotReceiver, resolve(rc.refs[2]))
		a.SetSender(resolve(rc.refs[3]))
		a.SetPC(int(rc.pc))
		a.setStackDepth(0)
		for i := 0; i < rc.stackDepth; i++ {
			a.Push(resolve(rc.refs[4+i]))
		}

	case ClosureCid:
		c := AsClosure(v)
		c.SetDefiningActivation(resolve(rc.refs[0]))
		c.SetInitialBCI(int(rc.closureInitialBCI))
		c.SetArgumentCount(int(rc.closureArgumentCount))
		numCopied := rc.stackDepth
		storeValue(payloadWord(v.rawAddress(), closureSlotNumCopied), TagSmi(int64(numCopied)))
		for i := 0; i < numCopied; i++ {
			c.SetCopiedAt(i, resolve(rc.refs[1+i]))
		}

	default:
		ro := AsRegularObject(v)
		for i, ref := range rc.refs {
			ro.SetSlot(i, resolve(ref))
		}
	}
	return resolveErr
}
