package heap

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
)

// Serialize writes a self-describing snapshot of every object reachable
// from roots to w. It never touches unreachable objects: a snapshot is a
// reachability-closed subgraph, not a dump of the whole heap, the same
// way the image writer this package is modeled on only walks from the VM's
// own globals and class table rather than scanning raw memory.
func (h *Heap) Serialize(w io.Writer, roots []Value) error {
	order, index := discoverOrder(h, roots)

	var body bytes.Buffer
	writeClassTable(&body, h, order)
	for _, v := range order {
		if err := writeCluster(&body, h, v, index); err != nil {
			return err
		}
	}

	var out bytes.Buffer
	preamble := make([]byte, snapshotPreambleLen)
	copy(preamble[0:4], snapshotMagic)
	binary.BigEndian.PutUint16(preamble[4:6], snapshotVersion)
	preamble[6] = byte(wordSize)
	preamble[7] = snapshotBigEndian
	binary.BigEndian.PutUint32(preamble[8:12], uint32(len(order)))
	binary.BigEndian.PutUint32(preamble[12:16], 0)
	out.Write(preamble)
	out.Write(body.Bytes())

	sum := crc32.ChecksumIEEE(out.Bytes())
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], sum)
	out.Write(trailer[:])

	_, err := w.Write(out.Bytes())
	return err
}

// discoverOrder runs a breadth-first traversal from roots and returns every
// reachable heap object in first-visit order, along with the index each
// was assigned. Smis are never added: they're written inline wherever they
// appear, never as a separate cluster.
func discoverOrder(h *Heap, roots []Value) ([]Value, map[Value]int) {
	index := make(map[Value]int)
	var order []Value

	var enqueue func(Value)
	queue := make([]Value, 0, len(roots))
	enqueue = func(v Value) {
		if !v.IsHeap() {
			return
		}
		if _, seen := index[v]; seen {
			return
		}
		index[v] = len(order)
		order = append(order, v)
		queue = append(queue, v)
	}

	for _, r := range roots {
		enqueue(r)
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		Pointers(h, v, func(s Slot) { enqueue(s.Get()) })
		WeakPointers(v, func(s Slot) { enqueue(s.Get()) })
		if v.Header().ClassID() == EphemeronCid {
			e := AsEphemeron(v)
			enqueue(e.Value())
			enqueue(e.Finalizer())
		}
	}
	return order, index
}

func writeUvarint(b *bytes.Buffer, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	b.Write(buf[:n])
}

func writeRef(b *bytes.Buffer, v Value, index map[Value]int) {
	writeUvarint(b, encodeRef(v, func(v Value) (int, bool) {
		i, ok := index[v]
		return i, ok
	}))
}

// writeClassTable emits a Behavior entry for every regular-object cid that
// appears in order, so a deserializing heap can resolve ClassOf for those
// objects without having separately bootstrapped the same classes itself.
func writeClassTable(b *bytes.Buffer, h *Heap, order []Value) {
	seen := make(map[uint32]bool)
	var cids []uint32
	for _, v := range order {
		cid := v.Header().ClassID()
		if cid < FirstRegularObjectCid || seen[cid] {
			continue
		}
		seen[cid] = true
		cids = append(cids, cid)
	}

	writeUvarint(b, uint64(len(cids)))
	for _, cid := range cids {
		bh := h.Classes.ClassAt(cid)
		if bh == nil {
			Unreachable("writeClassTable: serialized object with unregistered cid")
		}
		writeUvarint(b, uint64(cid))
		writeUvarint(b, uint64(bh.NumSlots))
		writeUvarint(b, uint64(len(bh.Name)))
		b.WriteString(bh.Name)
	}
}

func writeCluster(b *bytes.Buffer, h *Heap, v Value, index map[Value]int) error {
	cid := v.Header().ClassID()
	writeUvarint(b, uint64(cid))
	writeUvarint(b, uint64(v.IdentityHash()))

	switch cid {
	case MintCid:
		writeUvarint(b, zigzag(AsMint(v).Int64()))

	case Float64Cid:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], float64bits(AsFloat64(v).Float64()))
		b.Write(buf[:])

	case BigintCid:
		big := AsBigint(v)
		if big.Negative() {
			writeUvarint(b, 1)
		} else {
			writeUvarint(b, 0)
		}
		mag := big.Magnitude()
		writeUvarint(b, uint64(len(mag)))
		b.Write(mag)

	case ByteArrayCid:
		ba := AsByteArray(v)
		writeUvarint(b, uint64(ba.Length()))
		b.Write(ba.Bytes())

	case ByteStringCid:
		s := AsByteString(v)
		writeUvarint(b, uint64(s.Length()))
		writeUvarint(b, uint64(loadWord(s.hashSlotAddr())))
		b.Write(s.Bytes())

	case WideStringCid:
		s := AsWideString(v)
		n := s.Length()
		writeUvarint(b, uint64(n))
		writeUvarint(b, uint64(loadWord(s.hashSlotAddr())))
		for i := 0; i < n; i++ {
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], uint32(s.At(i)))
			b.Write(buf[:])
		}

	case ArrayCid:
		a := AsArray(v)
		n := a.Length()
		writeUvarint(b, uint64(n))
		for i := 0; i < n; i++ {
			writeRef(b, a.At(i), index)
		}

	case WeakArrayCid:
		w := AsWeakArray(v)
		n := w.Length()
		writeUvarint(b, uint64(n))
		for i := 0; i < n; i++ {
			writeRef(b, w.At(i), index)
		}

	case EphemeronCid:
		e := AsEphemeron(v)
		writeRef(b, e.Key(), index)
		writeRef(b, e.Value(), index)
		writeRef(b, e.Finalizer(), index)

	case ActivationCid:
		a := AsActivation(v)
		writeRef(b, a.Method(), index)
		writeRef(b, a.Closure(), index)
		writeRef(b, a.Receiver(), index)
		writeRef(b, a.Sender(), index)
		writeUvarint(b, zigzag(int64(a.PC())))
		depth := a.StackDepth()
		writeUvarint(b, uint64(depth))
		for i := depth - 1; i >= 0; i-- {
			writeRef(b, a.Stack(i), index)
		}

	case ClosureCid:
		c := AsClosure(v)
		writeRef(b, c.DefiningActivation(), index)
		writeUvarint(b, zigzag(int64(c.InitialBCI())))
		writeUvarint(b, zigzag(int64(c.ArgumentCount())))
		n := c.NumCopied()
		writeUvarint(b, uint64(n))
		for i := 0; i < n; i++ {
			writeRef(b, c.CopiedAt(i), index)
		}

	default:
		ro := AsRegularObject(v)
		n := ro.NumSlots(h)
		writeUvarint(b, uint64(n))
		for i := 0; i < n; i++ {
			writeRef(b, ro.Slot(i), index)
		}
	}
	return nil
}
