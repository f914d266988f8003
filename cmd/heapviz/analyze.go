package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/chazu/soupheap/heap"
)

type censusRow struct {
	ClassName string `cbor:"className"`
	Count     int    `cbor:"count"`
	Bytes     uint64 `cbor:"bytes"`
}

type edge struct {
	From, To string
}

type analysisResult struct {
	census []censusRow
	edges  []edge

	// adjacency maps a class name to the set of class names it directly
	// references, used only by shortestPath.
	adjacency map[string]map[string]bool
}

// analyzeConfig sizes the scratch heap used to hold a deserialized
// snapshot. Snapshots produced by Serialize are reachability-closed, so
// this only needs to be big enough for the snapshot's own object count,
// not for a live mutator's working set.
func analyzeConfig() heap.HeapConfig {
	cfg := heap.DefaultConfig()
	cfg.NewSpaceSize = 4 << 20
	cfg.OldSpaceSize = 256 << 20
	return cfg
}

func analyze(r io.Reader) (*analysisResult, error) {
	h, err := heap.New(analyzeConfig())
	if err != nil {
		return nil, fmt.Errorf("setting up scratch heap: %w", err)
	}
	defer h.Close()

	roots, err := h.Deserialize(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	_ = roots

	counts := make(map[string]int)
	bytes := make(map[string]uint64)
	var edges []edge
	adjacency := make(map[string]map[string]bool)

	nameOf := func(v heap.Value) string {
		cid := v.ClassID()
		if b := h.ClassOf(v); b != nil {
			return b.Name
		}
		return builtinClassName(cid)
	}

	h.Walk(func(v heap.Value) {
		name := nameOf(v)
		counts[name]++
		bytes[name] += uint64(h.SizeOf(v))

		if adjacency[name] == nil {
			adjacency[name] = make(map[string]bool)
		}
		heap.Pointers(h, v, func(s heap.Slot) {
			target := s.Get()
			if !target.IsHeap() {
				return
			}
			tname := nameOf(target)
			edges = append(edges, edge{From: name, To: tname})
			adjacency[name][tname] = true
		})
	})

	rows := make([]censusRow, 0, len(counts))
	for name, n := range counts {
		rows = append(rows, censusRow{ClassName: name, Count: n, Bytes: bytes[name]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Bytes > rows[j].Bytes })

	return &analysisResult{census: rows, edges: edges, adjacency: adjacency}, nil
}

func builtinClassName(cid uint32) string {
	switch cid {
	case heap.SmiCid:
		return "SmallInteger"
	case heap.MintCid:
		return "MediumInteger"
	case heap.BigintCid:
		return "LargeInteger"
	case heap.Float64Cid:
		return "Float"
	case heap.ByteArrayCid:
		return "ByteArray"
	case heap.ByteStringCid:
		return "ByteString"
	case heap.WideStringCid:
		return "WideString"
	case heap.ArrayCid:
		return "Array"
	case heap.WeakArrayCid:
		return "WeakArray"
	case heap.EphemeronCid:
		return "Ephemeron"
	case heap.ActivationCid:
		return "Activation"
	case heap.ClosureCid:
		return "Closure"
	default:
		return fmt.Sprintf("<cid %d>", cid)
	}
}

// shortestPath runs a breadth-first search over the edge adjacency built
// during analyze, returning the sequence of class names from "from" to
// "to" (inclusive) that a garbage collector's trace would follow to prove
// "to" reachable through "from"'s instances.
func (r *analysisResult) shortestPath(from, to string) ([]string, bool) {
	if from == to {
		return []string{from}, true
	}
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range r.adjacency[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var path []string
				for n := to; n != ""; n = prev[n] {
					path = append([]string{n}, path...)
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}
