// Package heap implements the object-memory core of a small class-based,
// message-passing virtual machine: tagged values, header-encoded object
// metadata, a generational moving collector with weak references and
// ephemerons, and the pointer-visitation machinery shared by the collector
// and the snapshot (de)serializer.
//
// Everything outside this package — the bytecode dispatch loop, primitive
// operations, and the CLI entry points — is a collaborator that drives the
// heap through Allocate, the root table, and the safe-point hooks in
// handle.go. The heap never assumes such a collaborator exists; it only
// assumes single-threaded, cooperative use (see Heap.Scavenge and
// Heap.CollectMajor).
package heap
