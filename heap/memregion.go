package heap

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrOutOfAddressSpace is returned when the OS cannot satisfy a Reserve
// request.
var ErrOutOfAddressSpace = errors.New("heap: out of address space")

// Protection is the access mode requested for a committed Region.
type Protection int

const (
	ProtNone Protection = iota
	ProtReadOnly
	ProtReadWrite
	ProtReadExecute
)

func (p Protection) unixProt() int {
	switch p {
	case ProtNone:
		return unix.PROT_NONE
	case ProtReadOnly:
		return unix.PROT_READ
	case ProtReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	case ProtReadExecute:
		return unix.PROT_READ | unix.PROT_EXEC
	default:
		return unix.PROT_NONE
	}
}

// Region is a page-aligned span of virtual address space reserved directly
// from the OS via an anonymous mapping, not from the Go allocator. The heap
// builds its semispaces and old space on top of Regions so that object
// addresses are real, stable machine addresses the Go runtime's own
// collector never moves or reclaims out from under us.
type Region struct {
	mem  []byte // backing mapping; len(mem) == size
	base uintptr
	size uintptr
}

// ReserveRegion reserves size bytes of address space, rounded up to a page,
// with no access permitted until Commit is called.
func ReserveRegion(size uintptr) (*Region, error) {
	pageSize := uintptr(unix.Getpagesize())
	aligned := (size + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(-1, 0, int(aligned), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfAddressSpace, err)
	}
	return &Region{
		mem:  mem,
		base: uintptr(unsafe.Pointer(&mem[0])),
		size: aligned,
	}, nil
}

// Commit changes the protection of the entire region. The region must have
// been reserved with ReserveRegion; regions are never resized.
func (r *Region) Commit(prot Protection) error {
	if err := unix.Mprotect(r.mem, prot.unixProt()); err != nil {
		return fmt.Errorf("heap: mprotect failed: %w", err)
	}
	return nil
}

// Free releases the region back to the OS. The region must not be used
// afterward.
func (r *Region) Free() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	r.base = 0
	r.size = 0
	return err
}

// Base returns the region's starting address.
func (r *Region) Base() uintptr { return r.base }

// Size returns the region's size in bytes.
func (r *Region) Size() uintptr { return r.size }

// Limit returns the address one past the end of the region.
func (r *Region) Limit() uintptr { return r.base + r.size }

// Contains reports whether addr falls within [Base, Limit).
func (r *Region) Contains(addr uintptr) bool {
	return addr >= r.base && addr < r.Limit()
}

// Zero clears the full region to zero bytes. Used when retiring a
// from-space semispace after a scavenge, so a dangling pointer into it
// reads as all-zero rather than stale object data.
func (r *Region) Zero() {
	for i := range r.mem {
		r.mem[i] = 0
	}
}
