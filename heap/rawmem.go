package heap

import "unsafe"

// The helpers in this file are the only place in the package that touches
// raw memory through unsafe.Pointer. Every other file addresses the heap
// exclusively through Value/Header/word-index accessors built on top of
// these.

func loadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func storeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

func loadValue(addr uintptr) Value {
	return Value(loadWord(addr))
}

func storeValue(addr uintptr, v Value) {
	storeWord(addr, uintptr(v))
}

func loadHeader(addr uintptr) Header {
	return Header(loadWord(addr))
}

func storeHeader(addr uintptr, h Header) {
	storeWord(addr, uintptr(h))
}

func loadByte(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr))
}

func storeByte(addr uintptr, b byte) {
	*(*byte)(unsafe.Pointer(addr)) = b
}

func loadUint32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

func storeUint32(addr uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(addr)) = v
}

func loadFloat64bits(addr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(addr))
}

func storeFloat64bits(addr uintptr, v uint64) {
	*(*uint64)(unsafe.Pointer(addr)) = v
}

// wordAt returns the address of the i-th machine word after base (0-based).
func wordAt(base uintptr, i int) uintptr {
	return base + uintptr(i)*wordSize
}
