// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

// These constants are verified via unit tests.
const (
	// sizeOfCacheLine is the size of a CPU cache line.
	// 64 bytes is standard for x86-64, but adjacent-line prefetching pulls
	// pairs of lines, and Apple Silicon uses 128 bytes, so we use 128.
	sizeOfCacheLine = 128

	// sizeOfAtomicUint64 is the size of an atomic.Uint64 variable.
	sizeOfAtomicUint64 = 8

	// sizeOfAtomicUint32 is the size of an atomic.Uint32 variable.
	sizeOfAtomicUint32 = 4

	// sizeOfAtomicPointer is the size of an atomic.Pointer variable.
	sizeOfAtomicPointer = 8

	// sizeOfAtomicBool is the size of an atomic.Bool variable.
	sizeOfAtomicBool = 4

	// sizeOfInterface is the size of an interface value (any).
	sizeOfInterface = 16
)
