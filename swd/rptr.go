package swd

// Addr is a typed 32-bit target address (§9 "Typed target addresses"):
// the source's parameterized rptr<T> abstraction, expressed here as a
// dedicated type with element-unit arithmetic rather than a bare
// uint32, so a target address and a host offset can never be mixed up
// by the compiler. Addr never dereferences on the host — every MEM-AP
// operation takes an Addr, not a host reference.
type Addr uint32

// Size is the width of the pointee an Addr refers to, mirroring the
// source's word_t/halfword_t/byte_t distinction.
type Size int

const (
	SizeByte     Size = 1
	SizeHalfword Size = 2
	SizeWord     Size = 4
)

// Add advances addr by n elements of the given size, in element units —
// the pointer arithmetic §9 calls for.
func (a Addr) Add(n int, sz Size) Addr {
	return a + Addr(n*int(sz))
}

// AlignedDown returns addr rounded down to a sz-aligned boundary.
func (a Addr) AlignedDown(sz Size) Addr {
	mask := Addr(sz) - 1
	return a &^ mask
}

// Aligned reports whether addr is naturally aligned for sz.
func (a Addr) Aligned(sz Size) bool {
	return a&Addr(sz-1) == 0
}
