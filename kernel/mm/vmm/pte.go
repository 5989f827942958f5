package vmm

import (
	"cowfork/kernel"
	"cowfork/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// ptePhysPageMask is a mask that allows us to extract the physical memory
// address pointed to by a page table entry. Bits 12-31 contain the physical
// frame address.
const ptePhysPageMask = uint32(0xfffff000)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint32

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set if when using 4Mb pages instead of 4K pages.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal
)

const (
	// FlagsAvailable covers the three bits that the MMU and the kernel
	// leave to user space.
	FlagsAvailable PageTableEntryFlag = 0xe00

	// FlagShared marks a page that must always be mapped identically into
	// every context; it is never copy-on-write.
	FlagShared PageTableEntryFlag = 0x400

	// FlagCopyOnWrite is used to implement copy-on-write functionality. This
	// flag and FlagRW are mutually exclusive.
	FlagCopyOnWrite PageTableEntryFlag = 0x800

	// FlagsSyscall is the set of flags that the page mapping syscalls
	// accept. Anything outside this set is rejected.
	FlagsSyscall = FlagsAvailable | FlagPresent | FlagRW | FlagUserAccessible

	// flagsMask covers every flag bit of an entry.
	flagsMask = PageTableEntryFlag(0xfff)
)

// PageTableEntry describes a page table entry. These entries encode
// a physical frame address and a set of flags.
type PageTableEntry uint32

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) &^ uint32(flags))
}

// Flags returns the flag bits of this entry.
func (pte PageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(pte) & flagsMask
}

// Frame returns the physical page frame that this page table entry points to.
func (pte PageTableEntry) Frame() mm.Frame {
	return mm.Frame((uint32(pte) & ptePhysPageMask) >> mm.PageShift)
}

// SetFrame updates the page table entry to point the the given physical frame .
func (pte *PageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (PageTableEntry)((uint32(*pte) &^ ptePhysPageMask) | uint32(frame.Address()))
}

// MakeEntry returns an entry pointing to frame with the supplied flags.
func MakeEntry(frame mm.Frame, flags PageTableEntryFlag) PageTableEntry {
	var pte PageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(flags & flagsMask)
	return pte
}
