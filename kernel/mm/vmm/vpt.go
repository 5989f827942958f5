package vmm

import (
	"cowfork/kernel"
	"cowfork/kernel/mm"
)

// VPT is a read-only view of the calling context's page directory and page
// tables. The kernel keeps it in sync with every mapping change.
type VPT interface {
	// PDE returns the page directory entry that covers virtAddr.
	PDE(virtAddr uintptr) PageTableEntry

	// PTE returns the page table entry for virtAddr. It returns a zero
	// entry if the covering page directory entry is not present.
	PTE(virtAddr uintptr) PageTableEntry
}

// Lookup returns the page table entry for virtAddr if both the page
// directory entry and the page table entry are present.
func Lookup(vpt VPT, virtAddr uintptr) (PageTableEntry, bool) {
	if !vpt.PDE(virtAddr).HasFlags(FlagPresent) {
		return 0, false
	}

	pte := vpt.PTE(virtAddr)
	if !pte.HasFlags(FlagPresent) {
		return 0, false
	}

	return pte, true
}

// PageVisitor is invoked by Visit for every present page. If it returns an
// error the walk is aborted and the error is returned to the caller.
type PageVisitor func(page mm.Page, pte PageTableEntry) *kernel.Error

// Visit walks every page in [0, limit) in increasing address order and
// invokes visitFn for each page whose directory and table entries are both
// present. Holes are skipped silently.
func Visit(vpt VPT, limit uintptr, visitFn PageVisitor) *kernel.Error {
	for addr := uintptr(0); addr < limit; addr += mm.PageSize {
		if !vpt.PDE(addr).HasFlags(FlagPresent) {
			// Nothing mapped in this page table; jump to the last page
			// it covers so the next iteration lands on the next table.
			addr = (addr &^ (mm.PTSize - 1)) + mm.PTSize - mm.PageSize
			continue
		}

		pte := vpt.PTE(addr)
		if !pte.HasFlags(FlagPresent) {
			continue
		}

		if err := visitFn(mm.PageFromAddress(addr), pte); err != nil {
			return err
		}
	}

	return nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func Translate(vpt VPT, virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, ok := Lookup(vpt, virtAddr)
	if !ok {
		return 0, ErrInvalidMapping
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + mm.PageOffset(virtAddr), nil
}
