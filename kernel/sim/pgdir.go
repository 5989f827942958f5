package sim

import (
	"encoding/binary"

	"cowfork/kernel"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
)

// pteSize is the size in bytes of a page directory or page table entry.
const pteSize = 4

// pdeFlags are the flags used for page directory entries. Access checks are
// enforced at the page table level.
const pdeFlags = vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible

// addrSpace is a two-level page table rooted at a page directory frame.
// Directory and table entries are stored little-endian inside their frames,
// so the read-only page table view is a byte-for-byte mirror of what the MMU
// uses.
type addrSpace struct {
	alloc    *BitmapAllocator
	pgdir    mm.Frame
	pgdirSet bool
}

func newAddrSpace(alloc *BitmapAllocator) (*addrSpace, *kernel.Error) {
	frame, err := alloc.AllocFrame()
	if err != nil {
		return nil, err
	}
	alloc.IncRef(frame)

	return &addrSpace{alloc: alloc, pgdir: frame, pgdirSet: true}, nil
}

func (as *addrSpace) readEntry(table mm.Frame, index uint32) vmm.PageTableEntry {
	data := as.alloc.FrameData(table)
	return vmm.PageTableEntry(binary.LittleEndian.Uint32(data[index*pteSize:]))
}

func (as *addrSpace) writeEntry(table mm.Frame, index uint32, pte vmm.PageTableEntry) {
	data := as.alloc.FrameData(table)
	binary.LittleEndian.PutUint32(data[index*pteSize:], uint32(pte))
}

// pde returns the page directory entry covering virtAddr.
func (as *addrSpace) pde(virtAddr uintptr) vmm.PageTableEntry {
	return as.readEntry(as.pgdir, mm.PDX(virtAddr))
}

// pte returns the page table entry for virtAddr or a zero entry if the
// covering page table does not exist.
func (as *addrSpace) pte(virtAddr uintptr) vmm.PageTableEntry {
	pde := as.pde(virtAddr)
	if !pde.HasFlags(vmm.FlagPresent) {
		return 0
	}

	return as.readEntry(pde.Frame(), mm.PTX(virtAddr))
}

// walk returns the page table frame holding the entry for virtAddr. If the
// table does not exist and create is true, a zeroed table is allocated and
// linked into the page directory.
func (as *addrSpace) walk(virtAddr uintptr, create bool) (mm.Frame, bool, *kernel.Error) {
	pdx := mm.PDX(virtAddr)
	pde := as.readEntry(as.pgdir, pdx)
	if pde.HasFlags(vmm.FlagPresent) {
		return pde.Frame(), true, nil
	}

	if !create {
		return 0, false, nil
	}

	table, err := as.alloc.AllocFrame()
	if err != nil {
		return 0, false, err
	}
	as.alloc.IncRef(table)
	as.writeEntry(as.pgdir, pdx, vmm.MakeEntry(table, pdeFlags))

	return table, true, nil
}

// insert maps frame at virtAddr with the supplied flags, replacing any
// existing mapping. The new reference is taken before the old mapping is
// dropped so re-inserting the frame that is already mapped at virtAddr does
// not release it.
func (as *addrSpace) insert(frame mm.Frame, virtAddr uintptr, flags vmm.PageTableEntryFlag) *kernel.Error {
	table, _, err := as.walk(virtAddr, true)
	if err != nil {
		return err
	}

	as.alloc.IncRef(frame)

	ptx := mm.PTX(virtAddr)
	if old := as.readEntry(table, ptx); old.HasFlags(vmm.FlagPresent) {
		if err = as.alloc.DecRef(old.Frame()); err != nil {
			return err
		}
	}

	as.writeEntry(table, ptx, vmm.MakeEntry(frame, flags|vmm.FlagPresent))
	return nil
}

// lookup returns the page table entry for virtAddr if it is present.
func (as *addrSpace) lookup(virtAddr uintptr) (vmm.PageTableEntry, bool) {
	pte := as.pte(virtAddr)
	return pte, pte.HasFlags(vmm.FlagPresent)
}

// remove drops the mapping at virtAddr. Removing a hole is a no-op.
func (as *addrSpace) remove(virtAddr uintptr) *kernel.Error {
	table, ok, _ := as.walk(virtAddr, false)
	if !ok {
		return nil
	}

	ptx := mm.PTX(virtAddr)
	old := as.readEntry(table, ptx)
	if !old.HasFlags(vmm.FlagPresent) {
		return nil
	}

	as.writeEntry(table, ptx, 0)
	return as.alloc.DecRef(old.Frame())
}

// free drops every user mapping, every page table and the page directory.
func (as *addrSpace) free() {
	if !as.pgdirSet {
		return
	}

	for pdx := uint32(0); pdx < mm.PDX(mm.UTop); pdx++ {
		pde := as.readEntry(as.pgdir, pdx)
		if !pde.HasFlags(vmm.FlagPresent) {
			continue
		}

		table := pde.Frame()
		for ptx := uint32(0); ptx < mm.EntriesPerTable; ptx++ {
			if pte := as.readEntry(table, ptx); pte.HasFlags(vmm.FlagPresent) {
				_ = as.alloc.DecRef(pte.Frame())
			}
		}

		as.writeEntry(as.pgdir, pdx, 0)
		_ = as.alloc.DecRef(table)
	}

	_ = as.alloc.DecRef(as.pgdir)
	as.pgdirSet = false
}
