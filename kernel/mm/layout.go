package mm

// User address space layout. Every context sees the same layout:
//
//	UTop  ------------------------------  0xeec00000
//	        user exception stack (1 page)
//	UXStackTop - PageSize -------------  0xeebff000
//	        invalid guard page
//	UStackTop --------------------------  0xeebfe000
//	        normal user stack, data, text; duplicated by fork
//	UTemp + PTSize ---------------------  0x00800000
//	        PFTemp staging page
//	UTemp ------------------------------  0x00400000
//	        invalid
//	0 ----------------------------------
const (
	// UTop is the first address above the user-controlled part of the
	// address space.
	UTop = uintptr(0xeec00000)

	// UXStackTop is the top of the per-context user exception stack.
	UXStackTop = UTop

	// UXStack is the address of the single exception stack page. It is
	// never shared between contexts.
	UXStack = UXStackTop - PageSize

	// UStackTop is the top of the normal user stack. Fork duplicates every
	// page below this boundary.
	UStackTop = UTop - 2*PageSize

	// UTemp is a region reserved for temporary mappings.
	UTemp = uintptr(0x00400000)

	// PFTemp is the staging slot used while resolving a copy-on-write
	// fault. It is unmapped again before the fault handler returns.
	PFTemp = UTemp + PTSize - PageSize
)

// PDX returns the page directory index for a virtual address.
func PDX(virtAddr uintptr) uint32 {
	return uint32(virtAddr>>PDShift) & (EntriesPerTable - 1)
}

// PTX returns the page table index for a virtual address.
func PTX(virtAddr uintptr) uint32 {
	return uint32(virtAddr>>PageShift) & (EntriesPerTable - 1)
}
