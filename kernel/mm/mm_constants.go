package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// PDShift is the shift that extracts the page directory index from a
	// virtual address.
	PDShift = uintptr(22)

	// EntriesPerTable is the number of entries held by a page directory or
	// a page table.
	EntriesPerTable = 1024

	// PTSize is the number of bytes mapped by a single page directory entry.
	PTSize = PageSize * EntriesPerTable
)
