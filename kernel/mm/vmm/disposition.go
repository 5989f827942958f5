package vmm

// Disposition describes how fork treats a single mapped page.
type Disposition uint8

const (
	// ReadOnly pages are mapped into the child with the same frame and no
	// write access. Neither side can write so nothing ever diverges.
	ReadOnly Disposition = iota

	// Exclusive pages are writable and owned by a single context. Fork
	// turns them into CopyOnWrite pages on both sides.
	Exclusive

	// CopyOnWrite pages are already shared lazily with some other context.
	CopyOnWrite

	// Shared pages are mapped verbatim into the child, including write
	// access, and stay coherent across contexts.
	Shared
)

var dispositionNames = [...]string{
	ReadOnly:    "read-only",
	Exclusive:   "exclusive",
	CopyOnWrite: "copy-on-write",
	Shared:      "shared",
}

// String implements fmt.Stringer.
func (d Disposition) String() string {
	if int(d) < len(dispositionNames) {
		return dispositionNames[d]
	}
	return "unknown"
}

// Classify returns the disposition of a present page table entry. The
// Shared bit is checked first so a shared page is never treated as
// copy-on-write.
func Classify(pte PageTableEntry) Disposition {
	switch {
	case pte.HasFlags(FlagShared):
		return Shared
	case pte.HasFlags(FlagCopyOnWrite):
		return CopyOnWrite
	case pte.HasFlags(FlagRW):
		return Exclusive
	default:
		return ReadOnly
	}
}

// ChildFlags returns the flags used when mapping a page with this
// disposition into the new context. pte is the source entry; only Shared
// pages inherit its flags.
func (d Disposition) ChildFlags(pte PageTableEntry) PageTableEntryFlag {
	switch d {
	case Shared:
		return pte.Flags() & FlagsSyscall
	case Exclusive, CopyOnWrite:
		return FlagUserAccessible | FlagPresent | FlagCopyOnWrite
	default:
		return FlagUserAccessible | FlagPresent
	}
}

// RemapsSource returns true if the source mapping must be rewritten after
// the child mapping is in place. It holds for every page that ends up
// copy-on-write, including pages that already were: once a second owner
// exists, both sides must fault on their next write.
func (d Disposition) RemapsSource() bool {
	return d == Exclusive || d == CopyOnWrite
}

// SourceFlags returns the flags the source mapping is rewritten with when
// RemapsSource is true.
func (d Disposition) SourceFlags() PageTableEntryFlag {
	return FlagUserAccessible | FlagPresent | FlagCopyOnWrite
}
