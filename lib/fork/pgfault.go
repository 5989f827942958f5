package fork

import (
	"fmt"

	"cowfork/kernel"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"
)

// privatePerm is the permission of a page once its copy-on-write fault is
// resolved.
const privatePerm = vmm.FlagUserAccessible | vmm.FlagRW | vmm.FlagPresent

// CopyOnWrite is the fault policy installed by Fork. It only resolves
// writes to copy-on-write pages; any other fault is fatal.
type CopyOnWrite struct{}

// Resolve gives the faulting context a private writable copy of the faulting
// page. The phases run in a fixed order:
//
//	stage:   allocate a frame at PFTemp
//	copy:    copy the faulting page into PFTemp
//	install: map the PFTemp frame over the faulting page
//	release: unmap PFTemp
//
// The new mapping only becomes visible at install, so the faulting page can
// not fault again while it is being copied. The phases must not be merged
// or reordered.
func (CopyOnWrite) Resolve(s sys.Syscalls, tf *sys.UTrapframe) *kernel.Error {
	page := mm.PageFromAddress(tf.FaultVA).Address()

	pte, present := vmm.Lookup(s, page)
	// Shared wins over the copy-on-write bit, as it does in Duppage.
	if !tf.Err.Has(sys.FaultWrite) || !present || vmm.Classify(pte) != vmm.CopyOnWrite {
		return &kernel.Error{
			Module:  "fork",
			Message: fmt.Sprintf("pgfault: not a write to a copy-on-write page (va %08x, err %x, pte %08x)", tf.FaultVA, uint32(tf.Err), uint32(pte)),
		}
	}

	if err := s.AllocPage(sys.Self, mm.PFTemp, privatePerm); err != nil {
		return phaseError("stage", err)
	}

	buf := make([]byte, mm.PageSize)
	s.Load(page, buf)
	s.Store(mm.PFTemp, buf)

	if err := s.MapPage(sys.Self, mm.PFTemp, sys.Self, page, privatePerm); err != nil {
		return phaseError("install", err)
	}

	if err := s.UnmapPage(sys.Self, mm.PFTemp); err != nil {
		return phaseError("release", err)
	}

	return nil
}

func phaseError(phase string, err *kernel.Error) *kernel.Error {
	return &kernel.Error{
		Module:  "fork",
		Message: fmt.Sprintf("pgfault: %s: %s", phase, err.Message),
		Code:    err.Code,
	}
}
