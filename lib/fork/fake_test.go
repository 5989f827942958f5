package fork

import (
	"fmt"

	"cowfork/kernel"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"
)

// fakeSys is a recording sys.Syscalls used to unit test the fork library
// without a kernel. Mappings of the calling context are kept in ptes and
// page contents in mem, both keyed by page address.
type fakeSys struct {
	id      sys.EnvID
	ptes    map[uintptr]vmm.PageTableEntry
	mem     map[mm.Frame][]byte
	calls   []string
	failOn  map[string]*kernel.Error
	console string

	nextFrame mm.Frame
	childID   sys.EnvID
	resume    sys.Resume
	upcalls   map[sys.EnvID]sys.Upcall
}

func newFakeSys(id sys.EnvID) *fakeSys {
	return &fakeSys{
		id:        id,
		ptes:      make(map[uintptr]vmm.PageTableEntry),
		mem:       make(map[mm.Frame][]byte),
		failOn:    make(map[string]*kernel.Error),
		nextFrame: 100,
		childID:   0x1001,
		upcalls:   make(map[sys.EnvID]sys.Upcall),
	}
}

func (f *fakeSys) record(format string, args ...interface{}) *kernel.Error {
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)

	var name string
	fmt.Sscan(call, &name)
	return f.failOn[name]
}

func (f *fakeSys) mapSelf(va uintptr, pte vmm.PageTableEntry) {
	f.ptes[mm.PageFromAddress(va).Address()] = pte
}

func (f *fakeSys) PDE(virtAddr uintptr) vmm.PageTableEntry {
	for va := range f.ptes {
		if mm.PDX(va) == mm.PDX(virtAddr) {
			return vmm.MakeEntry(1, vmm.FlagPresent|vmm.FlagRW|vmm.FlagUserAccessible)
		}
	}
	return 0
}

func (f *fakeSys) PTE(virtAddr uintptr) vmm.PageTableEntry {
	return f.ptes[mm.PageFromAddress(virtAddr).Address()]
}

func (f *fakeSys) frameData(frame mm.Frame) []byte {
	if f.mem[frame] == nil {
		f.mem[frame] = make([]byte, mm.PageSize)
	}
	return f.mem[frame]
}

func (f *fakeSys) Load(virtAddr uintptr, p []byte) {
	pte := f.PTE(virtAddr)
	copy(p, f.frameData(pte.Frame())[mm.PageOffset(virtAddr):])
}

func (f *fakeSys) Store(virtAddr uintptr, p []byte) {
	pte := f.PTE(virtAddr)
	copy(f.frameData(pte.Frame())[mm.PageOffset(virtAddr):], p)
}

func (f *fakeSys) EnvID() sys.EnvID {
	return f.id
}

func (f *fakeSys) Exofork(resume sys.Resume) (sys.EnvID, *kernel.Error) {
	if err := f.record("exofork"); err != nil {
		return 0, err
	}
	f.resume = resume
	return f.childID, nil
}

func (f *fakeSys) AllocPage(env sys.EnvID, virtAddr uintptr, perm vmm.PageTableEntryFlag) *kernel.Error {
	if err := f.record("alloc %s %08x %03x", env, virtAddr, uint32(perm)); err != nil {
		return err
	}
	if env == sys.Self {
		f.mapSelf(virtAddr, vmm.MakeEntry(f.nextFrame, perm))
		f.nextFrame++
	}
	return nil
}

func (f *fakeSys) MapPage(srcEnv sys.EnvID, srcVA uintptr, dstEnv sys.EnvID, dstVA uintptr, perm vmm.PageTableEntryFlag) *kernel.Error {
	if err := f.record("map %s %08x %s %08x %03x", srcEnv, srcVA, dstEnv, dstVA, uint32(perm)); err != nil {
		return err
	}
	if srcEnv == sys.Self && dstEnv == sys.Self {
		f.mapSelf(dstVA, vmm.MakeEntry(f.PTE(srcVA).Frame(), perm))
	}
	return nil
}

func (f *fakeSys) UnmapPage(env sys.EnvID, virtAddr uintptr) *kernel.Error {
	if err := f.record("unmap %s %08x", env, virtAddr); err != nil {
		return err
	}
	if env == sys.Self {
		delete(f.ptes, mm.PageFromAddress(virtAddr).Address())
	}
	return nil
}

func (f *fakeSys) SetStatus(env sys.EnvID, status sys.Status) *kernel.Error {
	return f.record("status %s %s", env, status)
}

func (f *fakeSys) SetFaultUpcall(env sys.EnvID, upcall sys.Upcall) *kernel.Error {
	if err := f.record("upcall %s", env); err != nil {
		return err
	}
	f.upcalls[env] = upcall
	return nil
}

func (f *fakeSys) Cputs(s string) {
	f.console += s
}
