package sim

import (
	"cowfork/kernel"
	"cowfork/kernel/kfmt"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"

	"github.com/sirupsen/logrus"
)

var (
	errEnvGone = &kernel.Error{Module: "sim", Message: "calling env no longer exists", Code: kernel.CodeBadEnv}
)

// proc is the syscall interface handed to a single context. Every call is
// issued on behalf of that context.
type proc struct {
	k  *Kernel
	e  *env
	id sys.EnvID
}

var _ sys.Syscalls = (*proc)(nil)

// cur returns the env backing p. It must be called with k.mu held and the
// unlock deferred; if the env is gone the calling context halts.
func (p *proc) cur() *env {
	if p.e.id != p.id || p.e.status == sys.StatusFree {
		kfmt.Panic(errEnvGone)
	}
	return p.e
}

func (p *proc) trace(call string, fields logrus.Fields, err *kernel.Error) {
	p.k.obs.Syscall(call, err)

	entry := p.k.log.WithField("env", p.id).WithFields(fields)
	if err != nil {
		entry.WithField("error", err.Message).Debugf("sys_%s failed", call)
		return
	}
	entry.Debugf("sys_%s", call)
}

// checkVA validates a user virtual address argument.
func checkVA(virtAddr uintptr) *kernel.Error {
	if virtAddr >= mm.UTop || !mm.Aligned(virtAddr) {
		return kernel.ErrInvalid
	}
	return nil
}

// checkPerm validates a permission argument: it must request a present,
// user-accessible page and may only contain syscall flags.
func checkPerm(perm vmm.PageTableEntryFlag) *kernel.Error {
	const required = vmm.FlagUserAccessible | vmm.FlagPresent
	if perm&required != required || perm&^vmm.FlagsSyscall != 0 {
		return kernel.ErrInvalid
	}
	return nil
}

// EnvID implements sys.Syscalls.
func (p *proc) EnvID() sys.EnvID {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	return p.cur().id
}

// Cputs writes s to the kernel console, prefixed with the caller's id.
func (p *proc) Cputs(s string) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	_, _ = p.cur().console.Write([]byte(s))
}

// Exofork implements sys.Syscalls.
func (p *proc) Exofork(resume sys.Resume) (child sys.EnvID, err *kernel.Error) {
	defer func() { p.trace("exofork", logrus.Fields{"child": child}, err) }()

	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	e, err := p.k.allocEnv(p.cur().id)
	if err != nil {
		return 0, err
	}

	e.resume = resume
	return e.id, nil
}

// AllocPage implements sys.Syscalls.
func (p *proc) AllocPage(envID sys.EnvID, virtAddr uintptr, perm vmm.PageTableEntryFlag) (err *kernel.Error) {
	defer func() {
		p.trace("page_alloc", logrus.Fields{"target": envID, "va": virtAddr, "perm": perm}, err)
	}()

	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	target, err := p.k.envid2env(p.cur(), envID, true)
	if err != nil {
		return err
	}
	if err = checkVA(virtAddr); err != nil {
		return err
	}
	if err = checkPerm(perm); err != nil {
		return err
	}

	frame, err := p.k.alloc.AllocFrame()
	if err != nil {
		return kernel.ErrNoMem
	}

	if err = target.as.insert(frame, virtAddr, perm); err != nil {
		p.k.alloc.FreeUnreferenced(frame)
		return kernel.ErrNoMem
	}

	p.k.obs.SetFramesInUse(p.k.alloc.InUse())
	return nil
}

// MapPage implements sys.Syscalls.
func (p *proc) MapPage(srcEnvID sys.EnvID, srcVA uintptr, dstEnvID sys.EnvID, dstVA uintptr, perm vmm.PageTableEntryFlag) (err *kernel.Error) {
	defer func() {
		p.trace("page_map", logrus.Fields{"src": srcEnvID, "srcva": srcVA, "dst": dstEnvID, "dstva": dstVA, "perm": perm}, err)
	}()

	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	cur := p.cur()
	src, err := p.k.envid2env(cur, srcEnvID, true)
	if err != nil {
		return err
	}
	dst, err := p.k.envid2env(cur, dstEnvID, true)
	if err != nil {
		return err
	}
	if err = checkVA(srcVA); err != nil {
		return err
	}
	if err = checkVA(dstVA); err != nil {
		return err
	}
	if err = checkPerm(perm); err != nil {
		return err
	}

	srcPTE, ok := src.as.lookup(srcVA)
	if !ok {
		return kernel.ErrInvalid
	}

	// A read-only page can not be turned into a writable one.
	if perm&vmm.FlagRW != 0 && !srcPTE.HasFlags(vmm.FlagRW) {
		return kernel.ErrInvalid
	}

	if err = dst.as.insert(srcPTE.Frame(), dstVA, perm); err != nil {
		return kernel.ErrNoMem
	}

	p.k.obs.SetFramesInUse(p.k.alloc.InUse())
	return nil
}

// UnmapPage implements sys.Syscalls.
func (p *proc) UnmapPage(envID sys.EnvID, virtAddr uintptr) (err *kernel.Error) {
	defer func() { p.trace("page_unmap", logrus.Fields{"target": envID, "va": virtAddr}, err) }()

	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	target, err := p.k.envid2env(p.cur(), envID, true)
	if err != nil {
		return err
	}
	if err = checkVA(virtAddr); err != nil {
		return err
	}

	if err = target.as.remove(virtAddr); err != nil {
		return err
	}

	p.k.obs.SetFramesInUse(p.k.alloc.InUse())
	return nil
}

// SetStatus implements sys.Syscalls. A context that is marked runnable for
// the first time starts executing its resume continuation.
func (p *proc) SetStatus(envID sys.EnvID, status sys.Status) (err *kernel.Error) {
	defer func() { p.trace("env_set_status", logrus.Fields{"target": envID, "status": status}, err) }()

	if status != sys.StatusRunnable && status != sys.StatusNotRunnable {
		return kernel.ErrInvalid
	}

	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	target, err := p.k.envid2env(p.cur(), envID, true)
	if err != nil {
		return err
	}

	if target.status == sys.StatusRunning {
		// The running context keeps its goroutine; only a context that
		// has not been started yet changes state.
		return nil
	}

	target.status = status
	if status == sys.StatusRunnable {
		p.k.launch(target)
	}

	return nil
}

// SetFaultUpcall implements sys.Syscalls.
func (p *proc) SetFaultUpcall(envID sys.EnvID, upcall sys.Upcall) (err *kernel.Error) {
	defer func() { p.trace("env_set_pgfault_upcall", logrus.Fields{"target": envID}, err) }()

	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	target, err := p.k.envid2env(p.cur(), envID, true)
	if err != nil {
		return err
	}

	target.upcall = upcall
	return nil
}

// PDE implements vmm.VPT.
func (p *proc) PDE(virtAddr uintptr) vmm.PageTableEntry {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	return p.cur().as.pde(virtAddr)
}

// PTE implements vmm.VPT.
func (p *proc) PTE(virtAddr uintptr) vmm.PageTableEntry {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	return p.cur().as.pte(virtAddr)
}
