package fork

import (
	"cowfork/kernel"
	"cowfork/kernel/kfmt"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"
)

// FaultPolicy resolves page faults delivered to a context. A policy that
// returns an error gets the context terminated.
type FaultPolicy interface {
	Resolve(s sys.Syscalls, tf *sys.UTrapframe) *kernel.Error
}

// Registration is the per-context fault handler record. Its Entry method is
// the upcall entry point installed in the kernel; the policy it dispatches to
// can be swapped without touching the kernel.
type Registration struct {
	Policy FaultPolicy
}

// Entry is the fault upcall. It runs on the faulting context's exception
// stack with that context's own syscall interface.
func (r *Registration) Entry(s sys.Syscalls, tf *sys.UTrapframe) {
	if err := r.Policy.Resolve(s, tf); err != nil {
		kfmt.Panic(err)
	}
}

// SetFaultPolicy installs policy as the fault handler of the calling
// context. The first call allocates the exception stack and registers the
// upcall with the kernel; later calls, including those in a child whose
// registration was installed by its parent, only swap the policy.
func (p *Process) SetFaultPolicy(policy FaultPolicy) *kernel.Error {
	if p.reg != nil {
		p.reg.Policy = policy
		return nil
	}

	reg := &Registration{Policy: policy}

	const xstackPerm = vmm.FlagUserAccessible | vmm.FlagRW | vmm.FlagPresent
	if err := p.sys.AllocPage(sys.Self, mm.UXStack, xstackPerm); err != nil {
		return err
	}

	if err := p.sys.SetFaultUpcall(sys.Self, reg.Entry); err != nil {
		return err
	}

	p.reg = reg
	return nil
}

// inherit returns the registration a child gets: a fresh record with the
// same policy.
func (r *Registration) inherit() *Registration {
	return &Registration{Policy: r.Policy}
}
