package fork

import (
	"cowfork/kernel"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"

	"github.com/sirupsen/logrus"
)

var (
	errSforkUnimplemented = &kernel.Error{Module: "fork", Message: "sfork not implemented", Code: kernel.CodeUnimplemented}
)

// Fork duplicates the calling context. It installs the copy-on-write fault
// policy, creates a child and maps every present page below UStackTop into
// it. The child gets a fresh exception stack and the fault upcall, and is
// marked runnable last.
//
// The parent receives the child's id. The child starts with its own
// Process, sees a zero id on its return path and then runs child.
func (p *Process) Fork(child Entry) (sys.EnvID, *kernel.Error) {
	if err := p.SetFaultPolicy(CopyOnWrite{}); err != nil {
		return 0, err
	}

	// The child starts from a copy of our state, so self is stale until
	// branch repairs it.
	childReg := p.reg.inherit()
	id, err := p.sys.Exofork(func(s sys.Syscalls) {
		cp := &Process{sys: s, self: p.self, reg: childReg}
		cp.branch(0, nil)
		child(cp)
	})
	if err != nil {
		p.logger().WithField("error", err.Message).Warn("exofork failed")
		return 0, err
	}

	return p.branch(id, childReg)
}

// branch is the common return path of the creation primitive. A zero id
// means we are the child; anything else means we are the parent and must
// set up the child.
func (p *Process) branch(id sys.EnvID, childReg *Registration) (sys.EnvID, *kernel.Error) {
	if id == 0 {
		p.self = p.sys.EnvID()
		return 0, nil
	}

	if err := p.duplicate(id, childReg); err != nil {
		p.logger().WithFields(logrus.Fields{"child": id, "error": err.Message}).Warn("fork failed")
		return 0, err
	}

	return id, nil
}

// duplicate copies the address space and the fault handler setup into
// child and marks it runnable.
func (p *Process) duplicate(child sys.EnvID, childReg *Registration) *kernel.Error {
	var pages int
	err := vmm.Visit(p.sys, mm.UStackTop, func(page mm.Page, _ vmm.PageTableEntry) *kernel.Error {
		pages++
		return p.Duppage(child, page)
	})
	if err != nil {
		return err
	}

	// Exception stacks are never shared; a fault taken while resolving a
	// fault needs a private page that is always present.
	if err = p.sys.AllocPage(child, mm.UXStack, privatePerm); err != nil {
		return err
	}

	if err = p.sys.SetFaultUpcall(child, childReg.Entry); err != nil {
		return err
	}

	if err = p.sys.SetStatus(child, sys.StatusRunnable); err != nil {
		return err
	}

	p.logger().WithFields(logrus.Fields{"child": child, "pages": pages}).Debug("forked")
	return nil
}

// Sfork would fork a child that shares the whole address space except the
// stack. It is not implemented and always fails without side effects.
func (p *Process) Sfork(child Entry) (sys.EnvID, *kernel.Error) {
	return 0, errSforkUnimplemented
}
