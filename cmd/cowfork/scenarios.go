package main

import (
	"runtime"

	"cowfork/kernel"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"
	"cowfork/lib/fork"
)

const (
	// dataVA holds the page each scenario forks.
	dataVA = uintptr(0x00800000)

	// doneVA is a shared page the child uses to signal its parent.
	doneVA = uintptr(0x00801000)

	// holeVA is never mapped.
	holeVA = uintptr(0x00900000)

	forktreeDepth = 3

	userRW = vmm.FlagUserAccessible | vmm.FlagRW | vmm.FlagPresent
)

type scenario struct {
	desc string
	run  func(p *fork.Process) *kernel.Error
}

var scenarios = map[string]scenario{
	"cow":      {"parent and child diverge after writing a copy-on-write page", runCOW},
	"forktree": {"every context forks two children down to depth 3", runForkTree},
	"shared":   {"a shared page stays coherent across fork", runShared},
	"readonly": {"a read-only page is shared without faults", runReadOnly},
	"hole":     {"a fault on an unmapped page kills the child", runHole},
	"sfork":    {"sfork fails without side effects", runSfork},
}

func loadByte(s sys.Syscalls, va uintptr) byte {
	var b [1]byte
	s.Load(va, b[:])
	return b[0]
}

func storeByte(s sys.Syscalls, va uintptr, v byte) {
	s.Store(va, []byte{v})
}

// allocSignal maps the shared page a child uses to report completion.
func allocSignal(p *fork.Process) *kernel.Error {
	return p.Sys().AllocPage(sys.Self, doneVA, userRW|vmm.FlagShared)
}

func signal(p *fork.Process) {
	storeByte(p.Sys(), doneVA, 1)
}

func waitSignal(p *fork.Process) {
	for loadByte(p.Sys(), doneVA) == 0 {
		runtime.Gosched()
	}
}

func runCOW(p *fork.Process) *kernel.Error {
	s := p.Sys()
	if err := s.AllocPage(sys.Self, dataVA, userRW); err != nil {
		return err
	}
	if err := allocSignal(p); err != nil {
		return err
	}
	storeByte(s, dataVA, 0x11)

	child, err := p.Fork(func(cp *fork.Process) {
		cs := cp.Sys()
		cp.Printf("child: read %#x\n", loadByte(cs, dataVA))
		storeByte(cs, dataVA, 0x22)
		cp.Printf("child: wrote %#x, frame %d\n", loadByte(cs, dataVA), cs.PTE(dataVA).Frame())
		signal(cp)
	})
	if err != nil {
		return err
	}

	waitSignal(p)
	p.Printf("parent: child %s done, read %#x, frame %d\n", child, loadByte(s, dataVA), s.PTE(dataVA).Frame())

	storeByte(s, dataVA, 0x33)
	p.Printf("parent: wrote %#x, frame %d\n", loadByte(s, dataVA), s.PTE(dataVA).Frame())
	return nil
}

func runForkTree(p *fork.Process) *kernel.Error {
	forktree(p, "")
	return nil
}

// forktree prints the branch string of p and forks two children that append
// "0" and "1" to it. A failed fork is reported and the tree stops growing
// there.
func forktree(p *fork.Process, cur string) {
	p.Printf("I am '%s'\n", cur)
	if len(cur) >= forktreeDepth {
		return
	}

	for _, branch := range []string{"0", "1"} {
		next := cur + branch
		if _, err := p.Fork(func(cp *fork.Process) { forktree(cp, next) }); err != nil {
			p.Printf("fork failed: %s\n", err.Message)
		}
	}
}

func runShared(p *fork.Process) *kernel.Error {
	s := p.Sys()
	if err := s.AllocPage(sys.Self, dataVA, userRW|vmm.FlagShared); err != nil {
		return err
	}
	if err := allocSignal(p); err != nil {
		return err
	}

	msg := "written by the child"
	if _, err := p.Fork(func(cp *fork.Process) {
		cp.Sys().Store(dataVA, []byte(msg))
		signal(cp)
	}); err != nil {
		return err
	}

	waitSignal(p)
	buf := make([]byte, len(msg))
	s.Load(dataVA, buf)
	p.Printf("parent: shared page says %q\n", buf)
	return nil
}

func runReadOnly(p *fork.Process) *kernel.Error {
	s := p.Sys()
	if err := s.AllocPage(sys.Self, dataVA, userRW); err != nil {
		return err
	}
	if err := allocSignal(p); err != nil {
		return err
	}
	storeByte(s, dataVA, 0x5a)
	if err := s.MapPage(sys.Self, dataVA, sys.Self, dataVA, vmm.FlagUserAccessible|vmm.FlagPresent); err != nil {
		return err
	}

	if _, err := p.Fork(func(cp *fork.Process) {
		pte := cp.Sys().PTE(dataVA)
		cp.Printf("child: read %#x, disposition %s\n", loadByte(cp.Sys(), dataVA), vmm.Classify(pte))
		signal(cp)
	}); err != nil {
		return err
	}

	waitSignal(p)
	p.Printf("parent: read %#x\n", loadByte(s, dataVA))
	return nil
}

func runHole(p *fork.Process) *kernel.Error {
	child, err := p.Fork(func(cp *fork.Process) {
		cp.Printf("child: touching unmapped page %08x\n", holeVA)
		storeByte(cp.Sys(), holeVA, 1)
		cp.Printf("child: still alive\n")
	})
	if err != nil {
		return err
	}

	p.Printf("parent: forked %s\n", child)
	return nil
}

func runSfork(p *fork.Process) *kernel.Error {
	_, err := p.Sfork(func(*fork.Process) {})
	if err == nil {
		return &kernel.Error{Module: "cowfork", Message: "sfork unexpectedly succeeded"}
	}

	_, mapped := vmm.Lookup(p.Sys(), mm.UXStack)
	p.Printf("sfork: %s (exception stack mapped: %t)\n", err.Message, mapped)
	return nil
}
