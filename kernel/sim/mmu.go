package sim

import (
	"encoding/binary"
	"fmt"

	"cowfork/kernel"
	"cowfork/kernel/kfmt"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"

	"github.com/sirupsen/logrus"
)

const (
	// utfSize is the number of bytes a trap frame occupies on the user
	// exception stack.
	utfSize = 52

	// maxUpcallDepth is the number of nested trap frames that fit on the
	// single exception stack page.
	maxUpcallDepth = int(mm.PageSize / utfSize)

	// maxRefaults is the number of times an access may fault again on the
	// same address after the upcall returned before the kernel gives up.
	maxRefaults = 4
)

// Load implements sys.Memory.
func (p *proc) Load(virtAddr uintptr, buf []byte) {
	p.each(virtAddr, len(buf), func(offset int, mem []byte) {
		copy(buf[offset:], mem)
	}, false)
}

// Store implements sys.Memory.
func (p *proc) Store(virtAddr uintptr, buf []byte) {
	p.each(virtAddr, len(buf), func(offset int, mem []byte) {
		copy(mem, buf[offset:])
	}, true)
}

// each splits an access into page-sized chunks and performs each one through
// the MMU. fn receives the offset into the caller's buffer and the backing
// physical memory for the chunk.
func (p *proc) each(virtAddr uintptr, size int, fn func(offset int, mem []byte), write bool) {
	for offset := 0; offset < size; {
		chunk := int(mm.PageSize - mm.PageOffset(virtAddr))
		if rem := size - offset; rem < chunk {
			chunk = rem
		}

		p.access(virtAddr, write, func(mem []byte) {
			fn(offset, mem[:chunk])
		})

		offset += chunk
		virtAddr += uintptr(chunk)
	}
}

// access translates virtAddr and invokes fn with the backing memory, raising
// page faults until the translation succeeds.
func (p *proc) access(virtAddr uintptr, write bool, fn func(mem []byte)) {
	for refaults := 0; ; refaults++ {
		code, ok := p.tryAccess(virtAddr, write, fn)
		if ok {
			return
		}

		if refaults == maxRefaults {
			p.k.obs.PageFault(FaultKilled)
			kfmt.Panic(&kernel.Error{
				Module:  "sim",
				Message: fmt.Sprintf("[%s] fault at va %08x not resolved by upcall", p.id, virtAddr),
			})
		}

		p.fault(virtAddr, code)
	}
}

func (p *proc) tryAccess(virtAddr uintptr, write bool, fn func(mem []byte)) (sys.FaultCode, bool) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	mem, code, ok := p.k.translate(p.cur(), virtAddr, write)
	if ok {
		fn(mem)
	}
	return code, ok
}

// translate performs the MMU checks for a user access. On failure it
// returns the hardware error code of the resulting page fault. Must be
// called with k.mu held.
func (k *Kernel) translate(e *env, virtAddr uintptr, write bool) ([]byte, sys.FaultCode, bool) {
	code := sys.FaultUser
	if write {
		code |= sys.FaultWrite
	}

	if virtAddr >= mm.UTop {
		return nil, code, false
	}

	pte, ok := e.as.lookup(virtAddr)
	if !ok {
		return nil, code, false
	}

	code |= sys.FaultPresent
	if !pte.HasFlags(vmm.FlagUserAccessible) || (write && !pte.HasFlags(vmm.FlagRW)) {
		return nil, code, false
	}

	return k.alloc.FrameData(pte.Frame())[mm.PageOffset(virtAddr):], 0, true
}

// fault delivers a page fault to the calling context's upcall. If the
// context has no upcall, or its exception stack is missing, not writable or
// full, the context is destroyed.
func (p *proc) fault(virtAddr uintptr, code sys.FaultCode) {
	tf := &sys.UTrapframe{FaultVA: virtAddr, Err: code}

	upcall, reason := p.pushTrapframe(tf)
	if reason != "" {
		p.k.obs.PageFault(FaultKilled)
		kfmt.Panic(&kernel.Error{
			Module:  "sim",
			Message: fmt.Sprintf("[%s] user fault va %08x err %x: %s", p.id, virtAddr, uint32(code), reason),
		})
	}

	p.k.obs.PageFault(FaultDelivered)
	p.k.log.WithFields(logrus.Fields{"env": p.id, "va": virtAddr, "err": uint32(code)}).Debug("page fault upcall")

	upcall(p, tf)

	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	p.cur().upcallDepth--
}

// pushTrapframe writes tf onto the user exception stack and returns the
// upcall to invoke, or the reason the fault can not be delivered.
func (p *proc) pushTrapframe(tf *sys.UTrapframe) (sys.Upcall, string) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	e := p.cur()
	p.k.stats[p.id].Faults++

	if e.upcall == nil {
		return nil, "no page fault upcall"
	}

	xstack, ok := e.as.lookup(mm.UXStack)
	if !ok || !xstack.HasFlags(vmm.FlagUserAccessible|vmm.FlagRW) {
		return nil, "user exception stack not writable"
	}

	if e.upcallDepth == maxUpcallDepth {
		return nil, "user exception stack overflow"
	}

	// The kernel writes the trap frame through the physical frame; the
	// exception stack itself never faults.
	frame := p.k.alloc.FrameData(xstack.Frame())
	top := int(mm.PageSize) - (e.upcallDepth+1)*utfSize
	slot := frame[top : top+utfSize]
	kernel.Memset(slot, 0)
	binary.LittleEndian.PutUint32(slot[0:], uint32(tf.FaultVA))
	binary.LittleEndian.PutUint32(slot[4:], uint32(tf.Err))

	e.upcallDepth++
	p.k.stats[p.id].Upcalls++
	return e.upcall, ""
}
