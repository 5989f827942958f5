package fork

import (
	"cowfork/kernel"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"

	"github.com/sirupsen/logrus"
)

// Duppage maps page into child at the same virtual address. The page must
// be present in the calling context.
//
// Writable and copy-on-write pages are mapped copy-on-write into the child
// and then remapped copy-on-write in the caller. The second mapping is
// needed even if the page already was copy-on-write: the page now has
// another owner, and both owners must fault on their next write. Shared
// pages keep their flags; read-only pages are mapped read-only.
//
// Errors are returned without undoing earlier mappings.
func (p *Process) Duppage(child sys.EnvID, page mm.Page) *kernel.Error {
	va := page.Address()
	pte := p.sys.PTE(va)
	d := vmm.Classify(pte)

	p.logger().WithFields(logrus.Fields{"child": child, "va": va, "disposition": d}).Trace("duppage")

	if err := p.sys.MapPage(sys.Self, va, child, va, d.ChildFlags(pte)); err != nil {
		return err
	}

	if d.RemapsSource() {
		if err := p.sys.MapPage(sys.Self, va, sys.Self, va, d.SourceFlags()); err != nil {
			return err
		}
	}

	return nil
}
