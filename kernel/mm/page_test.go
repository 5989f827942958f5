package mm

import "testing"

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint32(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex)<<PageShift, frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestPageMethods(t *testing.T) {
	for pageIndex := uint32(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := uintptr(pageIndex)<<PageShift, page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
		aligned bool
	}{
		{0, Page(0), true},
		{4095, Page(0), false},
		{4096, Page(1), true},
		{4123, Page(1), false},
		{UStackTop, Page(UStackTop >> PageShift), true},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}

		if got := Aligned(spec.input); got != spec.aligned {
			t.Errorf("[spec %d] expected Aligned to return %t; got %t", specIndex, spec.aligned, got)
		}
	}
}

func TestLayout(t *testing.T) {
	if PFTemp != 0x007ff000 {
		t.Errorf("expected PFTemp to be 0x7ff000; got 0x%x", PFTemp)
	}

	if UXStack <= UStackTop {
		t.Error("expected the exception stack to sit above the duplicated region")
	}

	specs := []struct {
		va       uintptr
		pdx, ptx uint32
	}{
		{0, 0, 0},
		{PFTemp, 1, 1023},
		{UXStack, 0x3ba, 0x3ff},
		{0x00801234, 2, 1},
	}

	for specIndex, spec := range specs {
		if got := PDX(spec.va); got != spec.pdx {
			t.Errorf("[spec %d] expected PDX(0x%x) to be %d; got %d", specIndex, spec.va, spec.pdx, got)
		}
		if got := PTX(spec.va); got != spec.ptx {
			t.Errorf("[spec %d] expected PTX(0x%x) to be %d; got %d", specIndex, spec.va, spec.ptx, got)
		}
	}
}
