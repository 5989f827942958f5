package sim

import (
	"math/bits"

	"cowfork/kernel"
	"cowfork/kernel/mm"
)

var (
	errOutOfFrames   = &kernel.Error{Module: "frame_alloc", Message: "out of physical frames", Code: kernel.CodeNoMem}
	errFrameRefUnder = &kernel.Error{Module: "frame_alloc", Message: "reference count underflow"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree     markAs = true
)

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations using a bitmap and keeps a reference count for each frame. A
// frame is returned to the free pool when its last mapping is dropped.
//
// Frame 0 is permanently reserved so that a zeroed page table entry never
// refers to an allocatable frame.
type BitmapAllocator struct {
	// totalPages tracks the total number of frames in physical memory.
	totalPages uint32

	// reservedPages tracks the number of frames currently in use.
	reservedPages uint32

	// freeBitmap tracks used/free frames. A set bit marks a reserved
	// frame.
	freeBitmap []uint64

	// refs holds the number of mappings (or kernel references) for each
	// reserved frame.
	refs []uint32

	// physMem backs every frame with PageSize bytes.
	physMem []byte
}

// newBitmapAllocator creates an allocator managing frameCount frames.
func newBitmapAllocator(frameCount uint32) *BitmapAllocator {
	alloc := &BitmapAllocator{
		totalPages: frameCount,
		freeBitmap: make([]uint64, (frameCount+63)>>6),
		refs:       make([]uint32, frameCount),
		physMem:    make([]byte, uintptr(frameCount)*mm.PageSize),
	}

	// Flag the bits past the end of physical memory as reserved so the
	// allocation scan never hands them out.
	for frame := frameCount; frame < uint32(len(alloc.freeBitmap))<<6; frame++ {
		alloc.freeBitmap[frame>>6] |= 1 << (frame & 63)
	}

	alloc.markFrame(0, markReserved)
	alloc.refs[0] = 1
	return alloc
}

// markFrame updates the reservation flag for the bitmap entry that
// corresponds to the supplied frame.
func (alloc *BitmapAllocator) markFrame(frame mm.Frame, flag markAs) {
	block, mask := uint32(frame)>>6, uint64(1)<<(uint32(frame)&63)

	switch flag {
	case markFree:
		alloc.freeBitmap[block] &^= mask
		alloc.reservedPages--
	default:
		alloc.freeBitmap[block] |= mask
		alloc.reservedPages++
	}
}

// AllocFrame reserves a zero-filled frame with a reference count of zero.
// The caller takes the first reference via IncRef when it maps the frame.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.reservedPages == alloc.totalPages {
		return mm.InvalidFrame, errOutOfFrames
	}

	for block, bitmap := range alloc.freeBitmap {
		if bitmap == ^uint64(0) {
			continue
		}

		frame := mm.Frame(uint32(block)<<6 | uint32(bits.TrailingZeros64(^bitmap)))
		alloc.markFrame(frame, markReserved)
		kernel.Memset(alloc.FrameData(frame), 0)
		return frame, nil
	}

	return mm.InvalidFrame, errOutOfFrames
}

// IncRef adds a reference to frame.
func (alloc *BitmapAllocator) IncRef(frame mm.Frame) {
	alloc.refs[frame]++
}

// DecRef drops a reference to frame and releases it once no references
// remain.
func (alloc *BitmapAllocator) DecRef(frame mm.Frame) *kernel.Error {
	if alloc.refs[frame] == 0 {
		return errFrameRefUnder
	}

	alloc.refs[frame]--
	if alloc.refs[frame] == 0 {
		alloc.markFrame(frame, markFree)
	}

	return nil
}

// FreeUnreferenced releases a frame returned by AllocFrame that never
// gained a reference.
func (alloc *BitmapAllocator) FreeUnreferenced(frame mm.Frame) {
	if alloc.refs[frame] == 0 {
		alloc.markFrame(frame, markFree)
	}
}

// Refs returns the reference count of frame.
func (alloc *BitmapAllocator) Refs(frame mm.Frame) uint32 {
	if uint32(frame) >= alloc.totalPages {
		return 0
	}
	return alloc.refs[frame]
}

// InUse returns the number of reserved frames, including frame 0.
func (alloc *BitmapAllocator) InUse() uint32 {
	return alloc.reservedPages
}

// FrameData returns the PageSize bytes that back frame.
func (alloc *BitmapAllocator) FrameData(frame mm.Frame) []byte {
	start := frame.Address()
	return alloc.physMem[start : start+mm.PageSize : start+mm.PageSize]
}
