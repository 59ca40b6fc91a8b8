package renderer

import (
	"fmt"
	"time"

	"ShadowTerrain/internal/logger"

	"go.uber.org/zap"
)

// DefaultFrameDepth is how many frames the CPU may run ahead of the GPU.
const DefaultFrameDepth = 3

// FrameResourceSizes sizes every table of a frame slot.
type FrameResourceSizes struct {
	Passes       int
	Objects      int
	Materials    int
	DynamicVerts int // zero disables the dynamic vertex buffer
}

// FrameResource is everything the CPU writes for one frame. The GPU reads
// it until Fence is reached, so it must not be touched before then.
type FrameResource struct {
	Index int

	CmdAlloc       CommandAllocator
	PassCB         *UploadBuffer[PassConstants]
	ObjectCB       *UploadBuffer[ObjectConstants]
	MaterialBuffer *UploadBuffer[MaterialData]
	DynamicVB      *UploadBuffer[Vertex]

	// Fence is the value signaled after this slot's last submission; zero
	// means it was never submitted.
	Fence uint64
}

func newFrameResource(dev Device, index int, sizes FrameResourceSizes) (*FrameResource, error) {
	alloc, err := dev.CreateCommandAllocator()
	if err != nil {
		return nil, fmt.Errorf("frame %d: create command allocator: %w", index, err)
	}
	fr := &FrameResource{Index: index, CmdAlloc: alloc}

	passes := sizes.Passes
	if passes < PassCount {
		passes = PassCount
	}
	if fr.PassCB, err = NewUploadBuffer[PassConstants](dev, fmt.Sprintf("frame%d.pass", index), ConstantBuffer, passes); err != nil {
		return nil, err
	}
	if fr.ObjectCB, err = NewUploadBuffer[ObjectConstants](dev, fmt.Sprintf("frame%d.object", index), ConstantBuffer, sizes.Objects); err != nil {
		return nil, err
	}
	if fr.MaterialBuffer, err = NewUploadBuffer[MaterialData](dev, fmt.Sprintf("frame%d.material", index), StructuredBuffer, sizes.Materials); err != nil {
		return nil, err
	}
	if sizes.DynamicVerts > 0 {
		if fr.DynamicVB, err = NewUploadBuffer[Vertex](dev, fmt.Sprintf("frame%d.dynamicVB", index), VertexBuffer, sizes.DynamicVerts); err != nil {
			return nil, err
		}
	}
	return fr, nil
}

type RingStats struct {
	Acquired uint64
	Waited   uint64
	WaitTime time.Duration
}

// FrameRing cycles through a fixed set of frame resources.
type FrameRing struct {
	dev     Device
	fence   Fence
	slots   []*FrameResource
	current int
	stats   RingStats
}

func NewFrameRing(dev Device, fence Fence, depth int, sizes FrameResourceSizes) (*FrameRing, error) {
	if depth < 1 {
		return nil, fmt.Errorf("frame ring depth must be at least 1, got %d", depth)
	}
	ring := &FrameRing{dev: dev, fence: fence, current: -1}
	for i := 0; i < depth; i++ {
		fr, err := newFrameResource(dev, i, sizes)
		if err != nil {
			return nil, err
		}
		ring.slots = append(ring.slots, fr)
	}
	logger.Log.Info("Frame ring created",
		zap.Int("depth", depth),
		zap.Int("objects", sizes.Objects),
		zap.Int("materials", sizes.Materials),
		zap.Int("dynamicVerts", sizes.DynamicVerts))
	return ring, nil
}

func (r *FrameRing) Depth() int                { return len(r.slots) }
func (r *FrameRing) Slot(i int) *FrameResource { return r.slots[i] }
func (r *FrameRing) Stats() RingStats          { return r.stats }

// Current returns the slot handed out by the last AcquireNext, or nil.
func (r *FrameRing) Current() *FrameResource {
	if r.current < 0 {
		return nil
	}
	return r.slots[r.current]
}

// AcquireNext moves to the next slot and blocks until the GPU is done
// with it. This is the only place the frame loop waits.
func (r *FrameRing) AcquireNext() (*FrameResource, error) {
	r.current = (r.current + 1) % len(r.slots)
	slot := r.slots[r.current]
	r.stats.Acquired++

	if slot.Fence != 0 && r.fence.CompletedValue() < slot.Fence {
		start := time.Now()
		if err := WaitForFence(r.dev, r.fence, slot.Fence); err != nil {
			return nil, fmt.Errorf("frame %d: %w", slot.Index, err)
		}
		waited := time.Since(start)
		r.stats.Waited++
		r.stats.WaitTime += waited
		logger.Log.Debug("Waited for frame slot",
			zap.Int("slot", slot.Index),
			zap.Uint64("fence", slot.Fence),
			zap.Duration("waited", waited))
	}
	return slot, nil
}

// RecordInto makes the slot's allocator and the command list ready for a
// new frame. Only legal once AcquireNext returned the slot.
func (r *FrameRing) RecordInto(slot *FrameResource, cmd CommandList, initial Pipeline) error {
	if err := slot.CmdAlloc.Reset(); err != nil {
		return fmt.Errorf("frame %d: reset command allocator: %w", slot.Index, err)
	}
	if err := cmd.Reset(slot.CmdAlloc, initial); err != nil {
		return fmt.Errorf("frame %d: reset command list: %w", slot.Index, err)
	}
	return nil
}
