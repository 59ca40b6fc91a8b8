package renderer

import (
	"errors"
	"image"
)

var (
	ErrSubmission    = errors.New("command submission failed")
	ErrDeviceRemoved = errors.New("device removed")
)

type BufferKind int

const (
	VertexBuffer BufferKind = iota
	IndexBuffer
	ConstantBuffer
	// StructuredBuffer is a packed array indexed from shaders.
	StructuredBuffer
)

func (k BufferKind) String() string {
	switch k {
	case VertexBuffer:
		return "vertex"
	case IndexBuffer:
		return "index"
	case ConstantBuffer:
		return "constant"
	case StructuredBuffer:
		return "structured"
	}
	return "unknown"
}

// ResourceState mirrors the usage a GPU resource is currently in. Passes
// move targets between states with CommandList.Transition.
type ResourceState int

const (
	StatePresent ResourceState = iota
	StateRenderTarget
	StateDepthWrite
	StateShaderRead
)

func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateRenderTarget:
		return "render-target"
	case StateDepthWrite:
		return "depth-write"
	case StateShaderRead:
		return "shader-read"
	}
	return "unknown"
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Resource interface {
	Name() string
}

// Buffer is CPU-writable GPU memory (an upload heap in explicit APIs).
type Buffer interface {
	Resource
	Kind() BufferKind
	Size() int
	Write(offset int, data []byte) error
}

type RenderTarget interface {
	Resource
	Size() (width, height int)
}

type DepthTarget interface {
	Resource
	Size() (width, height int)
	// ShaderReadable reports whether the target can be bound as a texture.
	ShaderReadable() bool
}

type Texture interface {
	Resource
}

type Pipeline interface {
	Desc() PipelineDesc
}

// Event is a one-shot OS wait object.
type Event interface {
	Wait() error
	Close() error
}

// Fence is the monotonic completion counter shared by CPU and GPU.
type Fence interface {
	CompletedValue() uint64
	SetEventOnCompletion(value uint64, ev Event) error
}

type CommandAllocator interface {
	Reset() error
}

type CommandList interface {
	Reset(alloc CommandAllocator, initial Pipeline) error
	Close() error

	SetViewport(vp Viewport)
	SetPipeline(p Pipeline)
	// SetRenderTargets binds color targets and a depth target. A nil color
	// slice is a depth-only pass.
	SetRenderTargets(colors []RenderTarget, depth DepthTarget)
	ClearRenderTarget(rt RenderTarget, color [4]float32)
	ClearDepth(dt DepthTarget, depth float32)
	Transition(res Resource, before, after ResourceState)

	BindPassConstants(buf Buffer, offset, size int)
	BindObjectConstants(buf Buffer, offset, size int)
	BindMaterials(buf Buffer)
	BindShadowMap(dt DepthTarget)
	BindTexture(slot int, tex Texture)

	SetVertexBuffer(buf Buffer, stride int)
	SetIndexBuffer(buf Buffer)
	DrawIndexed(indexCount, startIndex uint32, baseVertex int32)
}

type CommandQueue interface {
	Execute(lists ...CommandList) error
	Signal(f Fence, value uint64) error
}

type SwapChain interface {
	CurrentBackBuffer() RenderTarget
	DepthStencil() DepthTarget
	Size() (width, height int)
	Resize(width, height int) error
	Present() error
}

type Device interface {
	Queue() CommandQueue
	CreateBuffer(name string, kind BufferKind, size int) (Buffer, error)
	CreateFence(initial uint64) (Fence, error)
	CreateEvent() (Event, error)
	CreateCommandAllocator() (CommandAllocator, error)
	CreateCommandList() (CommandList, error)
	CreateDepthTarget(name string, width, height int, shaderReadable bool) (DepthTarget, error)
	CreateTexture(name string, img image.Image) (Texture, error)
	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	// RemovedReason is non-nil once the device is lost.
	RemovedReason() error
}
