package renderer

import (
	"errors"
	"fmt"

	"ShadowTerrain/internal/logger"

	"go.uber.org/zap"
)

var ErrPassOrder = errors.New("render pass out of order")

type FrameState int

const (
	FrameIdle FrameState = iota
	FrameWaiting
	FrameUpdating
	FrameRecordingShadowPass
	FrameRecordingCameraPass
	FrameSubmitted
	FramePresented
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameWaiting:
		return "waiting"
	case FrameUpdating:
		return "updating"
	case FrameRecordingShadowPass:
		return "recording-shadow-pass"
	case FrameRecordingCameraPass:
		return "recording-camera-pass"
	case FrameSubmitted:
		return "submitted"
	case FramePresented:
		return "presented"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Pass int

const (
	PassShadow Pass = iota
	PassCamera
)

type FrameTiming struct {
	Frame uint64
	Total float32 // seconds since start
	Delta float32 // seconds since previous frame
}

// Scene is what the orchestrator drives each frame.
type Scene interface {
	// OnResize runs after the swap chain has been resized.
	OnResize(width, height int) error
	// OnUpdate writes this frame's constants into ctx.Slot.
	OnUpdate(ctx *FrameContext) error
	// OnRecordFrame records the shadow pass then the camera pass into
	// ctx.Cmd, announcing each with ctx.BeginPass.
	OnRecordFrame(ctx *FrameContext) error
}

// FrameContext is handed to the scene for one frame.
type FrameContext struct {
	Slot   *FrameResource
	Cmd    CommandList
	Timing FrameTiming
	Input  InputState

	Width, Height int
	BackBuffer    RenderTarget
	DepthStencil  DepthTarget

	orc   *FrameOrchestrator
	begun []Pass
}

// BeginPass moves the frame into the recording state of pass p. The
// shadow pass must come first and each pass is recorded once.
func (c *FrameContext) BeginPass(p Pass) error {
	switch {
	case p == PassShadow && len(c.begun) == 0:
		c.orc.setState(FrameRecordingShadowPass, c.Slot.Index)
	case p == PassCamera && len(c.begun) == 1 && c.begun[0] == PassShadow:
		c.orc.setState(FrameRecordingCameraPass, c.Slot.Index)
	default:
		return fmt.Errorf("%w: pass %d after %v", ErrPassOrder, p, c.begun)
	}
	c.begun = append(c.begun, p)
	return nil
}

type OrchestratorDesc struct {
	Device     Device
	SwapChain  SwapChain
	Scene      Scene
	FrameDepth int
	Sizes      FrameResourceSizes

	// Registry, when set, must count dirty frames over the same depth as
	// the ring. A zero FrameDepth takes the registry's.
	Registry *Registry
}

// FrameOrchestrator runs the per-frame loop: acquire a ring slot, let the
// scene update and record, submit, present and fence the slot.
type FrameOrchestrator struct {
	dev   Device
	queue CommandQueue
	swap  SwapChain
	scene Scene

	fence        Fence
	currentFence uint64
	ring         *FrameRing
	cmd          CommandList

	state FrameState
	// OnStateChange, when set, observes every transition. slot is -1
	// while no slot is held.
	OnStateChange func(state FrameState, slot int)
}

func NewFrameOrchestrator(desc OrchestratorDesc) (*FrameOrchestrator, error) {
	if desc.Device == nil || desc.SwapChain == nil || desc.Scene == nil {
		return nil, errors.New("orchestrator needs a device, a swap chain and a scene")
	}
	depth := desc.FrameDepth
	if desc.Registry != nil {
		if depth == 0 {
			depth = desc.Registry.FrameDepth()
		}
		if depth != desc.Registry.FrameDepth() {
			return nil, fmt.Errorf("frame depth %d does not match registry dirty depth %d", depth, desc.Registry.FrameDepth())
		}
	}
	if depth == 0 {
		depth = DefaultFrameDepth
	}

	fence, err := desc.Device.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("create frame fence: %w", err)
	}
	ring, err := NewFrameRing(desc.Device, fence, depth, desc.Sizes)
	if err != nil {
		return nil, err
	}
	cmd, err := desc.Device.CreateCommandList()
	if err != nil {
		return nil, fmt.Errorf("create command list: %w", err)
	}

	return &FrameOrchestrator{
		dev:   desc.Device,
		queue: desc.Device.Queue(),
		swap:  desc.SwapChain,
		scene: desc.Scene,
		fence: fence,
		ring:  ring,
		cmd:   cmd,
	}, nil
}

func (o *FrameOrchestrator) State() FrameState    { return o.state }
func (o *FrameOrchestrator) Ring() *FrameRing     { return o.ring }
func (o *FrameOrchestrator) Fence() Fence         { return o.fence }
func (o *FrameOrchestrator) CurrentFence() uint64 { return o.currentFence }

func (o *FrameOrchestrator) setState(s FrameState, slot int) {
	o.state = s
	if o.OnStateChange != nil {
		o.OnStateChange(s, slot)
	}
}

// Frame runs one full frame. Any returned error is fatal for the frame
// loop; nothing of a failed frame is presented.
func (o *FrameOrchestrator) Frame(timing FrameTiming, input InputState) error {
	o.setState(FrameWaiting, -1)
	slot, err := o.ring.AcquireNext()
	if err != nil {
		return o.submissionError("acquire frame slot", err)
	}

	o.setState(FrameUpdating, slot.Index)
	width, height := o.swap.Size()
	ctx := &FrameContext{
		Slot:         slot,
		Cmd:          o.cmd,
		Timing:       timing,
		Input:        input,
		Width:        width,
		Height:       height,
		BackBuffer:   o.swap.CurrentBackBuffer(),
		DepthStencil: o.swap.DepthStencil(),
		orc:          o,
	}
	if err := o.scene.OnUpdate(ctx); err != nil {
		return fmt.Errorf("update frame %d: %w", timing.Frame, err)
	}

	if err := o.ring.RecordInto(slot, o.cmd, nil); err != nil {
		return o.submissionError("reset recording", err)
	}
	if err := o.scene.OnRecordFrame(ctx); err != nil {
		return fmt.Errorf("record frame %d: %w", timing.Frame, err)
	}
	if len(ctx.begun) != 2 {
		return fmt.Errorf("%w: frame %d recorded passes %v, want shadow then camera", ErrPassOrder, timing.Frame, ctx.begun)
	}
	if err := o.cmd.Close(); err != nil {
		return o.submissionError("close command list", err)
	}

	if err := o.queue.Execute(o.cmd); err != nil {
		return o.submissionError("execute command list", err)
	}
	o.setState(FrameSubmitted, slot.Index)

	if err := o.swap.Present(); err != nil {
		return o.submissionError("present", err)
	}
	o.currentFence++
	slot.Fence = o.currentFence
	if err := o.queue.Signal(o.fence, o.currentFence); err != nil {
		return o.submissionError("signal fence", err)
	}
	o.setState(FramePresented, slot.Index)
	o.setState(FrameIdle, -1)
	return nil
}

// Flush waits until the GPU has finished everything submitted so far.
func (o *FrameOrchestrator) Flush() error {
	v, err := FlushQueue(o.dev, o.fence, o.currentFence)
	o.currentFence = v
	if err != nil {
		return o.submissionError("flush", err)
	}
	return nil
}

// Resize drains the GPU before the swap chain buffers are replaced.
func (o *FrameOrchestrator) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		// Minimized; keep the old buffers.
		return nil
	}
	if err := o.Flush(); err != nil {
		return err
	}
	if err := o.swap.Resize(width, height); err != nil {
		return fmt.Errorf("resize swap chain to %dx%d: %w", width, height, err)
	}
	logger.Log.Info("Swap chain resized", zap.Int("width", width), zap.Int("height", height))
	return o.scene.OnResize(width, height)
}

// Close flushes outstanding work. The device itself stays with the caller.
func (o *FrameOrchestrator) Close() error {
	err := o.Flush()
	stats := o.ring.Stats()
	logger.Log.Info("Frame orchestrator closed",
		zap.Uint64("frames", stats.Acquired),
		zap.Uint64("slotWaits", stats.Waited),
		zap.Duration("waitTime", stats.WaitTime),
		zap.Uint64("fence", o.currentFence))
	return err
}

func (o *FrameOrchestrator) submissionError(op string, err error) error {
	if reason := o.dev.RemovedReason(); reason != nil {
		logger.Log.Error("Device removed", zap.String("op", op), zap.Error(err), zap.NamedError("reason", reason))
		return fmt.Errorf("%w during %s: %v (reason: %v)", ErrDeviceRemoved, op, err, reason)
	}
	logger.Log.Error("Submission failed", zap.String("op", op), zap.Error(err))
	if errors.Is(err, ErrSubmission) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrSubmission, op, err)
}
