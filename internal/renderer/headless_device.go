package renderer

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"ShadowTerrain/internal/logger"

	"go.uber.org/zap"
)

// Recorded command names.
const (
	OpSetViewport         = "SetViewport"
	OpSetPipeline         = "SetPipeline"
	OpSetRenderTargets    = "SetRenderTargets"
	OpClearRenderTarget   = "ClearRenderTarget"
	OpClearDepth          = "ClearDepth"
	OpTransition          = "Transition"
	OpBindPassConstants   = "BindPassConstants"
	OpBindObjectConstants = "BindObjectConstants"
	OpBindMaterials       = "BindMaterials"
	OpBindShadowMap       = "BindShadowMap"
	OpBindTexture         = "BindTexture"
	OpSetVertexBuffer     = "SetVertexBuffer"
	OpSetIndexBuffer      = "SetIndexBuffer"
	OpDrawIndexed         = "DrawIndexed"
)

// Command is one recorded call as the headless GPU executed it.
type Command struct {
	Batch    uint64
	Op       string
	Pipeline string // pipeline bound when the command was recorded
	Target   string // depth target bound when the command was recorded
	Resource string
	Offset   int
	Count    uint32
}

type HeadlessOptions struct {
	// Latency is how long the simulated GPU spends on each batch.
	Latency time.Duration
	// WaitTimeout bounds every CPU wait on a fence. Zero waits forever.
	WaitTimeout time.Duration
	// RecordCommands keeps every executed command for inspection.
	RecordCommands bool
}

type HeadlessStats struct {
	Batches     uint64
	Draws       uint64
	Violations  uint64
	StateErrors uint64
}

// HeadlessDevice is a Device with no GPU behind it. Batches run on a
// worker goroutine after a configurable latency and fences advance in
// submission order, so CPU/GPU overlap behaves like a real queue. It
// counts writes into buffers still referenced by unfinished batches and
// resource state mismatches.
type HeadlessDevice struct {
	opts HeadlessOptions

	mu          sync.Mutex
	inFlight    map[*headlessBuffer]int
	states      map[Resource]ResourceState
	commands    []Command
	stateErrors []error
	stats       HeadlessStats
	removed     error
	batchSeq    uint64

	queue *headlessQueue
}

func NewHeadlessDevice(opts HeadlessOptions) *HeadlessDevice {
	d := &HeadlessDevice{
		opts:     opts,
		inFlight: make(map[*headlessBuffer]int),
		states:   make(map[Resource]ResourceState),
	}
	d.queue = &headlessQueue{dev: d, work: make(chan headlessWork, 64)}
	d.queue.wg.Add(1)
	go d.queue.run()
	logger.Log.Info("Headless device created", zap.Duration("latency", opts.Latency))
	return d
}

// Close stops the GPU worker after it drained every queued batch.
func (d *HeadlessDevice) Close() {
	d.queue.close()
}

func (d *HeadlessDevice) Queue() CommandQueue { return d.queue }

func (d *HeadlessDevice) RemovedReason() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// Remove simulates device loss; every later submission fails.
func (d *HeadlessDevice) Remove(reason error) {
	d.mu.Lock()
	d.removed = reason
	d.mu.Unlock()
}

func (d *HeadlessDevice) Stats() HeadlessStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Commands returns the executed command log, oldest first.
func (d *HeadlessDevice) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.commands...)
}

func (d *HeadlessDevice) StateErrors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.stateErrors...)
}

func (d *HeadlessDevice) violation(format string, args ...interface{}) {
	d.stats.Violations++
	logger.Log.Warn("GPU hazard", zap.String("detail", fmt.Sprintf(format, args...)))
}

func (d *HeadlessDevice) stateError(err error) {
	d.stats.StateErrors++
	d.stateErrors = append(d.stateErrors, err)
	logger.Log.Warn("Resource state mismatch", zap.Error(err))
}

func (d *HeadlessDevice) track(res Resource, initial ResourceState) {
	d.mu.Lock()
	d.states[res] = initial
	d.mu.Unlock()
}

// State reports the tracked state of a target as of the last submission.
func (d *HeadlessDevice) State(res Resource) (ResourceState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[res]
	return s, ok
}

func (d *HeadlessDevice) CreateBuffer(name string, kind BufferKind, size int) (Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("buffer %s: negative size %d", name, size)
	}
	return &headlessBuffer{dev: d, name: name, kind: kind, data: make([]byte, size)}, nil
}

func (d *HeadlessDevice) CreateFence(initial uint64) (Fence, error) {
	return &headlessFence{completed: initial}, nil
}

func (d *HeadlessDevice) CreateEvent() (Event, error) {
	return &headlessEvent{done: make(chan struct{}), timeout: d.opts.WaitTimeout}, nil
}

func (d *HeadlessDevice) CreateCommandAllocator() (CommandAllocator, error) {
	return &headlessAllocator{dev: d}, nil
}

func (d *HeadlessDevice) CreateCommandList() (CommandList, error) {
	return &headlessCommandList{dev: d}, nil
}

func (d *HeadlessDevice) CreateDepthTarget(name string, width, height int, shaderReadable bool) (DepthTarget, error) {
	dt := &headlessDepth{name: name, width: width, height: height, readable: shaderReadable}
	initial := StateDepthWrite
	if shaderReadable {
		initial = StateShaderRead
	}
	d.track(dt, initial)
	return dt, nil
}

func (d *HeadlessDevice) CreateTexture(name string, img image.Image) (Texture, error) {
	b := img.Bounds()
	return &headlessTexture{name: name, width: b.Dx(), height: b.Dy()}, nil
}

func (d *HeadlessDevice) CreatePipeline(desc PipelineDesc) (Pipeline, error) {
	return &headlessPipeline{desc: desc}, nil
}

// HeadlessProgram is a shader program known only by name.
type HeadlessProgram string

func (p HeadlessProgram) Name() string { return string(p) }

// HeadlessShaders names one program per pipeline family, debug included.
func HeadlessShaders() ShaderSet {
	return ShaderSet{
		Standard: HeadlessProgram("standard"),
		Shadow:   HeadlessProgram("shadow"),
		Sky:      HeadlessProgram("sky"),
		Debug:    HeadlessProgram("debug"),
	}
}

type headlessBuffer struct {
	dev  *HeadlessDevice
	name string
	kind BufferKind
	data []byte
}

func (b *headlessBuffer) Name() string     { return b.name }
func (b *headlessBuffer) Kind() BufferKind { return b.kind }
func (b *headlessBuffer) Size() int        { return len(b.data) }

func (b *headlessBuffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("write of %d bytes at %d overflows %s buffer %s of %d bytes", len(data), offset, b.kind, b.name, len(b.data))
	}
	b.dev.mu.Lock()
	if n := b.dev.inFlight[b]; n > 0 {
		b.dev.violation("buffer %s written while %d batch(es) still read it", b.name, n)
	}
	b.dev.mu.Unlock()
	copy(b.data[offset:], data)
	return nil
}

// Bytes exposes the buffer contents for inspection.
func (b *headlessBuffer) Bytes() []byte { return b.data }

type headlessTarget struct {
	name          string
	width, height int
}

func (t *headlessTarget) Name() string              { return t.name }
func (t *headlessTarget) Size() (width, height int) { return t.width, t.height }

type headlessDepth struct {
	name          string
	width, height int
	readable      bool
}

func (t *headlessDepth) Name() string              { return t.name }
func (t *headlessDepth) Size() (width, height int) { return t.width, t.height }
func (t *headlessDepth) ShaderReadable() bool      { return t.readable }

type headlessTexture struct {
	name          string
	width, height int
}

func (t *headlessTexture) Name() string { return t.name }

type headlessPipeline struct {
	desc PipelineDesc
}

func (p *headlessPipeline) Desc() PipelineDesc { return p.desc }

type headlessFence struct {
	mu        sync.Mutex
	completed uint64
	waiters   []fenceWaiter
}

type fenceWaiter struct {
	value uint64
	ev    *headlessEvent
}

func (f *headlessFence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *headlessFence) SetEventOnCompletion(value uint64, ev Event) error {
	he, ok := ev.(*headlessEvent)
	if !ok {
		return fmt.Errorf("event %T does not belong to the headless device", ev)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed >= value {
		he.fire()
		return nil
	}
	f.waiters = append(f.waiters, fenceWaiter{value: value, ev: he})
	return nil
}

func (f *headlessFence) advance(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.completed {
		f.completed = value
	}
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= f.completed {
			w.ev.fire()
			continue
		}
		kept = append(kept, w)
	}
	f.waiters = kept
}

type headlessEvent struct {
	once    sync.Once
	done    chan struct{}
	timeout time.Duration
}

func (e *headlessEvent) fire() { e.once.Do(func() { close(e.done) }) }

func (e *headlessEvent) Wait() error {
	if e.timeout <= 0 {
		<-e.done
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-time.After(e.timeout):
		return fmt.Errorf("fence wait timed out after %s", e.timeout)
	}
}

func (e *headlessEvent) Close() error { return nil }

type headlessAllocator struct {
	dev     *HeadlessDevice
	pending int // batches recorded from this allocator not yet executed
}

func (a *headlessAllocator) Reset() error {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	if a.pending > 0 {
		a.dev.violation("command allocator reset with %d batch(es) in flight", a.pending)
		return errors.New("command allocator still in use by the GPU")
	}
	return nil
}

type headlessCommandList struct {
	dev       *HeadlessDevice
	alloc     *headlessAllocator
	recording bool
	cmds        []Command
	buffers     map[*headlessBuffer]struct{}
	transitions []transition

	pipeline string
	target   string
}

func (l *headlessCommandList) Reset(alloc CommandAllocator, initial Pipeline) error {
	ha, ok := alloc.(*headlessAllocator)
	if !ok {
		return fmt.Errorf("allocator %T does not belong to the headless device", alloc)
	}
	if l.recording {
		return errors.New("command list reset while still recording")
	}
	l.alloc = ha
	l.recording = true
	l.cmds = l.cmds[:0]
	l.transitions = l.transitions[:0]
	l.buffers = make(map[*headlessBuffer]struct{})
	l.pipeline, l.target = "", ""
	if initial != nil {
		l.pipeline = initial.Desc().Name
	}
	return nil
}

func (l *headlessCommandList) Close() error {
	if !l.recording {
		return errors.New("command list closed twice")
	}
	l.recording = false
	return nil
}

func (l *headlessCommandList) add(c Command) {
	c.Pipeline = l.pipeline
	c.Target = l.target
	l.cmds = append(l.cmds, c)
}

func (l *headlessCommandList) use(buf Buffer) string {
	if hb, ok := buf.(*headlessBuffer); ok {
		l.buffers[hb] = struct{}{}
		return hb.name
	}
	return ""
}

func (l *headlessCommandList) SetViewport(vp Viewport) {
	l.add(Command{Op: OpSetViewport})
}

func (l *headlessCommandList) SetPipeline(p Pipeline) {
	l.pipeline = p.Desc().Name
	l.add(Command{Op: OpSetPipeline})
}

func (l *headlessCommandList) SetRenderTargets(colors []RenderTarget, depth DepthTarget) {
	l.target = ""
	if depth != nil {
		l.target = depth.Name()
	}
	l.add(Command{Op: OpSetRenderTargets, Count: uint32(len(colors))})
}

func (l *headlessCommandList) ClearRenderTarget(rt RenderTarget, color [4]float32) {
	l.add(Command{Op: OpClearRenderTarget, Resource: rt.Name()})
}

func (l *headlessCommandList) ClearDepth(dt DepthTarget, depth float32) {
	l.add(Command{Op: OpClearDepth, Resource: dt.Name()})
}

// Transition is checked against the tracked state when the list executes.
func (l *headlessCommandList) Transition(res Resource, before, after ResourceState) {
	l.add(Command{Op: OpTransition, Resource: res.Name(), Offset: int(before), Count: uint32(after)})
	l.transitions = append(l.transitions, transition{res, before, after})
}

func (l *headlessCommandList) BindPassConstants(buf Buffer, offset, size int) {
	l.add(Command{Op: OpBindPassConstants, Resource: l.use(buf), Offset: offset})
}

func (l *headlessCommandList) BindObjectConstants(buf Buffer, offset, size int) {
	l.add(Command{Op: OpBindObjectConstants, Resource: l.use(buf), Offset: offset})
}

func (l *headlessCommandList) BindMaterials(buf Buffer) {
	l.add(Command{Op: OpBindMaterials, Resource: l.use(buf)})
}

func (l *headlessCommandList) BindShadowMap(dt DepthTarget) {
	l.add(Command{Op: OpBindShadowMap, Resource: dt.Name()})
}

func (l *headlessCommandList) BindTexture(slot int, tex Texture) {
	l.add(Command{Op: OpBindTexture, Resource: tex.Name(), Offset: slot})
}

func (l *headlessCommandList) SetVertexBuffer(buf Buffer, stride int) {
	l.add(Command{Op: OpSetVertexBuffer, Resource: l.use(buf)})
}

func (l *headlessCommandList) SetIndexBuffer(buf Buffer) {
	l.add(Command{Op: OpSetIndexBuffer, Resource: l.use(buf)})
}

func (l *headlessCommandList) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) {
	l.add(Command{Op: OpDrawIndexed, Count: indexCount, Offset: int(startIndex)})
}

type transition struct {
	res           Resource
	before, after ResourceState
}

type headlessWork struct {
	batch   uint64
	buffers []*headlessBuffer
	allocs  []*headlessAllocator
	fence   *headlessFence
	value   uint64
}

type headlessQueue struct {
	dev  *HeadlessDevice
	work chan headlessWork
	wg   sync.WaitGroup
	once sync.Once
}

func (q *headlessQueue) Execute(lists ...CommandList) error {
	d := q.dev
	d.mu.Lock()
	if d.removed != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceRemoved, d.removed)
	}

	d.batchSeq++
	w := headlessWork{batch: d.batchSeq}
	for _, cl := range lists {
		l, ok := cl.(*headlessCommandList)
		if !ok {
			d.mu.Unlock()
			return fmt.Errorf("%w: command list %T does not belong to the headless device", ErrSubmission, cl)
		}
		if l.recording {
			d.mu.Unlock()
			return fmt.Errorf("%w: command list executed while still recording", ErrSubmission)
		}
		for _, t := range l.transitions {
			cur, tracked := d.states[t.res]
			if tracked && cur != t.before {
				d.stateError(fmt.Errorf("%s: transition from %s but resource is %s", t.res.Name(), t.before, cur))
			}
			d.states[t.res] = t.after
		}
		for b := range l.buffers {
			d.inFlight[b]++
			w.buffers = append(w.buffers, b)
		}
		l.alloc.pending++
		w.allocs = append(w.allocs, l.alloc)

		for _, c := range l.cmds {
			if c.Op == OpDrawIndexed {
				d.stats.Draws++
			}
			if d.opts.RecordCommands {
				c.Batch = w.batch
				d.commands = append(d.commands, c)
			}
		}
	}
	d.stats.Batches++
	d.mu.Unlock()

	q.work <- w
	return nil
}

func (q *headlessQueue) Signal(f Fence, value uint64) error {
	hf, ok := f.(*headlessFence)
	if !ok {
		return fmt.Errorf("%w: fence %T does not belong to the headless device", ErrSubmission, f)
	}
	if err := q.dev.RemovedReason(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRemoved, err)
	}
	q.work <- headlessWork{fence: hf, value: value}
	return nil
}

func (q *headlessQueue) run() {
	defer q.wg.Done()
	for w := range q.work {
		if w.fence != nil {
			w.fence.advance(w.value)
			continue
		}
		if q.dev.opts.Latency > 0 {
			time.Sleep(q.dev.opts.Latency)
		}
		q.dev.mu.Lock()
		for _, b := range w.buffers {
			q.dev.inFlight[b]--
		}
		for _, a := range w.allocs {
			a.pending--
		}
		q.dev.mu.Unlock()
		logger.Log.Debug("Batch executed", zap.Uint64("batch", w.batch), zap.Int("buffers", len(w.buffers)))
	}
}

func (q *headlessQueue) close() {
	q.once.Do(func() { close(q.work) })
	q.wg.Wait()
}

// HeadlessSwapChain rotates between named back buffers that are never
// displayed.
type HeadlessSwapChain struct {
	dev           *HeadlessDevice
	buffers       []*headlessTarget
	depth         DepthTarget
	current       int
	width, height int
	presents      uint64
}

func NewHeadlessSwapChain(dev *HeadlessDevice, width, height, bufferCount int) (*HeadlessSwapChain, error) {
	if bufferCount < 1 {
		return nil, fmt.Errorf("swap chain needs at least one buffer, got %d", bufferCount)
	}
	s := &HeadlessSwapChain{dev: dev, buffers: make([]*headlessTarget, bufferCount)}
	if err := s.Resize(width, height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HeadlessSwapChain) CurrentBackBuffer() RenderTarget { return s.buffers[s.current] }
func (s *HeadlessSwapChain) DepthStencil() DepthTarget       { return s.depth }
func (s *HeadlessSwapChain) Size() (width, height int)       { return s.width, s.height }
func (s *HeadlessSwapChain) Presents() uint64                { return s.presents }

func (s *HeadlessSwapChain) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid swap chain size %dx%d", width, height)
	}
	s.width, s.height = width, height
	for i := range s.buffers {
		s.buffers[i] = &headlessTarget{name: fmt.Sprintf("backBuffer%d", i), width: width, height: height}
		s.dev.track(s.buffers[i], StatePresent)
	}
	depth, err := s.dev.CreateDepthTarget("depthStencil", width, height, false)
	if err != nil {
		return err
	}
	s.depth = depth
	s.current = 0
	return nil
}

// Present checks the back buffer was handed back in the present state and
// moves to the next one.
func (s *HeadlessSwapChain) Present() error {
	if err := s.dev.RemovedReason(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRemoved, err)
	}
	bb := s.buffers[s.current]
	if st, _ := s.dev.State(bb); st != StatePresent {
		s.dev.mu.Lock()
		s.dev.stateError(fmt.Errorf("%s presented in state %s", bb.name, st))
		s.dev.mu.Unlock()
	}
	s.current = (s.current + 1) % len(s.buffers)
	s.presents++
	return nil
}
