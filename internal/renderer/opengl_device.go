package renderer

import (
	"errors"
	"fmt"
	"image"
	"time"

	"ShadowTerrain/internal/logger"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Uniform block binding points shared with opengl_shaders.go.
const (
	objectBinding   = 0
	passBinding     = 1
	materialBinding = 2
)

// GL 4.1 has no storage buffers, so the material table is a uniform block
// of fixed size. Buffers of that kind are padded to the block size.
const (
	glMaxMaterials      = 128
	glMaterialBlockSize = glMaxMaterials * 112
	glMaxDiffuseMaps    = 8
)

// GLDevice implements Device on an OpenGL 4.1 core context. All methods
// must run on the thread that owns the context.
type GLDevice struct {
	queue   *glQueue
	vao     uint32
	removed error

	// WaitTimeout bounds every CPU wait on a fence. Zero waits forever.
	WaitTimeout time.Duration
}

// NewGLDevice loads the GL entry points for the current context and sets
// the fixed state every pass relies on.
func NewGLDevice() (*GLDevice, error) {
	if err := gl.Init(); err != nil {
		logger.Log.Error("OpenGL initialization failed", zap.Error(err))
		return nil, fmt.Errorf("init OpenGL: %w", err)
	}

	d := &GLDevice{}
	d.queue = &glQueue{dev: d}
	gl.GenVertexArrays(1, &d.vao)

	// Geometry is wound clockwise as seen from the front.
	gl.FrontFace(gl.CW)
	gl.Enable(gl.DEPTH_TEST)

	var align int32
	gl.GetIntegerv(gl.UNIFORM_BUFFER_OFFSET_ALIGNMENT, &align)
	if int(align) > ConstantBufferByteSize(1) {
		return nil, fmt.Errorf("uniform buffer offset alignment %d exceeds %d", align, ConstantBufferByteSize(1))
	}

	logger.Log.Info("OpenGL device initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.Int32("uboAlignment", align))
	return d, nil
}

func (d *GLDevice) Queue() CommandQueue { return d.queue }

func (d *GLDevice) RemovedReason() error { return d.removed }

// checkError drains the GL error queue. Running out of memory loses the
// device; anything else fails the submission.
func (d *GLDevice) checkError(op string) error {
	var errs []uint32
	for e := gl.GetError(); e != gl.NO_ERROR; e = gl.GetError() {
		errs = append(errs, e)
		if e == gl.OUT_OF_MEMORY && d.removed == nil {
			d.removed = fmt.Errorf("GL_OUT_OF_MEMORY during %s", op)
		}
		if len(errs) > 16 {
			break
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s raised GL errors %#x", ErrSubmission, op, errs)
}

func glBufferTarget(kind BufferKind) uint32 {
	switch kind {
	case VertexBuffer:
		return gl.ARRAY_BUFFER
	case IndexBuffer:
		return gl.ELEMENT_ARRAY_BUFFER
	}
	return gl.UNIFORM_BUFFER
}

func (d *GLDevice) CreateBuffer(name string, kind BufferKind, size int) (Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("buffer %s: negative size %d", name, size)
	}
	alloc := size
	if kind == StructuredBuffer && alloc < glMaterialBlockSize {
		alloc = glMaterialBlockSize
	}
	b := &glBuffer{name: name, kind: kind, size: size, target: glBufferTarget(kind)}
	gl.GenBuffers(1, &b.id)
	gl.BindBuffer(b.target, b.id)
	gl.BufferData(b.target, alloc, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(b.target, 0)
	if err := d.checkError("create buffer " + name); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *GLDevice) CreateFence(initial uint64) (Fence, error) {
	return &glFence{dev: d, completed: initial}, nil
}

func (d *GLDevice) CreateEvent() (Event, error) {
	return &glEvent{timeout: d.WaitTimeout}, nil
}

func (d *GLDevice) CreateCommandAllocator() (CommandAllocator, error) {
	return &glAllocator{}, nil
}

func (d *GLDevice) CreateCommandList() (CommandList, error) {
	return &glCommandList{dev: d}, nil
}

// CreateDepthTarget makes a depth texture behind its own framebuffer when
// shaderReadable is set. Otherwise the target is the window's default
// depth buffer.
func (d *GLDevice) CreateDepthTarget(name string, width, height int, shaderReadable bool) (DepthTarget, error) {
	dt := &glDepth{name: name, width: width, height: height, readable: shaderReadable}
	if !shaderReadable {
		return dt, nil
	}

	var undo Unwind
	defer undo.Unwind()

	gl.GenTextures(1, &dt.texture)
	undo.Add(func() { gl.DeleteTextures(1, &dt.texture) })
	gl.BindTexture(gl.TEXTURE_2D, dt.texture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH_COMPONENT24, int32(width), int32(height), 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_BORDER)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_BORDER)
	border := [4]float32{1, 1, 1, 1}
	gl.TexParameterfv(gl.TEXTURE_2D, gl.TEXTURE_BORDER_COLOR, &border[0])
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_MODE, gl.COMPARE_REF_TO_TEXTURE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_FUNC, gl.LEQUAL)

	gl.GenFramebuffers(1, &dt.fbo)
	undo.Add(func() { gl.DeleteFramebuffers(1, &dt.fbo) })
	gl.BindFramebuffer(gl.FRAMEBUFFER, dt.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, dt.texture, 0)
	gl.DrawBuffer(gl.NONE)
	gl.ReadBuffer(gl.NONE)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		return nil, fmt.Errorf("depth target %s: framebuffer incomplete (%#x)", name, status)
	}
	if err := d.checkError("create depth target " + name); err != nil {
		return nil, err
	}
	undo.Discard()
	logger.Log.Info("Depth target created", zap.String("name", name), zap.Int("width", width), zap.Int("height", height))
	return dt, nil
}

// CreateTexture uploads img as a repeating, mipmapped RGBA texture.
func (d *GLDevice) CreateTexture(name string, img image.Image) (Texture, error) {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != rgba.Rect.Dx()*4 {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	t := &glTexture{name: name}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(rgba.Rect.Dx()), int32(rgba.Rect.Dy()), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba.Pix))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := d.checkError("create texture " + name); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *GLDevice) CreatePipeline(desc PipelineDesc) (Pipeline, error) {
	prog, ok := desc.Program.(*GLProgram)
	if !ok {
		return nil, fmt.Errorf("pipeline %s: program %T is not a GL program", desc.Name, desc.Program)
	}
	return &glPipeline{desc: desc, program: prog.id}, nil
}

type glBuffer struct {
	name   string
	kind   BufferKind
	size   int
	target uint32
	id     uint32
}

func (b *glBuffer) Name() string     { return b.name }
func (b *glBuffer) Kind() BufferKind { return b.kind }
func (b *glBuffer) Size() int        { return b.size }

// Write goes through glBufferSubData, which the driver orders after every
// draw already submitted against the buffer.
func (b *glBuffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("write of %d bytes at %d overflows %s buffer %s of %d bytes", len(data), offset, b.kind, b.name, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(b.target, b.id)
	gl.BufferSubData(b.target, offset, len(data), gl.Ptr(data))
	gl.BindBuffer(b.target, 0)
	return nil
}

type glTarget struct {
	name          string
	width, height int
}

func (t *glTarget) Name() string              { return t.name }
func (t *glTarget) Size() (width, height int) { return t.width, t.height }

type glDepth struct {
	name          string
	width, height int
	readable      bool
	texture       uint32
	fbo           uint32 // zero for the default framebuffer
}

func (t *glDepth) Name() string              { return t.name }
func (t *glDepth) Size() (width, height int) { return t.width, t.height }
func (t *glDepth) ShaderReadable() bool      { return t.readable }

type glTexture struct {
	name string
	id   uint32
}

func (t *glTexture) Name() string { return t.name }

type glPipeline struct {
	desc    PipelineDesc
	program uint32
}

func (p *glPipeline) Desc() PipelineDesc { return p.desc }

func glBlendFactor(f BlendFactor) uint32 {
	switch f {
	case BlendZero:
		return gl.ZERO
	case BlendSrcAlpha:
		return gl.SRC_ALPHA
	case BlendInvSrcAlpha:
		return gl.ONE_MINUS_SRC_ALPHA
	}
	return gl.ONE
}

func (p *glPipeline) apply() {
	d := p.desc
	gl.UseProgram(p.program)

	switch d.Cull {
	case CullNone:
		gl.Disable(gl.CULL_FACE)
	case CullFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}

	switch d.DepthFunc {
	case CompareLessEqual:
		gl.DepthFunc(gl.LEQUAL)
	case CompareAlways:
		gl.DepthFunc(gl.ALWAYS)
	default:
		gl.DepthFunc(gl.LESS)
	}
	gl.DepthMask(d.DepthWrite)
	gl.ColorMask(d.ColorWrites, d.ColorWrites, d.ColorWrites, d.ColorWrites)

	if d.Blend.Enabled {
		gl.Enable(gl.BLEND)
		gl.BlendFuncSeparate(glBlendFactor(d.Blend.Src), glBlendFactor(d.Blend.Dst), glBlendFactor(d.Blend.SrcAlpha), glBlendFactor(d.Blend.DstAlpha))
		gl.BlendEquation(gl.FUNC_ADD)
	} else {
		gl.Disable(gl.BLEND)
	}

	if d.DepthBias != 0 || d.SlopeScaledDepthBias != 0 {
		gl.Enable(gl.POLYGON_OFFSET_FILL)
		// Units are the smallest resolvable depth step in both APIs.
		gl.PolygonOffset(d.SlopeScaledDepthBias, float32(d.DepthBias))
	} else {
		gl.Disable(gl.POLYGON_OFFSET_FILL)
	}
}

// glFence keeps one sync object per signaled value that has not been
// seen complete yet.
type glFence struct {
	dev       *GLDevice
	completed uint64
	pending   []glSync
}

type glSync struct {
	value uint64
	sync  uintptr
}

func (f *glFence) CompletedValue() uint64 {
	for len(f.pending) > 0 {
		s := f.pending[0]
		r := gl.ClientWaitSync(s.sync, 0, 0)
		if r != gl.ALREADY_SIGNALED && r != gl.CONDITION_SATISFIED {
			break
		}
		gl.DeleteSync(s.sync)
		f.completed = s.value
		f.pending = f.pending[1:]
	}
	return f.completed
}

func (f *glFence) signal(value uint64) {
	f.pending = append(f.pending, glSync{value: value, sync: gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)})
}

func (f *glFence) SetEventOnCompletion(value uint64, ev Event) error {
	e, ok := ev.(*glEvent)
	if !ok {
		return fmt.Errorf("event %T is not a GL event", ev)
	}
	e.fence, e.value = f, value
	return nil
}

// glEvent blocks in glClientWaitSync on the first pending sync object at
// or past its value.
type glEvent struct {
	fence   *glFence
	value   uint64
	timeout time.Duration
}

func (e *glEvent) Wait() error {
	if e.fence == nil {
		return errors.New("event not bound to a fence")
	}
	var deadline time.Time
	if e.timeout > 0 {
		deadline = time.Now().Add(e.timeout)
	}
	for e.fence.CompletedValue() < e.value {
		if len(e.fence.pending) == 0 {
			return fmt.Errorf("fence value %d was never signaled", e.value)
		}
		s := e.fence.pending[0]
		r := gl.ClientWaitSync(s.sync, gl.SYNC_FLUSH_COMMANDS_BIT, uint64(time.Millisecond*10))
		if r == gl.WAIT_FAILED {
			return fmt.Errorf("%w: glClientWaitSync failed on fence value %d", ErrSubmission, s.value)
		}
		if r == gl.ALREADY_SIGNALED || r == gl.CONDITION_SATISFIED {
			continue
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("fence value %d not reached after %s", e.value, e.timeout)
		}
	}
	return nil
}

func (e *glEvent) Close() error { return nil }

type glAllocator struct{}

// Reset is free: recorded closures own nothing on the GPU.
func (a *glAllocator) Reset() error { return nil }

// glCommandList records closures that replay the GL calls on Execute.
type glCommandList struct {
	dev       *GLDevice
	cmds      []func()
	recording bool
}

func (l *glCommandList) Reset(alloc CommandAllocator, initial Pipeline) error {
	if l.recording {
		return errors.New("command list reset while recording")
	}
	l.cmds = l.cmds[:0]
	l.recording = true
	if initial != nil {
		l.SetPipeline(initial)
	}
	return nil
}

func (l *glCommandList) Close() error {
	if !l.recording {
		return errors.New("command list closed twice")
	}
	l.recording = false
	return nil
}

func (l *glCommandList) add(f func()) { l.cmds = append(l.cmds, f) }

func (l *glCommandList) SetViewport(vp Viewport) {
	l.add(func() {
		gl.Viewport(int32(vp.X), int32(vp.Y), int32(vp.Width), int32(vp.Height))
		gl.DepthRange(float64(vp.MinDepth), float64(vp.MaxDepth))
	})
}

func (l *glCommandList) SetPipeline(p Pipeline) {
	gp := p.(*glPipeline)
	l.add(gp.apply)
}

func (l *glCommandList) SetRenderTargets(colors []RenderTarget, depth DepthTarget) {
	var fbo uint32
	if dt, ok := depth.(*glDepth); ok && len(colors) == 0 {
		fbo = dt.fbo
	}
	l.add(func() { gl.BindFramebuffer(gl.FRAMEBUFFER, fbo) })
}

func (l *glCommandList) ClearRenderTarget(rt RenderTarget, color [4]float32) {
	l.add(func() {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.ColorMask(true, true, true, true)
		gl.ClearColor(color[0], color[1], color[2], color[3])
		gl.Clear(gl.COLOR_BUFFER_BIT)
	})
}

func (l *glCommandList) ClearDepth(dt DepthTarget, depth float32) {
	var fbo uint32
	if d, ok := dt.(*glDepth); ok {
		fbo = d.fbo
	}
	l.add(func() {
		gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
		gl.DepthMask(true)
		gl.ClearDepthf(depth)
		gl.Clear(gl.DEPTH_BUFFER_BIT)
	})
}

// Transition is implicit in GL; the driver tracks hazards itself.
func (l *glCommandList) Transition(res Resource, before, after ResourceState) {}

func (l *glCommandList) BindPassConstants(buf Buffer, offset, size int) {
	id := buf.(*glBuffer).id
	l.add(func() { gl.BindBufferRange(gl.UNIFORM_BUFFER, passBinding, id, offset, size) })
}

func (l *glCommandList) BindObjectConstants(buf Buffer, offset, size int) {
	id := buf.(*glBuffer).id
	l.add(func() { gl.BindBufferRange(gl.UNIFORM_BUFFER, objectBinding, id, offset, size) })
}

func (l *glCommandList) BindMaterials(buf Buffer) {
	id := buf.(*glBuffer).id
	l.add(func() { gl.BindBufferRange(gl.UNIFORM_BUFFER, materialBinding, id, 0, glMaterialBlockSize) })
}

func (l *glCommandList) BindShadowMap(dt DepthTarget) {
	tex := dt.(*glDepth).texture
	l.add(func() {
		gl.ActiveTexture(gl.TEXTURE0 + ShadowMapSlot)
		gl.BindTexture(gl.TEXTURE_2D, tex)
	})
}

func (l *glCommandList) BindTexture(slot int, tex Texture) {
	id := tex.(*glTexture).id
	l.add(func() {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(slot))
		gl.BindTexture(gl.TEXTURE_2D, id)
	})
}

func (l *glCommandList) SetVertexBuffer(buf Buffer, stride int) {
	id, vao := buf.(*glBuffer).id, l.dev.vao
	l.add(func() {
		gl.BindVertexArray(vao)
		gl.BindBuffer(gl.ARRAY_BUFFER, id)
		s := int32(stride)
		gl.VertexAttribPointer(0, 3, gl.FLOAT, false, s, gl.PtrOffset(VertexPosOffset))
		gl.EnableVertexAttribArray(0)
		gl.VertexAttribPointer(1, 3, gl.FLOAT, false, s, gl.PtrOffset(VertexNormalOffset))
		gl.EnableVertexAttribArray(1)
		gl.VertexAttribPointer(2, 2, gl.FLOAT, false, s, gl.PtrOffset(VertexTexCOffset))
		gl.EnableVertexAttribArray(2)
		gl.VertexAttribPointer(3, 3, gl.FLOAT, false, s, gl.PtrOffset(VertexTangentOffset))
		gl.EnableVertexAttribArray(3)
	})
}

func (l *glCommandList) SetIndexBuffer(buf Buffer) {
	id, vao := buf.(*glBuffer).id, l.dev.vao
	l.add(func() {
		gl.BindVertexArray(vao)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, id)
	})
}

func (l *glCommandList) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) {
	l.add(func() {
		gl.DrawElementsBaseVertex(gl.TRIANGLES, int32(indexCount), gl.UNSIGNED_INT, gl.PtrOffset(int(startIndex)*4), baseVertex)
	})
}

// glQueue replays command lists in order on the calling thread.
type glQueue struct {
	dev *GLDevice
}

func (q *glQueue) Execute(lists ...CommandList) error {
	if q.dev.removed != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRemoved, q.dev.removed)
	}
	for _, cl := range lists {
		l, ok := cl.(*glCommandList)
		if !ok {
			return fmt.Errorf("%w: command list %T is not a GL list", ErrSubmission, cl)
		}
		if l.recording {
			return fmt.Errorf("%w: command list still recording", ErrSubmission)
		}
		for _, cmd := range l.cmds {
			cmd()
		}
	}
	gl.BindVertexArray(0)
	return q.dev.checkError("execute")
}

func (q *glQueue) Signal(f Fence, value uint64) error {
	gf, ok := f.(*glFence)
	if !ok {
		return fmt.Errorf("fence %T is not a GL fence", f)
	}
	gf.signal(value)
	return q.dev.checkError("signal")
}

// GLSwapChain presents through a glfw window. The back buffer and its
// depth buffer belong to the default framebuffer.
type GLSwapChain struct {
	window *glfw.Window
	back   *glTarget
	depth  *glDepth
}

func NewGLSwapChain(window *glfw.Window) *GLSwapChain {
	w, h := window.GetFramebufferSize()
	return &GLSwapChain{
		window: window,
		back:   &glTarget{name: "backBuffer", width: w, height: h},
		depth:  &glDepth{name: "depthStencil", width: w, height: h},
	}
}

func (s *GLSwapChain) CurrentBackBuffer() RenderTarget { return s.back }
func (s *GLSwapChain) DepthStencil() DepthTarget       { return s.depth }
func (s *GLSwapChain) Size() (width, height int)       { return s.back.width, s.back.height }

// Resize only records the size; the window system already resized the
// default framebuffer.
func (s *GLSwapChain) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid swap chain size %dx%d", width, height)
	}
	s.back.width, s.back.height = width, height
	s.depth.width, s.depth.height = width, height
	return nil
}

func (s *GLSwapChain) Present() error {
	s.window.SwapBuffers()
	return nil
}
