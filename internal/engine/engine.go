package engine

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"ShadowTerrain/internal/config"
	"ShadowTerrain/internal/logger"
	"ShadowTerrain/internal/renderer"
	"ShadowTerrain/internal/scene"

	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine owns the window, device and frame loop for one terrain scene.
type Engine struct {
	cfg    config.Config
	window *glfw.Window
	dev    renderer.Device
	scene  *scene.TerrainScene
	orc    *renderer.FrameOrchestrator

	mouse mouseTracker
	// EnableCameraInput gates keyboard and mouse camera control.
	EnableCameraInput bool
	// OnFrame, when set, runs after every submitted frame.
	OnFrame func(timing renderer.FrameTiming)
}

// Run picks the loop for cfg.Backend and blocks until it ends.
func Run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.Backend {
	case config.BackendHeadless:
		report, err := RunHeadless(cfg)
		if err == nil {
			logger.Log.Info("Headless run finished",
				zap.Int("frames", report.Frames),
				zap.Duration("elapsed", report.Elapsed),
				zap.Uint64("draws", report.Stats.Draws),
				zap.Uint64("violations", report.Stats.Violations))
		}
		return err
	case config.BackendOpenGL:
		e := &Engine{cfg: cfg, EnableCameraInput: true}
		return e.RunWindow()
	}
	return fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
}

// HeadlessReport summarizes a headless run.
type HeadlessReport struct {
	Frames  int
	Elapsed time.Duration
	Stats   renderer.HeadlessStats
}

// RunHeadless renders cfg.Headless.Frames frames at a fixed time step on
// the simulated device.
func RunHeadless(cfg config.Config) (HeadlessReport, error) {
	dev := renderer.NewHeadlessDevice(renderer.HeadlessOptions{Latency: cfg.Headless.GPULatency})
	defer dev.Close()

	e := &Engine{cfg: cfg, dev: dev}
	swap, err := renderer.NewHeadlessSwapChain(dev, cfg.Window.Width, cfg.Window.Height, 2)
	if err != nil {
		return HeadlessReport{}, err
	}
	if err := e.build(renderer.HeadlessShaders(), swap); err != nil {
		return HeadlessReport{}, err
	}

	start := time.Now()
	dt := cfg.Headless.DeltaTime
	var total float32
	var runErr error
	frames := 0
	for ; frames < cfg.Headless.Frames; frames++ {
		total += dt
		timing := renderer.FrameTiming{Frame: uint64(frames), Delta: dt, Total: total}
		if runErr = e.frame(timing, renderer.InputState{}); runErr != nil {
			break
		}
	}
	runErr = multierr.Append(runErr, e.orc.Close())
	return HeadlessReport{Frames: frames, Elapsed: time.Since(start), Stats: dev.Stats()}, runErr
}

func (e *Engine) build(shaders renderer.ShaderSet, swap renderer.SwapChain) error {
	s, err := scene.New(e.dev, shaders, e.cfg)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}
	orc, err := renderer.NewFrameOrchestrator(renderer.OrchestratorDesc{
		Device:     e.dev,
		SwapChain:  swap,
		Scene:      s,
		FrameDepth: e.cfg.FrameDepth,
		Sizes:      s.Sizes(),
		Registry:   s.Registry(),
	})
	if err != nil {
		return fmt.Errorf("create frame orchestrator: %w", err)
	}
	e.scene, e.orc = s, orc
	return nil
}

func (e *Engine) frame(timing renderer.FrameTiming, input renderer.InputState) error {
	if err := e.orc.Frame(timing, input); err != nil {
		return err
	}
	if e.OnFrame != nil {
		e.OnFrame(timing)
	}
	return nil
}

func (e *Engine) Scene() *scene.TerrainScene                { return e.scene }
func (e *Engine) Orchestrator() *renderer.FrameOrchestrator { return e.orc }

// RunWindow opens a GL 4.1 core window and renders until it is closed.
// It locks the calling goroutine to its OS thread for the GL context.
func (e *Engine) RunWindow() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := glfw.Init(); err != nil {
		logger.Log.Error("Could not initialize glfw", zap.Error(err))
		return fmt.Errorf("init glfw: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.DepthBits, 24)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	w := e.cfg.Window
	window, err := glfw.CreateWindow(w.Width, w.Height, w.Title, nil, nil)
	if err != nil {
		logger.Log.Error("Could not create glfw window", zap.Error(err))
		return fmt.Errorf("create window: %w", err)
	}
	defer window.Destroy()
	e.window = window
	window.MakeContextCurrent()
	window.SetPos(w.X, w.Y)
	if w.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	dev, err := renderer.NewGLDevice()
	if err != nil {
		return err
	}
	e.dev = dev
	shaders, err := renderer.CompileShaders()
	if err != nil {
		return fmt.Errorf("compile shaders: %w", err)
	}
	if err := e.build(shaders, renderer.NewGLSwapChain(window)); err != nil {
		return err
	}
	styleWindow(window, e.scene.ClearColor())

	var resizeErr error
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		resizeErr = multierr.Append(resizeErr, e.orc.Resize(width, height))
	})
	window.SetCursorPosCallback(e.mouseCallback)
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	logger.Log.Info("Render loop starting", zap.Int("width", w.Width), zap.Int("height", w.Height))
	err = e.renderLoop(func() error {
		err := resizeErr
		resizeErr = nil
		return err
	})
	return multierr.Append(err, e.orc.Close())
}

func (e *Engine) renderLoop(pendingErr func() error) error {
	start := glfw.GetTime()
	last := start
	var frame uint64
	for !e.window.ShouldClose() {
		glfw.PollEvents()
		if err := pendingErr(); err != nil {
			return err
		}

		now := glfw.GetTime()
		timing := renderer.FrameTiming{Frame: frame, Delta: float32(now - last), Total: float32(now - start)}
		last = now

		var input renderer.InputState
		if e.EnableCameraInput {
			input = e.pollInput()
		}
		if err := e.frame(timing, input); err != nil {
			if errors.Is(err, renderer.ErrDeviceRemoved) {
				logger.Log.Error("GPU device lost, stopping", zap.Error(err))
			}
			return err
		}
		frame++
	}
	return nil
}

func (e *Engine) pollInput() renderer.InputState {
	pressed := func(k glfw.Key) bool { return e.window.GetKey(k) == glfw.Press }
	in := renderer.InputState{
		Forward: pressed(glfw.KeyW),
		Back:    pressed(glfw.KeyS),
		Left:    pressed(glfw.KeyA),
		Right:   pressed(glfw.KeyD),
		Boost:   pressed(glfw.KeyLeftShift) || pressed(glfw.KeyRightShift),
	}
	in.MouseDX, in.MouseDY, in.Rotate = e.mouse.take()
	return in
}

// mouseTracker accumulates cursor motion between frames while the right
// button is held.
type mouseTracker struct {
	lastX, lastY float64
	dx, dy       float64
	tracking     bool
}

func (m *mouseTracker) move(x, y float64, held bool) {
	if !held {
		m.tracking = false
		return
	}
	if !m.tracking {
		m.lastX, m.lastY = x, y
		m.tracking = true
		return
	}
	m.dx += x - m.lastX
	m.dy += y - m.lastY
	m.lastX, m.lastY = x, y
}

func (m *mouseTracker) take() (dx, dy float32, rotate bool) {
	dx, dy, rotate = float32(m.dx), float32(m.dy), m.tracking
	m.dx, m.dy = 0, 0
	return dx, dy, rotate
}

func (e *Engine) mouseCallback(w *glfw.Window, xpos, ypos float64) {
	held := e.EnableCameraInput &&
		w.GetAttrib(glfw.Focused) == glfw.True &&
		w.GetMouseButton(glfw.MouseButtonRight) == glfw.Press
	e.mouse.move(xpos, ypos, held)
}
