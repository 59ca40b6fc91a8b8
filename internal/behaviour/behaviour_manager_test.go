package behaviour

import (
	"errors"
	"math"
	"testing"

	"ShadowTerrain/internal/renderer"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
)

type MockBehaviour struct {
	starts   int
	updates  int
	lastDt   float32
	startErr error
	err      error
}

func (m *MockBehaviour) Start() error {
	m.starts++
	return m.startErr
}

func (m *MockBehaviour) Update(dt float32) error {
	m.updates++
	m.lastDt = dt
	return m.err
}

func TestManagerStartsOnce(t *testing.T) {
	m := NewManager()
	b := &MockBehaviour{}
	m.Add("mock", b)

	for i := 0; i < 3; i++ {
		if err := m.UpdateAll(0.5); err != nil {
			t.Fatalf("UpdateAll failed: %v", err)
		}
	}
	if b.starts != 1 {
		t.Errorf("Expected 1 start, got %d", b.starts)
	}
	if b.updates != 3 || b.lastDt != 0.5 {
		t.Errorf("Expected 3 updates with dt 0.5, got %d with %f", b.updates, b.lastDt)
	}
}

func TestManagerRemoveAndDisable(t *testing.T) {
	m := NewManager()
	a, b := &MockBehaviour{}, &MockBehaviour{}
	m.Add("a", a)
	m.Add("b", b)

	if !m.SetEnabled("a", false) {
		t.Fatal("SetEnabled should find a")
	}
	_ = m.UpdateAll(1)
	if a.updates != 0 || b.updates != 1 {
		t.Errorf("Expected only b to update, got a=%d b=%d", a.updates, b.updates)
	}

	if !m.Remove("b") || m.Remove("b") {
		t.Error("Remove should succeed exactly once")
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 behaviour left, got %d", m.Len())
	}
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Expected empty manager, got %d", m.Len())
	}
}

func TestManagerCombinesErrors(t *testing.T) {
	m := NewManager()
	errBoom := errors.New("boom")
	failing := &MockBehaviour{err: errBoom}
	badStart := &MockBehaviour{startErr: errBoom}
	healthy := &MockBehaviour{}
	m.Add("failing", failing)
	m.Add("badStart", badStart)
	m.Add("healthy", healthy)

	err := m.UpdateAll(1)
	if len(multierr.Errors(err)) != 2 {
		t.Fatalf("Expected 2 combined errors, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Error("Expected the combined error to wrap errBoom")
	}
	if healthy.updates != 1 {
		t.Error("a failing behaviour should not stop the others")
	}
	if badStart.updates != 0 {
		t.Error("a behaviour that failed to start should not update")
	}

	_ = m.UpdateAll(1)
	if badStart.starts != 2 {
		t.Errorf("Expected start to be retried, got %d starts", badStart.starts)
	}
}

func TestFuncBehaviour(t *testing.T) {
	var total float32
	m := NewManager()
	m.Add("sum", Func(func(dt float32) error {
		total += dt
		return nil
	}))
	_ = m.UpdateAll(0.25)
	_ = m.UpdateAll(0.25)
	if total != 0.5 {
		t.Errorf("Expected 0.5, got %f", total)
	}
}

func TestLightRotation(t *testing.T) {
	rig := DefaultLightRig()
	rot := &LightRotation{Rig: rig, Speed: 0.1}
	m := NewManager()
	m.Add("lights", rot)

	_ = m.UpdateAll(0)
	if rig.KeyLight() != rig.Base[0] {
		t.Errorf("Expected no rotation at t=0, got %v", rig.KeyLight())
	}

	// pi/2 about y takes (x,y,z) to (z,y,-x).
	_ = m.UpdateAll(float32(math.Pi/2) / 0.1)
	want := mgl32.Vec3{0.57735, -0.57735, -0.57735}
	if !rig.KeyLight().ApproxEqualThreshold(want, 1e-4) {
		t.Errorf("Expected %v, got %v", want, rig.KeyLight())
	}
	for i, d := range rig.Directions {
		if math.Abs(float64(d.Len()-rig.Base[i].Len())) > 1e-5 {
			t.Errorf("light %d changed length", i)
		}
		if d.Y() != rig.Base[i].Y() {
			t.Errorf("light %d changed elevation", i)
		}
	}

	lights := rig.Constants()
	if len(lights) != renderer.MaxLights {
		t.Fatalf("Expected %d lights, got %d", renderer.MaxLights, len(lights))
	}
	if lights[0].Strength != (mgl32.Vec3{0.9, 0.8, 0.7}) || lights[0].Direction != rig.KeyLight() {
		t.Errorf("unexpected key light constants %+v", lights[0])
	}
}

func TestTextureScrollWrapsAndMarksDirty(t *testing.T) {
	reg := renderer.NewRegistry(3)
	id, err := reg.AddMaterial(renderer.MaterialDesc{Name: "water"})
	if err != nil {
		t.Fatal(err)
	}
	reg.Material(id).NumFramesDirty = 0

	scroll := &TextureScroll{Registry: reg, Material: id, SpeedU: 0.1, SpeedV: 0.02}
	_ = scroll.Update(5)
	if math.Abs(float64(scroll.U-0.5)) > 1e-6 || math.Abs(float64(scroll.V-0.1)) > 1e-6 {
		t.Errorf("Expected offsets (0.5,0.1), got (%f,%f)", scroll.U, scroll.V)
	}
	mat := reg.Material(id)
	if mat.NumFramesDirty != 3 {
		t.Errorf("Expected material dirty for 3 frames, got %d", mat.NumFramesDirty)
	}
	if mat.Transform.Col(3).Vec2() != (mgl32.Vec2{scroll.U, scroll.V}) {
		t.Errorf("Expected translation (%f,%f), got %v", scroll.U, scroll.V, mat.Transform.Col(3))
	}

	_ = scroll.Update(7)
	if scroll.U < 0 || scroll.U >= 1 {
		t.Errorf("Expected U wrapped into [0,1), got %f", scroll.U)
	}
	if math.Abs(float64(scroll.U-0.2)) > 1e-5 {
		t.Errorf("Expected U 0.2 after wrapping, got %f", scroll.U)
	}
}
