package renderer

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func near(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func TestComputeLightMatricesStraightDown(t *testing.T) {
	lm := ComputeLightMatrices(mgl32.Vec3{0, -1, 0}, BoundingSphere{Radius: 10})

	if !vecNear(lm.LightPos, mgl32.Vec3{0, 20, 0}, 1e-5) {
		t.Errorf("Expected light at (0,20,0), got %v", lm.LightPos)
	}
	box := lm.Box
	if !near(box.Left, -10, 1e-4) || !near(box.Right, 10, 1e-4) ||
		!near(box.Bottom, -10, 1e-4) || !near(box.Top, 10, 1e-4) {
		t.Errorf("Expected a 20x20 box around the origin, got %+v", box)
	}
	if !near(lm.NearZ, 10, 1e-4) || !near(lm.FarZ, 30, 1e-4) {
		t.Errorf("Expected near/far 10/30, got %f/%f", lm.NearZ, lm.FarZ)
	}

	for _, m := range lm.View {
		if math.IsNaN(float64(m)) {
			t.Fatalf("view matrix has NaN: %v", lm.View)
		}
	}

	// The box corner above world (10,0,10) lands on texture (1,0) halfway
	// through the depth range.
	p := TransformCoord(lm.ShadowTransform, mgl32.Vec3{10, 0, 10})
	if !vecNear(p, mgl32.Vec3{1, 0, 0.5}, 1e-4) {
		t.Errorf("Expected (1,0,0.5), got %v", p)
	}
	c := TransformCoord(lm.ShadowTransform, mgl32.Vec3{})
	if !vecNear(c, mgl32.Vec3{0.5, 0.5, 0.5}, 1e-4) {
		t.Errorf("Expected scene center at (0.5,0.5,0.5), got %v", c)
	}
}

func TestComputeLightMatricesGeneralDirection(t *testing.T) {
	dir := mgl32.Vec3{0.57735, -0.57735, 0.57735}
	bounds := BoundingSphere{Center: mgl32.Vec3{5, 0, -3}, Radius: 50}
	lm := ComputeLightMatrices(dir, bounds)

	if d := lm.LightPos.Sub(bounds.Center).Len(); !near(d, 100, 1e-3) {
		t.Errorf("Expected light 2r from the center, got distance %f", d)
	}

	c := TransformCoord(lm.View, bounds.Center)
	box := lm.Box
	if !near(box.Left, c[0]-50, 1e-3) || !near(box.Right, c[0]+50, 1e-3) ||
		!near(box.Bottom, c[1]-50, 1e-3) || !near(box.Top, c[1]+50, 1e-3) ||
		!near(box.Near, c[2]-50, 1e-3) || !near(box.Far, c[2]+50, 1e-3) {
		t.Errorf("Box %+v is not the center %v grown by the radius", box, c)
	}

	tex := TransformCoord(lm.ShadowTransform, bounds.Center)
	if !vecNear(tex, mgl32.Vec3{0.5, 0.5, 0.5}, 1e-4) {
		t.Errorf("Expected center at texture (0.5,0.5) depth 0.5, got %v", tex)
	}

	// Any point of the sphere stays inside the shadow map.
	for _, off := range []mgl32.Vec3{{50, 0, 0}, {0, -50, 0}, {0, 0, 50}, {-28, 28, -28}} {
		p := TransformCoord(lm.ShadowTransform, bounds.Center.Add(off))
		for k := 0; k < 3; k++ {
			if p[k] < -1e-4 || p[k] > 1+1e-4 {
				t.Errorf("point %v maps outside [0,1]: %v", off, p)
				break
			}
		}
	}
}

func TestComputeLightMatricesUpwardLight(t *testing.T) {
	lm := ComputeLightMatrices(mgl32.Vec3{0, 1, 0}, BoundingSphere{Radius: 5})
	for _, m := range lm.ShadowTransform {
		if math.IsNaN(float64(m)) || math.IsInf(float64(m), 0) {
			t.Fatalf("shadow transform is degenerate: %v", lm.ShadowTransform)
		}
	}
}

func TestSceneBounds(t *testing.T) {
	b := SceneBounds(30, 40, 2)
	if b.Center != (mgl32.Vec3{}) {
		t.Errorf("Expected centered bounds, got %v", b.Center)
	}
	if !near(b.Radius, 27, 1e-5) {
		t.Errorf("Expected radius 27, got %f", b.Radius)
	}
}

func TestNewShadowMap(t *testing.T) {
	dev := NewHeadlessDevice(HeadlessOptions{})
	defer dev.Close()

	sm, err := NewShadowMap(dev, 1024, 512)
	if err != nil {
		t.Fatalf("NewShadowMap failed: %v", err)
	}
	if !sm.Depth.ShaderReadable() {
		t.Error("shadow map must be shader readable")
	}
	if sm.Viewport.Width != 1024 || sm.Viewport.Height != 512 || sm.Viewport.MaxDepth != 1 {
		t.Errorf("Unexpected viewport %+v", sm.Viewport)
	}
	if st, _ := dev.State(sm.Depth); st != StateShaderRead {
		t.Errorf("Expected the shadow map to start readable, got %s", st)
	}
}
