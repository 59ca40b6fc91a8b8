package renderer

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNewCamera(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{}, math.Pi/4, 1, 1, 1000)

	if cam == nil {
		t.Fatal("NewCamera returned nil")
	}
	if !vecNear(cam.Look, mgl32.Vec3{0, 0, 1}, 1e-6) {
		t.Errorf("Expected look +z, got %v", cam.Look)
	}
	if !vecNear(cam.Right, mgl32.Vec3{1, 0, 0}, 1e-6) {
		t.Errorf("Expected right +x in a left-handed frame, got %v", cam.Right)
	}
	if cam.Speed <= 0 {
		t.Error("Camera speed should be positive")
	}
}

func TestCameraViewMatrix(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{}, math.Pi/4, 1, 1, 1000)

	p := TransformCoord(cam.View(), mgl32.Vec3{})
	if !vecNear(p, mgl32.Vec3{0, 0, 10}, 1e-5) {
		t.Errorf("Expected the target 10 units ahead, got %v", p)
	}
}

func TestCameraProjectionDepthRange(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, math.Pi/4, 16.0/9.0, 1, 1000)
	proj := cam.Proj()

	if d := TransformCoord(proj, mgl32.Vec3{0, 0, 1}); !near(d.Z(), 0, 1e-5) {
		t.Errorf("Expected near plane at depth 0, got %f", d.Z())
	}
	if d := TransformCoord(proj, mgl32.Vec3{0, 0, 1000}); !near(d.Z(), 1, 1e-4) {
		t.Errorf("Expected far plane at depth 1, got %f", d.Z())
	}
}

func TestCameraApplyInput(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, math.Pi/4, 1, 1, 1000)

	if cam.ApplyInput(InputState{}, 1) {
		t.Error("Idle input should not move the camera")
	}
	if !cam.ApplyInput(InputState{Forward: true}, 0.5) {
		t.Fatal("Forward input should move the camera")
	}
	if !vecNear(cam.Position, mgl32.Vec3{0, 0, 30}, 1e-4) {
		t.Errorf("Expected (0,0,30) after half a second, got %v", cam.Position)
	}

	cam.ApplyInput(InputState{Right: true, Boost: true}, 0.1)
	if !near(cam.Position.X(), 15, 1e-4) {
		t.Errorf("Expected boosted strafe to x=15, got %f", cam.Position.X())
	}

	// Mouse movement without the rotate button is ignored.
	look := cam.Look
	cam.ApplyInput(InputState{MouseDX: 100}, 0.016)
	if cam.Look != look {
		t.Error("Mouse movement should need the rotate button")
	}
}

func TestCameraStaysOrthonormal(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{200, 200, 0}, mgl32.Vec3{}, math.Pi/4, 1, 1, 1000)
	for i := 0; i < 500; i++ {
		cam.ApplyInput(InputState{Rotate: true, MouseDX: 7, MouseDY: -3}, 0.016)
		cam.View()
	}

	for _, v := range []mgl32.Vec3{cam.Look, cam.Up, cam.Right} {
		if !near(v.Len(), 1, 1e-4) {
			t.Errorf("basis vector %v is not unit length", v)
		}
	}
	if !near(cam.Look.Dot(cam.Up), 0, 1e-4) || !near(cam.Look.Dot(cam.Right), 0, 1e-4) {
		t.Error("camera basis drifted away from orthogonal")
	}
}

func TestCameraFrustum(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{}, math.Pi/4, 1, 1, 100)
	f := cam.Frustum()

	if !f.IntersectsSphere(mgl32.Vec3{}, 1) {
		t.Error("Sphere in front of the camera should be visible")
	}
	if f.IntersectsSphere(mgl32.Vec3{0, 0, -30}, 1) {
		t.Error("Sphere behind the camera should be culled")
	}
	if f.IntersectsSphere(mgl32.Vec3{0, 0, 500}, 1) {
		t.Error("Sphere past the far plane should be culled")
	}
	if !f.IntersectsSphere(mgl32.Vec3{0, 0, -12}, 5) {
		t.Error("Sphere straddling the eye should be kept")
	}
}

func TestWorldSphereScales(t *testing.T) {
	world := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.Scale3D(2, 5, 1))
	s := worldSphere(BoundingSphere{Radius: 1}, world)
	if !vecNear(s.Center, mgl32.Vec3{1, 2, 3}, 1e-6) || !near(s.Radius, 5, 1e-6) {
		t.Errorf("Expected center (1,2,3) radius 5, got %+v", s)
	}
}
