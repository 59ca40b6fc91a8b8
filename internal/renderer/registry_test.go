package renderer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
)

func newShapesRegistry(t *testing.T, dev Device, depth int) *Registry {
	t.Helper()
	reg := NewRegistry(depth)

	vertices, indices, args := MergeMeshes(
		[]string{"box", "grid", "sphere"},
		[]MeshData{CreateBox(1, 1, 1), CreateGrid(20, 20, 5, 5), CreateSphere(0.5, 8, 8)},
	)
	geo, err := UploadGeometry(dev, "shapes", vertices, indices, args)
	if err != nil {
		t.Fatalf("UploadGeometry failed: %v", err)
	}
	if _, err := reg.AddGeometry(geo); err != nil {
		t.Fatalf("AddGeometry failed: %v", err)
	}

	for _, m := range []MaterialDesc{
		{Name: "stone", DiffuseAlbedo: mgl32.Vec4{1, 1, 1, 1}, FresnelR0: mgl32.Vec3{0.1, 0.1, 0.1}, Roughness: 0.6},
		{Name: "water", DiffuseAlbedo: mgl32.Vec4{1, 1, 1, 0.5}, FresnelR0: mgl32.Vec3{0.1, 0.1, 0.1}, Roughness: 1},
	} {
		if _, err := reg.AddMaterial(m); err != nil {
			t.Fatalf("AddMaterial failed: %v", err)
		}
	}

	for _, d := range []RenderItemDesc{
		{Name: "floor", Geometry: "shapes", Submesh: "grid", Material: "stone", Layer: LayerOpaque},
		{Name: "crate", Geometry: "shapes", Submesh: "box", Material: "stone", Layer: LayerOpaque, World: mgl32.Translate3D(0, 1, 0)},
		{Name: "sky", Geometry: "shapes", Submesh: "sphere", Material: "stone", Layer: LayerSky, World: mgl32.Scale3D(500, 500, 500)},
		{Name: "bubble", Geometry: "shapes", Submesh: "sphere", Material: "water", Layer: LayerTransparent, World: mgl32.Translate3D(0, 2, 0)},
	} {
		if _, err := reg.AddRenderItem(d); err != nil {
			t.Fatalf("AddRenderItem %s failed: %v", d.Name, err)
		}
	}
	return reg
}

func readObjectConstants(t *testing.T, cb *UploadBuffer[ObjectConstants], i int) ObjectConstants {
	t.Helper()
	hb, ok := cb.Buffer().(*headlessBuffer)
	if !ok {
		t.Fatalf("buffer %T is not a headless buffer", cb.Buffer())
	}
	var oc ObjectConstants
	off := cb.Offset(i)
	if err := binary.Read(bytes.NewReader(hb.Bytes()[off:off+cb.ElementSize()]), binary.LittleEndian, &oc); err != nil {
		t.Fatalf("decode object constants: %v", err)
	}
	return oc
}

func TestRegistryAssignsSlotsAndLayers(t *testing.T) {
	dev := NewHeadlessDevice(HeadlessOptions{})
	defer dev.Close()
	reg := newShapesRegistry(t, dev, 3)

	for i, it := range reg.Items() {
		if it.ObjCBIndex != i {
			t.Errorf("item %s: expected object slot %d, got %d", it.Name, i, it.ObjCBIndex)
		}
		if it.NumFramesDirty != 3 {
			t.Errorf("item %s: expected 3 dirty frames, got %d", it.Name, it.NumFramesDirty)
		}
	}
	if n := len(reg.Layer(LayerOpaque)); n != 2 {
		t.Errorf("Expected 2 opaque items, got %d", n)
	}
	if n := len(reg.Layer(LayerDebug)); n != 0 {
		t.Errorf("Expected no debug items, got %d", n)
	}

	id, ok := reg.ItemByName("crate")
	if !ok {
		t.Fatal("crate not found by name")
	}
	if reg.Item(id).Bounds.Radius <= 0 {
		t.Error("item should inherit submesh bounds")
	}
	water, _ := reg.MaterialByName("water")
	if reg.Material(water).CBIndex != 1 {
		t.Errorf("Expected water at material slot 1, got %d", reg.Material(water).CBIndex)
	}
}

func TestRegistryDirtyPropagatesToEverySlot(t *testing.T) {
	dev := NewHeadlessDevice(HeadlessOptions{})
	defer dev.Close()
	const depth = 3
	reg := newShapesRegistry(t, dev, depth)

	slots := make([]*UploadBuffer[ObjectConstants], depth)
	for i := range slots {
		cb, err := NewUploadBuffer[ObjectConstants](dev, "objects", ConstantBuffer, len(reg.Items()))
		if err != nil {
			t.Fatalf("NewUploadBuffer failed: %v", err)
		}
		slots[i] = cb
	}
	crate, _ := reg.ItemByName("crate")

	for i := 0; i < depth; i++ {
		wrote, err := reg.RefreshDirty(crate, slots[i])
		if err != nil {
			t.Fatalf("RefreshDirty failed: %v", err)
		}
		if !wrote {
			t.Errorf("slot %d: expected a write", i)
		}
	}
	if wrote, _ := reg.RefreshDirty(crate, slots[0]); wrote {
		t.Error("clean item should not be written again")
	}

	moved := mgl32.Translate3D(4, 5, 6)
	reg.SetWorld(crate, moved)
	if reg.Item(crate).NumFramesDirty != depth {
		t.Errorf("Expected dirty counter reset to %d, got %d", depth, reg.Item(crate).NumFramesDirty)
	}
	for i := 0; i < depth; i++ {
		if err := reg.RefreshObjects(slots[i]); err != nil {
			t.Fatalf("RefreshObjects failed: %v", err)
		}
	}
	for i := 0; i < depth; i++ {
		oc := readObjectConstants(t, slots[i], reg.Item(crate).ObjCBIndex)
		if oc.World != moved {
			t.Errorf("slot %d: expected the moved world matrix, got %v", i, oc.World)
		}
	}
}

func TestRegistryRefreshMaterials(t *testing.T) {
	dev := NewHeadlessDevice(HeadlessOptions{})
	defer dev.Close()
	reg := newShapesRegistry(t, dev, 2)

	buf, err := NewUploadBuffer[MaterialData](dev, "materials", StructuredBuffer, len(reg.Materials()))
	if err != nil {
		t.Fatalf("NewUploadBuffer failed: %v", err)
	}
	if buf.Stride() != buf.ElementSize() {
		t.Errorf("structured buffers should be packed, stride %d size %d", buf.Stride(), buf.ElementSize())
	}
	for i := 0; i < 2; i++ {
		if err := reg.RefreshMaterials(buf); err != nil {
			t.Fatalf("RefreshMaterials failed: %v", err)
		}
	}
	for _, m := range reg.Materials() {
		if m.NumFramesDirty != 0 {
			t.Errorf("material %s still dirty after two frames", m.Name)
		}
	}

	water, _ := reg.MaterialByName("water")
	reg.SetMaterialTransform(water, mgl32.Translate3D(0.1, 0.02, 0))
	if reg.Material(water).NumFramesDirty != 2 {
		t.Error("moving a material's texture should mark it dirty")
	}
}

func TestRegistryReportsMissingKeys(t *testing.T) {
	dev := NewHeadlessDevice(HeadlessOptions{})
	defer dev.Close()
	reg := newShapesRegistry(t, dev, 3)

	_, err := reg.AddRenderItem(RenderItemDesc{Name: "ghost", Geometry: "nope", Material: "nothing"})
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Expected ErrUnknownKey, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("Expected both missing keys reported, got %d: %v", n, err)
	}

	err = reg.ValidateItems([]RenderItemDesc{
		{Name: "a", Geometry: "shapes", Submesh: "cone", Material: "stone"},
		{Name: "b", Geometry: "shapes", Submesh: "box", Material: "stone", Layer: LayerCount},
		{Name: "c", Geometry: "shapes", Submesh: "box", Material: "stone"},
	})
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("Expected 2 validation errors, got %d: %v", n, err)
	}

	if _, err := reg.AddMaterial(MaterialDesc{Name: "stone"}); err == nil {
		t.Error("duplicate material should be rejected")
	}
	if n := len(reg.Items()); n != 4 {
		t.Errorf("failed additions should not register items, got %d", n)
	}
}
