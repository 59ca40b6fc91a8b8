package renderer

import (
	"errors"
	"fmt"

	"ShadowTerrain/internal/logger"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrUnknownKey = errors.New("unknown key")

type (
	GeometryID int
	ItemID     int
)

type RenderLayer int

const (
	LayerOpaque RenderLayer = iota
	LayerSky
	LayerTransparent
	LayerDebug
	LayerCount
)

func (l RenderLayer) String() string {
	switch l {
	case LayerOpaque:
		return "opaque"
	case LayerSky:
		return "sky"
	case LayerTransparent:
		return "transparent"
	case LayerDebug:
		return "debug"
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// RenderItem is one draw call: a submesh of a geometry shaded with a
// material.
type RenderItem struct {
	// HOT DATA - read for every draw
	Geometry   GeometryID
	Material   MaterialID
	Layer      RenderLayer
	IndexCount uint32
	StartIndex uint32
	BaseVertex int32
	ObjCBIndex int

	// COLD DATA - rewritten into the object table only while dirty
	World          mgl32.Mat4
	TexTransform   mgl32.Mat4
	NumFramesDirty int
	Name           string
	Bounds         BoundingSphere // object space, from the submesh
}

type RenderItemDesc struct {
	Name         string
	Geometry     string
	Submesh      string
	Material     string
	Layer        RenderLayer
	World        mgl32.Mat4 // zero value means identity
	TexTransform mgl32.Mat4 // zero value means identity
}

// Registry owns geometries, materials and render items in flat arenas
// addressed by integer handles. Mutations reset the entity's dirty
// counter to the frame ring depth so every slot gets a fresh copy.
type Registry struct {
	frameDepth int

	geometries  []*MeshGeometry
	geometryIDs map[string]GeometryID

	materials   []*Material
	materialIDs map[string]MaterialID

	items   []*RenderItem
	itemIDs map[string]ItemID
	layers  [LayerCount][]ItemID
}

func NewRegistry(frameDepth int) *Registry {
	if frameDepth < 1 {
		frameDepth = DefaultFrameDepth
	}
	return &Registry{
		frameDepth:  frameDepth,
		geometryIDs: make(map[string]GeometryID),
		materialIDs: make(map[string]MaterialID),
		itemIDs:     make(map[string]ItemID),
	}
}

func (r *Registry) FrameDepth() int { return r.frameDepth }

func (r *Registry) AddGeometry(geo *MeshGeometry) (GeometryID, error) {
	if _, ok := r.geometryIDs[geo.Name]; ok {
		return 0, fmt.Errorf("geometry %q already registered", geo.Name)
	}
	id := GeometryID(len(r.geometries))
	r.geometries = append(r.geometries, geo)
	r.geometryIDs[geo.Name] = id
	return id, nil
}

func (r *Registry) Geometry(id GeometryID) *MeshGeometry {
	return r.geometries[id]
}

func (r *Registry) GeometryByName(name string) (GeometryID, bool) {
	id, ok := r.geometryIDs[name]
	return id, ok
}

// AddMaterial assigns the next material table slot.
func (r *Registry) AddMaterial(desc MaterialDesc) (MaterialID, error) {
	if desc.Name == "" {
		return 0, errors.New("material without a name")
	}
	if _, ok := r.materialIDs[desc.Name]; ok {
		return 0, fmt.Errorf("material %q already registered", desc.Name)
	}
	id := MaterialID(len(r.materials))
	r.materials = append(r.materials, &Material{
		Name:            desc.Name,
		CBIndex:         int(id),
		DiffuseAlbedo:   desc.DiffuseAlbedo,
		FresnelR0:       desc.FresnelR0,
		Roughness:       desc.Roughness,
		Transform:       identityIfZero(desc.Transform),
		DiffuseMapIndex: desc.DiffuseMapIndex,
		NormalMapIndex:  desc.NormalMapIndex,
		NumFramesDirty:  r.frameDepth,
	})
	r.materialIDs[desc.Name] = id
	return id, nil
}

func (r *Registry) Material(id MaterialID) *Material {
	return r.materials[id]
}

func (r *Registry) MaterialByName(name string) (MaterialID, bool) {
	id, ok := r.materialIDs[name]
	return id, ok
}

func (r *Registry) Materials() []*Material { return r.materials }

// ValidateItems checks every cross reference of the descriptors and
// reports all missing keys together.
func (r *Registry) ValidateItems(descs []RenderItemDesc) error {
	var err error
	for _, d := range descs {
		err = multierr.Append(err, r.checkItem(d))
	}
	return err
}

func (r *Registry) checkItem(d RenderItemDesc) error {
	var err error
	if d.Layer < 0 || d.Layer >= LayerCount {
		err = multierr.Append(err, fmt.Errorf("render item %q: invalid layer %d", d.Name, int(d.Layer)))
	}
	geoID, ok := r.geometryIDs[d.Geometry]
	if !ok {
		err = multierr.Append(err, fmt.Errorf("%w: render item %q: geometry %q", ErrUnknownKey, d.Name, d.Geometry))
	} else if _, ok := r.geometries[geoID].DrawArgs[d.Submesh]; !ok {
		err = multierr.Append(err, fmt.Errorf("%w: render item %q: submesh %q of geometry %q", ErrUnknownKey, d.Name, d.Submesh, d.Geometry))
	}
	if _, ok := r.materialIDs[d.Material]; !ok {
		err = multierr.Append(err, fmt.Errorf("%w: render item %q: material %q", ErrUnknownKey, d.Name, d.Material))
	}
	return err
}

// AddRenderItem resolves the descriptor's names into handles, assigns the
// next object table slot and files the item under its layer.
func (r *Registry) AddRenderItem(d RenderItemDesc) (ItemID, error) {
	if err := r.checkItem(d); err != nil {
		return 0, err
	}
	geoID := r.geometryIDs[d.Geometry]
	sub := r.geometries[geoID].DrawArgs[d.Submesh]

	id := ItemID(len(r.items))
	r.items = append(r.items, &RenderItem{
		Name:           d.Name,
		Geometry:       geoID,
		Material:       r.materialIDs[d.Material],
		Layer:          d.Layer,
		IndexCount:     sub.IndexCount,
		StartIndex:     sub.StartIndex,
		BaseVertex:     sub.BaseVertex,
		ObjCBIndex:     int(id),
		World:          identityIfZero(d.World),
		TexTransform:   identityIfZero(d.TexTransform),
		NumFramesDirty: r.frameDepth,
		Bounds:         sub.Bounds,
	})
	if d.Name != "" {
		r.itemIDs[d.Name] = id
	}
	r.layers[d.Layer] = append(r.layers[d.Layer], id)

	logger.Log.Debug("Render item added",
		zap.String("name", d.Name),
		zap.String("layer", d.Layer.String()),
		zap.Int("objCBIndex", int(id)),
		zap.Uint32("indexCount", sub.IndexCount))
	return id, nil
}

func (r *Registry) Item(id ItemID) *RenderItem {
	return r.items[id]
}

func (r *Registry) ItemByName(name string) (ItemID, bool) {
	id, ok := r.itemIDs[name]
	return id, ok
}

func (r *Registry) Items() []*RenderItem { return r.items }

// Layer returns the items of a layer in insertion order.
func (r *Registry) Layer(l RenderLayer) []ItemID {
	return r.layers[l]
}

func (r *Registry) SetWorld(id ItemID, world mgl32.Mat4) {
	it := r.items[id]
	it.World = world
	it.NumFramesDirty = r.frameDepth
}

func (r *Registry) SetTexTransform(id ItemID, m mgl32.Mat4) {
	it := r.items[id]
	it.TexTransform = m
	it.NumFramesDirty = r.frameDepth
}

func (r *Registry) MarkItemDirty(id ItemID) {
	r.items[id].NumFramesDirty = r.frameDepth
}

func (r *Registry) SetMaterialTransform(id MaterialID, m mgl32.Mat4) {
	mat := r.materials[id]
	mat.Transform = m
	mat.NumFramesDirty = r.frameDepth
}

func (r *Registry) MarkMaterialDirty(id MaterialID) {
	r.materials[id].NumFramesDirty = r.frameDepth
}

// RefreshDirty writes the item into the active slot's object table if it
// still has frames to propagate to. It reports whether a write happened.
func (r *Registry) RefreshDirty(id ItemID, objectCB *UploadBuffer[ObjectConstants]) (bool, error) {
	it := r.items[id]
	if it.NumFramesDirty <= 0 {
		return false, nil
	}
	err := objectCB.CopyData(it.ObjCBIndex, ObjectConstants{
		World:         it.World,
		TexTransform:  it.TexTransform,
		MaterialIndex: uint32(r.materials[it.Material].CBIndex),
	})
	if err != nil {
		return false, fmt.Errorf("write object constants for %q: %w", it.Name, err)
	}
	it.NumFramesDirty--
	return true, nil
}

// RefreshObjects calls RefreshDirty for every item.
func (r *Registry) RefreshObjects(objectCB *UploadBuffer[ObjectConstants]) error {
	for i := range r.items {
		if _, err := r.RefreshDirty(ItemID(i), objectCB); err != nil {
			return err
		}
	}
	return nil
}

// RefreshMaterials copies dirty materials into the active slot.
func (r *Registry) RefreshMaterials(buf *UploadBuffer[MaterialData]) error {
	for _, m := range r.materials {
		if m.NumFramesDirty <= 0 {
			continue
		}
		if err := buf.CopyData(m.CBIndex, m.data()); err != nil {
			return fmt.Errorf("write material %q: %w", m.Name, err)
		}
		m.NumFramesDirty--
	}
	return nil
}
