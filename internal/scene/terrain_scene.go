package scene

import (
	"fmt"

	"ShadowTerrain/internal/behaviour"
	"ShadowTerrain/internal/config"
	"ShadowTerrain/internal/loader"
	"ShadowTerrain/internal/logger"
	"ShadowTerrain/internal/renderer"
	"ShadowTerrain/internal/water"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Geometry, material and item names of the terrain scene.
const (
	GeoTerrain = "terrainGeo"
	GeoShapes  = "shapeGeo"
	GeoWater   = "waterGeo"

	MatGround      = "ground"
	MatGrass       = "grass"
	MatRoad        = "road"
	MatWaterBottom = "waterBottom"
	MatWater       = "water"
	MatSky         = "sky"

	ItemSky   = "sky"
	ItemWaves = "waves"
	ItemBox   = "box"
)

var (
	clearColor   = [4]float32{0.690196, 0.768627, 0.870588, 1} // light steel blue
	ambientLight = mgl32.Vec4{0.25, 0.25, 0.35, 1}
)

// regionItems maps terrain regions to their material and texture tiling.
var regionItems = []struct {
	region   string
	material string
	texScale float32
}{
	{renderer.RegionGround, MatGround, 0.02},
	{renderer.RegionVegetation, MatGrass, 0.1},
	{renderer.RegionRoad, MatRoad, 0.03},
	{renderer.RegionWaterBed, MatWaterBottom, 0.02},
}

// TerrainScene is the shadowed terrain with a river, a sky sphere and a
// floating box, lit by three rotating directional lights.
type TerrainScene struct {
	// HOT DATA - used every frame
	reg        *renderer.Registry
	camera     *renderer.Camera
	lights     *behaviour.LightRig
	behaviours *behaviour.Manager
	waves      *water.Simulation
	waveVerts  []renderer.Vertex
	bounds     renderer.BoundingSphere

	// COLD DATA
	cfg       config.Config
	pipelines *renderer.PipelineSet
	shadowMap *renderer.ShadowMap
	textures  []renderer.Texture
	terrain   *renderer.Terrain

	// Culling enables camera frustum culling of render items.
	Culling bool
}

// New loads the heightmap named by cfg and builds the scene on dev.
func New(dev renderer.Device, shaders renderer.ShaderSet, cfg config.Config) (*TerrainScene, error) {
	grid, err := loader.Load(cfg.Terrain)
	if err != nil {
		return nil, fmt.Errorf("load terrain heightmap: %w", err)
	}
	return Build(dev, shaders, cfg, grid)
}

// Build creates every GPU resource of the scene from an already loaded
// height grid.
func Build(dev renderer.Device, shaders renderer.ShaderSet, cfg config.Config, grid renderer.HeightGrid) (*TerrainScene, error) {
	s := &TerrainScene{
		cfg:        cfg,
		reg:        renderer.NewRegistry(cfg.FrameDepth),
		lights:     behaviour.DefaultLightRig(),
		behaviours: behaviour.NewManager(),
		Culling:    true,
	}

	terrain, err := renderer.BuildTerrain(grid, renderer.TerrainDesc{
		Width:       cfg.Terrain.Width,
		Depth:       cfg.Terrain.Depth,
		HeightScale: cfg.Terrain.HeightScale,
		Regions:     renderer.DefaultRegionLayout(grid.Rows, grid.Cols),
	})
	if err != nil {
		return nil, err
	}
	s.terrain = terrain

	if cfg.Waves.Enabled {
		wc := water.DefaultConfig()
		wc.Rows, wc.Cols = cfg.Waves.Rows, cfg.Waves.Cols
		wc.SpatialStep = cfg.Waves.SpatialStep
		wc.TimeStep = cfg.Waves.TimeStep
		wc.Speed = cfg.Waves.Speed
		wc.Damping = cfg.Waves.Damping
		wc.Seed = cfg.Waves.Seed
		if s.waves, err = water.NewSimulation(wc); err != nil {
			return nil, err
		}
		s.waveVerts = make([]renderer.Vertex, s.waves.VertexCount())
	}

	if err := s.buildGeometry(dev); err != nil {
		return nil, err
	}
	if err := s.buildMaterials(); err != nil {
		return nil, err
	}
	if err := s.buildRenderItems(); err != nil {
		return nil, err
	}
	if err := s.buildTextures(dev); err != nil {
		return nil, err
	}

	if s.pipelines, err = renderer.BuildPipelines(dev, shaders); err != nil {
		return nil, err
	}
	if s.shadowMap, err = renderer.NewShadowMap(dev, cfg.ShadowMapSize, cfg.ShadowMapSize); err != nil {
		return nil, err
	}

	c := cfg.Camera
	aspect := float32(cfg.Window.Width) / float32(cfg.Window.Height)
	s.camera = renderer.NewCamera(mgl32.Vec3(c.Position), mgl32.Vec3(c.Target), mgl32.DegToRad(c.FovY), aspect, c.Near, c.Far)
	if c.Speed > 0 {
		s.camera.Speed = c.Speed
	}

	s.addBehaviours()

	logger.Log.Info("Terrain scene built",
		zap.Int("items", len(s.reg.Items())),
		zap.Int("materials", len(s.reg.Materials())),
		zap.Bool("waves", s.waves != nil),
		zap.Float32("boundsRadius", s.bounds.Radius))
	return s, nil
}

func (s *TerrainScene) buildGeometry(dev renderer.Device) error {
	vertices, indices, args := s.terrain.Merge()
	terrainGeo, err := renderer.UploadGeometry(dev, GeoTerrain, vertices, indices, args)
	if err != nil {
		return err
	}

	// The shadow volume has to hold the terrain including its peaks, not
	// just its footprint.
	s.bounds = renderer.BoundsOf(vertices)
	s.bounds.Radius += s.cfg.Terrain.BoundsMargin

	shapeVerts, shapeIndices, shapeArgs := renderer.MergeMeshes(
		[]string{"sphere", "box"},
		[]renderer.MeshData{renderer.CreateSphere(0.5, 20, 20), renderer.CreateBox(10, 10, 1)},
	)
	shapeGeo, err := renderer.UploadGeometry(dev, GeoShapes, shapeVerts, shapeIndices, shapeArgs)
	if err != nil {
		return err
	}

	geos := []*renderer.MeshGeometry{terrainGeo, shapeGeo}
	if s.waves != nil {
		waveIndices := s.waves.Indices()
		waterGeo, err := renderer.NewDynamicGeometry(dev, GeoWater, s.waves.VertexCount(), waveIndices, map[string]renderer.Submesh{
			"waterGrid": {IndexCount: uint32(len(waveIndices)), Bounds: s.waves.Bounds()},
		})
		if err != nil {
			return err
		}
		geos = append(geos, waterGeo)
	}

	for _, g := range geos {
		if _, err := s.reg.AddGeometry(g); err != nil {
			return err
		}
	}
	return nil
}

func (s *TerrainScene) buildMaterials() error {
	descs := []renderer.MaterialDesc{
		{Name: MatGround, DiffuseMapIndex: TexGround, Roughness: 0.6},
		{Name: MatGrass, DiffuseMapIndex: TexGrass, Roughness: 0.2},
		{Name: MatRoad, DiffuseMapIndex: TexRoad, Roughness: 0.8},
		{Name: MatWaterBottom, DiffuseMapIndex: TexWaterBottom, Roughness: 0.5},
		{Name: MatWater, DiffuseMapIndex: TexWater, Roughness: 1, DiffuseAlbedo: mgl32.Vec4{1, 1, 1, 0.5}},
		{Name: MatSky, DiffuseMapIndex: TexSky, Roughness: 1},
	}
	for _, d := range descs {
		if d.DiffuseAlbedo == (mgl32.Vec4{}) {
			d.DiffuseAlbedo = mgl32.Vec4{1, 1, 1, 1}
		}
		d.FresnelR0 = mgl32.Vec3{0.1, 0.1, 0.1}
		if _, err := s.reg.AddMaterial(d); err != nil {
			return err
		}
	}
	return nil
}

func (s *TerrainScene) buildRenderItems() error {
	descs := []renderer.RenderItemDesc{{
		Name:     ItemSky,
		Geometry: GeoShapes,
		Submesh:  "sphere",
		Material: MatSky,
		Layer:    renderer.LayerSky,
		World:    mgl32.Scale3D(5000, 5000, 5000),
	}}
	for _, r := range regionItems {
		descs = append(descs, renderer.RenderItemDesc{
			Name:         r.region,
			Geometry:     GeoTerrain,
			Submesh:      r.region,
			Material:     r.material,
			Layer:        renderer.LayerOpaque,
			TexTransform: mgl32.Scale3D(r.texScale, r.texScale, 1),
		})
	}
	if s.waves != nil {
		descs = append(descs, renderer.RenderItemDesc{
			Name:         ItemWaves,
			Geometry:     GeoWater,
			Submesh:      "waterGrid",
			Material:     MatWater,
			Layer:        renderer.LayerTransparent,
			World:        mgl32.Translate3D(0, s.cfg.Waves.Height, 0),
			TexTransform: mgl32.Scale3D(5, 5, 1),
		})
	}
	descs = append(descs, renderer.RenderItemDesc{
		Name:     ItemBox,
		Geometry: GeoShapes,
		Submesh:  "box",
		Material: MatGround,
		Layer:    renderer.LayerOpaque,
		World:    mgl32.Translate3D(100, 120, 0).Mul4(mgl32.Scale3D(2, 2, 2)),
	})

	if err := s.reg.ValidateItems(descs); err != nil {
		return err
	}
	for _, d := range descs {
		if _, err := s.reg.AddRenderItem(d); err != nil {
			return err
		}
	}
	return nil
}

func (s *TerrainScene) buildTextures(dev renderer.Device) error {
	var err error
	for i, img := range GenerateTextures(s.cfg.Terrain.Seed) {
		tex, terr := dev.CreateTexture(textureNames[i], img)
		if terr != nil {
			err = multierr.Append(err, fmt.Errorf("create texture %s: %w", textureNames[i], terr))
			continue
		}
		s.textures = append(s.textures, tex)
	}
	return err
}

func (s *TerrainScene) addBehaviours() {
	s.behaviours.Add("lightRotation", &behaviour.LightRotation{Rig: s.lights, Speed: 0.1})
	if s.waves == nil {
		return
	}
	waterMat, _ := s.reg.MaterialByName(MatWater)
	s.behaviours.Add("waterScroll", &behaviour.TextureScroll{Registry: s.reg, Material: waterMat, SpeedU: 0.1, SpeedV: 0.02})
	s.behaviours.Add("waves", behaviour.Func(s.waves.Tick))
}

// Sizes is what each frame slot must hold for this scene.
func (s *TerrainScene) Sizes() renderer.FrameResourceSizes {
	sizes := renderer.FrameResourceSizes{
		Passes:    renderer.PassCount,
		Objects:   len(s.reg.Items()),
		Materials: len(s.reg.Materials()),
	}
	if s.waves != nil {
		sizes.DynamicVerts = s.waves.VertexCount()
	}
	return sizes
}

func (s *TerrainScene) Registry() *renderer.Registry    { return s.reg }
func (s *TerrainScene) Camera() *renderer.Camera        { return s.camera }
func (s *TerrainScene) Lights() *behaviour.LightRig     { return s.lights }
func (s *TerrainScene) Behaviours() *behaviour.Manager  { return s.behaviours }
func (s *TerrainScene) Waves() *water.Simulation        { return s.waves }
func (s *TerrainScene) Bounds() renderer.BoundingSphere { return s.bounds }
func (s *TerrainScene) ShadowMap() *renderer.ShadowMap  { return s.shadowMap }
func (s *TerrainScene) Textures() []renderer.Texture    { return s.textures }
func (s *TerrainScene) Terrain() *renderer.Terrain      { return s.terrain }
func (s *TerrainScene) ClearColor() [4]float32          { return clearColor }

// LightMatrices fits the shadow volume of the key light around the scene.
func (s *TerrainScene) LightMatrices() renderer.LightMatrices {
	return renderer.ComputeLightMatrices(s.lights.KeyLight(), s.bounds)
}

func (s *TerrainScene) OnResize(width, height int) error {
	s.camera.SetAspect(float32(width) / float32(height))
	return nil
}

// OnUpdate advances the animations and writes this frame's object,
// material, water and pass data into the slot.
func (s *TerrainScene) OnUpdate(ctx *renderer.FrameContext) error {
	dt := ctx.Timing.Delta
	s.camera.ApplyInput(ctx.Input, dt)
	if err := s.behaviours.UpdateAll(dt); err != nil {
		return err
	}

	slot := ctx.Slot
	if err := s.reg.RefreshObjects(slot.ObjectCB); err != nil {
		return err
	}
	if err := s.reg.RefreshMaterials(slot.MaterialBuffer); err != nil {
		return err
	}
	if s.waves != nil {
		s.waves.FillVertices(s.waveVerts)
		if err := slot.DynamicVB.CopyAll(s.waveVerts); err != nil {
			return fmt.Errorf("stream water vertices: %w", err)
		}
	}

	lm := s.LightMatrices()
	main := renderer.NewPassConstants(renderer.PassParams{
		View:            s.camera.View(),
		Proj:            s.camera.Proj(),
		ShadowTransform: lm.ShadowTransform,
		EyePos:          s.camera.Position,
		Width:           float32(ctx.Width),
		Height:          float32(ctx.Height),
		NearZ:           s.camera.Near,
		FarZ:            s.camera.Far,
		Timing:          ctx.Timing,
		Ambient:         ambientLight,
		Lights:          s.lights.Constants(),
	})
	if err := slot.PassCB.CopyData(renderer.MainPassIndex, main); err != nil {
		return err
	}
	return slot.PassCB.CopyData(renderer.ShadowPassIndex, renderer.ShadowPassConstants(lm, s.shadowMap, ctx.Timing))
}

func (s *TerrainScene) OnRecordFrame(ctx *renderer.FrameContext) error {
	res := renderer.PassResources{
		Registry:   s.reg,
		Pipelines:  s.pipelines,
		ShadowMap:  s.shadowMap,
		Textures:   s.textures,
		ClearColor: clearColor,
	}
	if err := renderer.RecordShadowPass(ctx, res); err != nil {
		return err
	}
	if s.Culling {
		f := s.camera.Frustum()
		res.Cull = &f
	}
	return renderer.RecordCameraPass(ctx, res)
}
