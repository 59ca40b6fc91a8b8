package renderer

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Texture binding slots shared with the shaders. Slot 0 is the shadow map;
// the diffuse texture table starts after it.
const (
	ShadowMapSlot    = 0
	TextureTableSlot = 1
)

// CameraLayerOrder is the order layers are drawn in the camera pass.
// Transparent items go last so they blend over everything opaque.
var CameraLayerOrder = [...]RenderLayer{LayerOpaque, LayerSky, LayerDebug, LayerTransparent}

// PassResources is what the two passes read besides the frame slot.
type PassResources struct {
	Registry   *Registry
	Pipelines  *PipelineSet
	ShadowMap  *ShadowMap
	Textures   []Texture
	ClearColor [4]float32

	// Cull, when set, skips camera pass items outside the frustum. The sky
	// is never culled.
	Cull *Frustum
}

// DrawRenderItems issues one indexed draw per item, binding the item's
// slice of the slot's object table. Dynamic geometries draw from the
// slot's streamed vertex buffer.
func DrawRenderItems(cmd CommandList, slot *FrameResource, reg *Registry, ids []ItemID) error {
	return drawItems(cmd, slot, reg, ids, nil)
}

func drawItems(cmd CommandList, slot *FrameResource, reg *Registry, ids []ItemID, cull *Frustum) error {
	objSize := slot.ObjectCB.ElementSize()
	for _, id := range ids {
		it := reg.Item(id)
		if cull != nil && it.Bounds.Radius > 0 {
			ws := worldSphere(it.Bounds, it.World)
			if !cull.IntersectsSphere(ws.Center, ws.Radius) {
				continue
			}
		}

		geo := reg.Geometry(it.Geometry)
		if geo.Dynamic {
			if slot.DynamicVB == nil {
				return fmt.Errorf("item %q: dynamic geometry %q but frame %d has no dynamic vertex buffer", it.Name, geo.Name, slot.Index)
			}
			cmd.SetVertexBuffer(slot.DynamicVB.Buffer(), VertexStride)
		} else {
			cmd.SetVertexBuffer(geo.VertexBuffer, VertexStride)
		}
		cmd.SetIndexBuffer(geo.IndexBuffer)
		cmd.BindObjectConstants(slot.ObjectCB.Buffer(), slot.ObjectCB.Offset(it.ObjCBIndex), objSize)
		cmd.DrawIndexed(it.IndexCount, it.StartIndex, it.BaseVertex)
	}
	return nil
}

// RecordShadowPass renders every opaque item depth-only from the light
// into the shadow map and leaves the map readable for the camera pass.
func RecordShadowPass(ctx *FrameContext, res PassResources) error {
	if err := ctx.BeginPass(PassShadow); err != nil {
		return err
	}
	cmd, slot, sm := ctx.Cmd, ctx.Slot, res.ShadowMap

	cmd.SetViewport(sm.Viewport)
	cmd.Transition(sm.Depth, StateShaderRead, StateDepthWrite)
	cmd.ClearDepth(sm.Depth, 1)
	cmd.SetRenderTargets(nil, sm.Depth)

	cmd.BindMaterials(slot.MaterialBuffer.Buffer())
	cmd.BindPassConstants(slot.PassCB.Buffer(), slot.PassCB.Offset(ShadowPassIndex), slot.PassCB.ElementSize())
	cmd.SetPipeline(res.Pipelines.Shadow)
	if err := DrawRenderItems(cmd, slot, res.Registry, res.Registry.Layer(LayerOpaque)); err != nil {
		return fmt.Errorf("shadow pass: %w", err)
	}

	cmd.Transition(sm.Depth, StateDepthWrite, StateShaderRead)
	return nil
}

// RecordCameraPass renders the layers into the back buffer, sampling the
// shadow map written by RecordShadowPass.
func RecordCameraPass(ctx *FrameContext, res PassResources) error {
	if err := ctx.BeginPass(PassCamera); err != nil {
		return err
	}
	cmd, slot := ctx.Cmd, ctx.Slot

	cmd.SetViewport(Viewport{Width: float32(ctx.Width), Height: float32(ctx.Height), MaxDepth: 1})
	cmd.Transition(ctx.BackBuffer, StatePresent, StateRenderTarget)
	cmd.ClearRenderTarget(ctx.BackBuffer, res.ClearColor)
	cmd.ClearDepth(ctx.DepthStencil, 1)
	cmd.SetRenderTargets([]RenderTarget{ctx.BackBuffer}, ctx.DepthStencil)

	cmd.BindPassConstants(slot.PassCB.Buffer(), slot.PassCB.Offset(MainPassIndex), slot.PassCB.ElementSize())
	cmd.BindMaterials(slot.MaterialBuffer.Buffer())
	cmd.BindShadowMap(res.ShadowMap.Depth)
	for i, tex := range res.Textures {
		cmd.BindTexture(TextureTableSlot+i, tex)
	}

	for _, layer := range CameraLayerOrder {
		ids := res.Registry.Layer(layer)
		p := res.Pipelines.Layers[layer]
		if len(ids) == 0 {
			continue
		}
		if p == nil {
			return fmt.Errorf("%w: no pipeline for %s layer with %d items", ErrUnknownKey, layer, len(ids))
		}
		cmd.SetPipeline(p)
		cull := res.Cull
		if layer == LayerSky {
			cull = nil
		}
		if err := drawItems(cmd, slot, res.Registry, ids, cull); err != nil {
			return fmt.Errorf("camera pass, %s layer: %w", layer, err)
		}
	}

	cmd.Transition(ctx.BackBuffer, StateRenderTarget, StatePresent)
	return nil
}

// PassParams feeds NewPassConstants.
type PassParams struct {
	View, Proj      mgl32.Mat4
	ShadowTransform mgl32.Mat4
	EyePos          mgl32.Vec3
	Width, Height   float32
	NearZ, FarZ     float32
	Timing          FrameTiming
	Ambient         mgl32.Vec4
	Lights          []LightConstants
}

// NewPassConstants fills a pass table entry, deriving the inverses and the
// combined view-projection.
func NewPassConstants(p PassParams) PassConstants {
	viewProj := p.Proj.Mul4(p.View)
	pc := PassConstants{
		View:            p.View,
		InvView:         p.View.Inv(),
		Proj:            p.Proj,
		InvProj:         p.Proj.Inv(),
		ViewProj:        viewProj,
		InvViewProj:     viewProj.Inv(),
		ShadowTransform: p.ShadowTransform,
		EyePosW:         p.EyePos,
		NearZ:           p.NearZ,
		FarZ:            p.FarZ,
		TotalTime:       p.Timing.Total,
		DeltaTime:       p.Timing.Delta,
		AmbientLight:    p.Ambient,
	}
	if p.Width > 0 && p.Height > 0 {
		pc.RenderTargetSize = mgl32.Vec2{p.Width, p.Height}
		pc.InvRenderTargetSize = mgl32.Vec2{1 / p.Width, 1 / p.Height}
	}
	copy(pc.Lights[:], p.Lights)
	return pc
}

// ShadowPassConstants is the pass entry the shadow pass renders with: the
// light's view and projection over a shadow-map sized target.
func ShadowPassConstants(lm LightMatrices, sm *ShadowMap, timing FrameTiming) PassConstants {
	return NewPassConstants(PassParams{
		View:            lm.View,
		Proj:            lm.Proj,
		ShadowTransform: lm.ShadowTransform,
		EyePos:          lm.LightPos,
		Width:           float32(sm.Width),
		Height:          float32(sm.Height),
		NearZ:           lm.NearZ,
		FarZ:            lm.FarZ,
		Timing:          timing,
	})
}
