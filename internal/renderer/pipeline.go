package renderer

import (
	"fmt"
)

type CullMode int

const (
	CullBack CullMode = iota
	CullNone
	CullFront
)

type CompareFunc int

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareAlways
)

type BlendFactor int

const (
	BlendOne BlendFactor = iota
	BlendZero
	BlendSrcAlpha
	BlendInvSrcAlpha
)

type BlendOp int

const (
	BlendOpAdd BlendOp = iota
)

type BlendDesc struct {
	Enabled  bool
	Src, Dst BlendFactor
	Op       BlendOp
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	OpAlpha  BlendOp
}

// ShaderProgram is an opaque compiled program handle handed over by the
// asset side.
type ShaderProgram interface {
	Name() string
}

// ShaderSet holds the programs pipelines are built from.
type ShaderSet struct {
	Standard ShaderProgram
	Shadow   ShaderProgram
	Sky      ShaderProgram
	Debug    ShaderProgram
}

type PipelineDesc struct {
	Name    string
	Program ShaderProgram

	Cull        CullMode
	DepthFunc   CompareFunc
	DepthWrite  bool
	Blend       BlendDesc
	ColorWrites bool
	// NumRenderTargets is zero for depth-only pipelines.
	NumRenderTargets int

	DepthBias            int32
	DepthBiasClamp       float32
	SlopeScaledDepthBias float32
}

// Pipeline names.
const (
	PipelineOpaque      = "opaque"
	PipelineSky         = "sky"
	PipelineTransparent = "transparent"
	PipelineDebug       = "debug"
	PipelineShadow      = "shadow_opaque"
)

// OpaquePipelineDesc is the default state every other pipeline derives
// from: back-face culling, LESS depth test with writes, one color target.
func OpaquePipelineDesc(program ShaderProgram) PipelineDesc {
	return PipelineDesc{
		Name:             PipelineOpaque,
		Program:          program,
		Cull:             CullBack,
		DepthFunc:        CompareLess,
		DepthWrite:       true,
		ColorWrites:      true,
		NumRenderTargets: 1,
		Blend: BlendDesc{
			Src: BlendOne, Dst: BlendZero, Op: BlendOpAdd,
			SrcAlpha: BlendOne, DstAlpha: BlendZero, OpAlpha: BlendOpAdd,
		},
	}
}

// SkyPipelineDesc renders a sphere around the camera: no culling since
// we are inside it, and LESS_EQUAL so it passes at the far plane.
func SkyPipelineDesc(program ShaderProgram) PipelineDesc {
	d := OpaquePipelineDesc(program)
	d.Name = PipelineSky
	d.Cull = CullNone
	d.DepthFunc = CompareLessEqual
	return d
}

func TransparentPipelineDesc(program ShaderProgram) PipelineDesc {
	d := OpaquePipelineDesc(program)
	d.Name = PipelineTransparent
	d.Blend = BlendDesc{
		Enabled:  true,
		Src:      BlendSrcAlpha,
		Dst:      BlendInvSrcAlpha,
		Op:       BlendOpAdd,
		SrcAlpha: BlendOne,
		DstAlpha: BlendZero,
		OpAlpha:  BlendOpAdd,
	}
	return d
}

func DebugPipelineDesc(program ShaderProgram) PipelineDesc {
	d := OpaquePipelineDesc(program)
	d.Name = PipelineDebug
	return d
}

// ShadowPipelineDesc writes depth only, biased to avoid shadow acne.
func ShadowPipelineDesc(program ShaderProgram) PipelineDesc {
	d := OpaquePipelineDesc(program)
	d.Name = PipelineShadow
	d.NumRenderTargets = 0
	d.ColorWrites = false
	d.DepthBias = 100000
	d.DepthBiasClamp = 0
	d.SlopeScaledDepthBias = 1
	return d
}

// PipelineSet maps each render layer and the shadow pass to a pipeline.
type PipelineSet struct {
	Layers [LayerCount]Pipeline
	Shadow Pipeline
}

// BuildPipelines creates every pipeline once from the shader set. The
// debug pipeline is skipped when no debug program is supplied.
func BuildPipelines(dev Device, shaders ShaderSet) (*PipelineSet, error) {
	type layerDesc struct {
		layer RenderLayer
		desc  PipelineDesc
	}
	descs := []layerDesc{
		{LayerOpaque, OpaquePipelineDesc(shaders.Standard)},
		{LayerSky, SkyPipelineDesc(shaders.Sky)},
		{LayerTransparent, TransparentPipelineDesc(shaders.Standard)},
	}
	if shaders.Debug != nil {
		descs = append(descs, layerDesc{LayerDebug, DebugPipelineDesc(shaders.Debug)})
	}

	set := &PipelineSet{}
	for _, d := range descs {
		if d.desc.Program == nil {
			return nil, fmt.Errorf("%w: no shader program for pipeline %q", ErrUnknownKey, d.desc.Name)
		}
		p, err := dev.CreatePipeline(d.desc)
		if err != nil {
			return nil, fmt.Errorf("create pipeline %q: %w", d.desc.Name, err)
		}
		set.Layers[d.layer] = p
	}

	if shaders.Shadow == nil {
		return nil, fmt.Errorf("%w: no shader program for pipeline %q", ErrUnknownKey, PipelineShadow)
	}
	shadow, err := dev.CreatePipeline(ShadowPipelineDesc(shaders.Shadow))
	if err != nil {
		return nil, fmt.Errorf("create pipeline %q: %w", PipelineShadow, err)
	}
	set.Shadow = shadow
	return set, nil
}
