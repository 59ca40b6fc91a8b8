package renderer

import (
	"fmt"
	"strings"

	"ShadowTerrain/internal/logger"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// GLProgram is a linked program whose uniform blocks and samplers are
// already bound to the slots the command lists use.
type GLProgram struct {
	name     string
	id       uint32
	uniforms map[string]int32
}

func (p *GLProgram) Name() string { return p.name }
func (p *GLProgram) ID() uint32   { return p.id }

// Location returns the cached uniform location, -1 when the uniform is
// not active.
func (p *GLProgram) Location(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.uniforms[name] = loc
	return loc
}

// Blocks mirror ObjectConstants, PassConstants and MaterialData. Vertex
// shaders remap clip z from [0,w] to [-w,w] so that stored depth and the
// shadow transform keep the [0,1] convention.
const shaderCommon = `#version 410 core

#define MAX_LIGHTS 3
#define MAX_MATERIALS 128
#define MAX_DIFFUSE_MAPS 8

struct Light {
	vec3 Strength;
	float FalloffStart;
	vec3 Direction;
	float FalloffEnd;
	vec3 Position;
	float SpotPower;
};

struct MaterialData {
	vec4 DiffuseAlbedo;
	vec3 FresnelR0;
	float Roughness;
	mat4 MatTransform;
	uint DiffuseMapIndex;
	uint NormalMapIndex;
	uint MatPad0;
	uint MatPad1;
};

layout(std140) uniform ObjectCB {
	mat4 gWorld;
	mat4 gTexTransform;
	uint gMaterialIndex;
};

layout(std140) uniform PassCB {
	mat4 gView;
	mat4 gInvView;
	mat4 gProj;
	mat4 gInvProj;
	mat4 gViewProj;
	mat4 gInvViewProj;
	mat4 gShadowTransform;
	vec3 gEyePosW;
	float cbPerPassPad1;
	vec2 gRenderTargetSize;
	vec2 gInvRenderTargetSize;
	float gNearZ;
	float gFarZ;
	float gTotalTime;
	float gDeltaTime;
	vec4 gAmbientLight;
	Light gLights[MAX_LIGHTS];
};

layout(std140) uniform MaterialCB {
	MaterialData gMaterials[MAX_MATERIALS];
};

vec4 toGLClip(vec4 h) {
	return vec4(h.xy, h.z*2.0 - h.w, h.w);
}
`

const vertexInputs = `
layout(location = 0) in vec3 inPosL;
layout(location = 1) in vec3 inNormalL;
layout(location = 2) in vec2 inTexC;
layout(location = 3) in vec3 inTangentU;
`

const standardVertexShader = vertexInputs + `
out vec3 vPosW;
out vec3 vNormalW;
out vec2 vTexC;
out vec4 vShadowPosH;

void main() {
	vec4 posW = gWorld * vec4(inPosL, 1.0);
	vPosW = posW.xyz;
	vNormalW = mat3(gWorld) * inNormalL;

	MaterialData mat = gMaterials[gMaterialIndex];
	vec4 texC = gTexTransform * vec4(inTexC, 0.0, 1.0);
	vTexC = (mat.MatTransform * texC).xy;

	vShadowPosH = gShadowTransform * posW;
	gl_Position = toGLClip(gViewProj * posW);
}
`

const standardFragmentShader = `
in vec3 vPosW;
in vec3 vNormalW;
in vec2 vTexC;
in vec4 vShadowPosH;

uniform sampler2DShadow gShadowMap;
uniform sampler2D gDiffuseMap[MAX_DIFFUSE_MAPS];

out vec4 fragColor;

// 3x3 PCF. Texture rows run bottom-up in GL, so v is flipped.
float shadowFactor(vec4 shadowPosH) {
	vec3 p = shadowPosH.xyz / shadowPosH.w;
	p.y = 1.0 - p.y;
	vec2 texel = 1.0 / vec2(textureSize(gShadowMap, 0));
	float lit = 0.0;
	for (int y = -1; y <= 1; ++y) {
		for (int x = -1; x <= 1; ++x) {
			lit += texture(gShadowMap, vec3(p.xy + vec2(x, y)*texel, p.z));
		}
	}
	return lit / 9.0;
}

vec3 schlickFresnel(vec3 r0, vec3 n, vec3 l) {
	float f0 = 1.0 - clamp(dot(n, l), 0.0, 1.0);
	return r0 + (1.0 - r0)*(f0*f0*f0*f0*f0);
}

vec3 blinnPhong(vec3 strength, vec3 l, vec3 n, vec3 toEye, vec4 albedo, vec3 r0, float shininess) {
	float m = shininess * 256.0;
	vec3 h = normalize(toEye + l);
	float roughness = (m + 8.0)*pow(max(dot(h, n), 0.0), m) / 8.0;
	vec3 spec = schlickFresnel(r0, h, l) * roughness;
	spec = spec / (spec + 1.0);
	return (albedo.rgb + spec) * strength;
}

void main() {
	MaterialData mat = gMaterials[gMaterialIndex];
	vec4 albedo = mat.DiffuseAlbedo * texture(gDiffuseMap[int(mat.DiffuseMapIndex)], vTexC);

	vec3 n = normalize(vNormalW);
	vec3 toEye = normalize(gEyePosW - vPosW);
	float shininess = 1.0 - mat.Roughness;

	vec3 direct = vec3(0.0);
	for (int i = 0; i < MAX_LIGHTS; ++i) {
		vec3 l = -gLights[i].Direction;
		float ndotl = max(dot(l, n), 0.0);
		vec3 c = blinnPhong(gLights[i].Strength*ndotl, l, n, toEye, albedo, mat.FresnelR0, shininess);
		if (i == 0) {
			c *= shadowFactor(vShadowPosH);
		}
		direct += c;
	}

	vec3 color = gAmbientLight.rgb*albedo.rgb + direct;
	fragColor = vec4(color, albedo.a);
}
`

const shadowVertexShader = vertexInputs + `
void main() {
	gl_Position = toGLClip(gViewProj * (gWorld * vec4(inPosL, 1.0)));
}
`

const shadowFragmentShader = `
void main() {}
`

// The sky sphere follows the eye and is pushed to the far plane.
const skyVertexShader = vertexInputs + `
out vec3 vPosL;

void main() {
	vPosL = inPosL;
	vec4 posW = gWorld * vec4(inPosL, 1.0);
	posW.xyz += gEyePosW;
	gl_Position = (gViewProj * posW).xyww;
}
`

const skyFragmentShader = `
in vec3 vPosL;

out vec4 fragColor;

void main() {
	MaterialData mat = gMaterials[gMaterialIndex];
	float t = clamp(normalize(vPosL).y, 0.0, 1.0);
	vec3 horizon = vec3(0.85, 0.9, 0.97);
	vec3 zenith = vec3(0.3, 0.5, 0.85);
	fragColor = vec4(mix(horizon, zenith, sqrt(t)) * mat.DiffuseAlbedo.rgb, 1.0);
}
`

const debugVertexShader = vertexInputs + `
out vec3 vNormalW;

void main() {
	vNormalW = mat3(gWorld) * inNormalL;
	gl_Position = toGLClip(gViewProj * (gWorld * vec4(inPosL, 1.0)));
}
`

const debugFragmentShader = `
in vec3 vNormalW;

out vec4 fragColor;

void main() {
	fragColor = vec4(normalize(vNormalW)*0.5 + 0.5, 1.0);
}
`

// CompileShaders builds the four programs pipelines are made from. It must
// run on the thread owning the GL context.
func CompileShaders() (ShaderSet, error) {
	var errs error
	build := func(name, vs, fs string) *GLProgram {
		p, err := NewGLProgram(name, shaderCommon+vs, shaderCommon+fs)
		errs = multierr.Append(errs, err)
		return p
	}
	standard := build("standard", standardVertexShader, standardFragmentShader)
	shadow := build("shadow", shadowVertexShader, shadowFragmentShader)
	sky := build("sky", skyVertexShader, skyFragmentShader)
	debug := build("debug", debugVertexShader, debugFragmentShader)
	if errs != nil {
		return ShaderSet{}, errs
	}
	return ShaderSet{Standard: standard, Shadow: shadow, Sky: sky, Debug: debug}, nil
}

// NewGLProgram compiles and links a program, then binds its uniform
// blocks and samplers to the fixed slots.
func NewGLProgram(name, vertexSource, fragmentSource string) (*GLProgram, error) {
	vs, err := compileShader(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", name, err)
	}
	fs, err := compileShader(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return nil, fmt.Errorf("program %s: %w", name, err)
	}
	id, err := linkProgram(vs, fs)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", name, err)
	}
	var undo Unwind
	defer undo.Unwind()
	undo.Add(func() { gl.DeleteProgram(id) })

	p := &GLProgram{name: name, id: id, uniforms: make(map[string]int32)}
	bindBlock(id, "ObjectCB", objectBinding)
	bindBlock(id, "PassCB", passBinding)
	bindBlock(id, "MaterialCB", materialBinding)

	gl.UseProgram(id)
	if loc := p.Location("gShadowMap"); loc >= 0 {
		gl.Uniform1i(loc, ShadowMapSlot)
	}
	if loc := p.Location("gDiffuseMap"); loc >= 0 {
		var units [glMaxDiffuseMaps]int32
		for i := range units {
			units[i] = int32(TextureTableSlot + i)
		}
		gl.Uniform1iv(loc, glMaxDiffuseMaps, &units[0])
	}
	gl.UseProgram(0)
	if e := gl.GetError(); e != gl.NO_ERROR {
		return nil, fmt.Errorf("program %s: binding slots raised GL error %#x", name, e)
	}
	undo.Discard()

	logger.Log.Info("Shader program linked", zap.String("name", name), zap.Uint32("id", id))
	return p, nil
}

// Blocks the linker optimized out report an invalid index and are skipped.
func bindBlock(program uint32, block string, binding uint32) {
	idx := gl.GetUniformBlockIndex(program, gl.Str(block+"\x00"))
	if idx != gl.INVALID_INDEX {
		gl.UniformBlockBinding(program, idx, binding)
	}
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	cSources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, cSources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)

		logger.Log.Error("Failed to compile", zap.Uint32("shader type", shaderType), zap.String("log", log))
		return 0, fmt.Errorf("compile shader type %#x: %s", shaderType, strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}

func linkProgram(vertexShader, fragmentShader uint32) (uint32, error) {
	program := gl.CreateProgram()
	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	gl.DetachShader(program, vertexShader)
	gl.DeleteShader(vertexShader)
	gl.DetachShader(program, fragmentShader)
	gl.DeleteShader(fragmentShader)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)

		logger.Log.Error("Failed to link program", zap.String("log", log))
		return 0, fmt.Errorf("link program: %s", strings.TrimRight(log, "\x00"))
	}
	return program, nil
}
