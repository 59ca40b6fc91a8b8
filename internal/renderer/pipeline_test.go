package renderer

import (
	"errors"
	"testing"
)

type testProgram string

func (p testProgram) Name() string { return string(p) }

func testShaders() ShaderSet {
	return ShaderSet{
		Standard: testProgram("standard"),
		Shadow:   testProgram("shadow"),
		Sky:      testProgram("sky"),
	}
}

func TestPipelineDescs(t *testing.T) {
	opaque := OpaquePipelineDesc(testProgram("standard"))
	if opaque.Cull != CullBack || opaque.DepthFunc != CompareLess || !opaque.DepthWrite || opaque.NumRenderTargets != 1 {
		t.Errorf("Unexpected opaque state %+v", opaque)
	}
	if opaque.Blend.Enabled {
		t.Error("opaque pipeline should not blend")
	}

	sky := SkyPipelineDesc(testProgram("sky"))
	if sky.Cull != CullNone || sky.DepthFunc != CompareLessEqual {
		t.Errorf("Expected sky with no culling and LESS_EQUAL, got %+v", sky)
	}

	tr := TransparentPipelineDesc(testProgram("standard"))
	if !tr.Blend.Enabled || tr.Blend.Src != BlendSrcAlpha || tr.Blend.Dst != BlendInvSrcAlpha || tr.Blend.Op != BlendOpAdd {
		t.Errorf("Expected src-alpha over blending, got %+v", tr.Blend)
	}
	if tr.Blend.SrcAlpha != BlendOne || tr.Blend.DstAlpha != BlendZero {
		t.Errorf("Expected alpha one/zero, got %+v", tr.Blend)
	}

	sh := ShadowPipelineDesc(testProgram("shadow"))
	if sh.NumRenderTargets != 0 || sh.ColorWrites {
		t.Errorf("shadow pipeline must be depth only, got %+v", sh)
	}
	if sh.DepthBias != 100000 || sh.DepthBiasClamp != 0 || sh.SlopeScaledDepthBias != 1 {
		t.Errorf("Unexpected shadow bias %d/%f/%f", sh.DepthBias, sh.DepthBiasClamp, sh.SlopeScaledDepthBias)
	}
}

func TestBuildPipelines(t *testing.T) {
	dev := NewHeadlessDevice(HeadlessOptions{})
	defer dev.Close()

	set, err := BuildPipelines(dev, testShaders())
	if err != nil {
		t.Fatalf("BuildPipelines failed: %v", err)
	}
	if set.Layers[LayerDebug] != nil {
		t.Error("debug pipeline should be skipped without a debug program")
	}
	if got := set.Layers[LayerSky].Desc().Name; got != PipelineSky {
		t.Errorf("Expected sky pipeline, got %s", got)
	}
	if got := set.Shadow.Desc().Name; got != PipelineShadow {
		t.Errorf("Expected shadow pipeline, got %s", got)
	}

	shaders := testShaders()
	shaders.Debug = testProgram("debug")
	set, err = BuildPipelines(dev, shaders)
	if err != nil {
		t.Fatalf("BuildPipelines with debug failed: %v", err)
	}
	if set.Layers[LayerDebug] == nil {
		t.Error("debug pipeline should be built when a debug program is present")
	}
}

func TestBuildPipelinesMissingProgram(t *testing.T) {
	dev := NewHeadlessDevice(HeadlessOptions{})
	defer dev.Close()

	shaders := testShaders()
	shaders.Shadow = nil
	if _, err := BuildPipelines(dev, shaders); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey for a missing shadow program, got %v", err)
	}
}

func TestConstantBufferByteSize(t *testing.T) {
	cases := map[int]int{0: 0, 1: 256, 256: 256, 257: 512, 144: 256}
	for in, want := range cases {
		if got := ConstantBufferByteSize(in); got != want {
			t.Errorf("ConstantBufferByteSize(%d): expected %d, got %d", in, want, got)
		}
	}
}
