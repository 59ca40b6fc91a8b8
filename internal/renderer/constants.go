package renderer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

const MaxLights = 3

// Pass constant slots inside a frame resource.
const (
	MainPassIndex   = 0
	ShadowPassIndex = 1
	PassCount       = 2
)

// The constant layouts below follow std140 packing so the same bytes can
// back a uniform block or a constant buffer. Matrices are column-major.

type ObjectConstants struct {
	World         mgl32.Mat4
	TexTransform  mgl32.Mat4
	MaterialIndex uint32
	_             [3]uint32
}

type MaterialData struct {
	DiffuseAlbedo   mgl32.Vec4
	FresnelR0       mgl32.Vec3
	Roughness       float32
	MatTransform    mgl32.Mat4
	DiffuseMapIndex uint32
	NormalMapIndex  uint32
	_               [2]uint32
}

type LightConstants struct {
	Strength     mgl32.Vec3
	FalloffStart float32
	Direction    mgl32.Vec3
	FalloffEnd   float32
	Position     mgl32.Vec3
	SpotPower    float32
}

type PassConstants struct {
	View                mgl32.Mat4
	InvView             mgl32.Mat4
	Proj                mgl32.Mat4
	InvProj             mgl32.Mat4
	ViewProj            mgl32.Mat4
	InvViewProj         mgl32.Mat4
	ShadowTransform     mgl32.Mat4
	EyePosW             mgl32.Vec3
	_                   float32
	RenderTargetSize    mgl32.Vec2
	InvRenderTargetSize mgl32.Vec2
	NearZ               float32
	FarZ                float32
	TotalTime           float32
	DeltaTime           float32
	AmbientLight        mgl32.Vec4
	Lights              [MaxLights]LightConstants
}

// ConstantBufferByteSize rounds size up to the 256 byte alignment that
// constant buffer views and uniform buffer offsets require.
func ConstantBufferByteSize(size int) int {
	return (size + 255) &^ 255
}

// UploadBuffer is a typed array of elements living in a CPU-writable GPU
// buffer.
type UploadBuffer[T any] struct {
	buf      Buffer
	count    int
	elemSize int
	stride   int
	scratch  bytes.Buffer
}

// NewUploadBuffer allocates count elements. Constant buffers get 256 byte
// aligned element strides, everything else is tightly packed.
func NewUploadBuffer[T any](dev Device, name string, kind BufferKind, count int) (*UploadBuffer[T], error) {
	var zero T
	elemSize := binary.Size(zero)
	if elemSize <= 0 {
		return nil, fmt.Errorf("upload buffer %s: element type %T has no fixed size", name, zero)
	}
	stride := elemSize
	if kind == ConstantBuffer {
		stride = ConstantBufferByteSize(elemSize)
	}
	if count < 1 {
		count = 1
	}

	buf, err := dev.CreateBuffer(name, kind, stride*count)
	if err != nil {
		return nil, fmt.Errorf("create upload buffer %s: %w", name, err)
	}
	return &UploadBuffer[T]{buf: buf, count: count, elemSize: elemSize, stride: stride}, nil
}

// CopyData writes v into element i.
func (u *UploadBuffer[T]) CopyData(i int, v T) error {
	if i < 0 || i >= u.count {
		return fmt.Errorf("upload buffer %s: index %d out of range [0,%d)", u.buf.Name(), i, u.count)
	}
	u.scratch.Reset()
	if err := binary.Write(&u.scratch, binary.LittleEndian, v); err != nil {
		return err
	}
	return u.buf.Write(i*u.stride, u.scratch.Bytes())
}

// CopyAll writes vs starting at element 0. Only valid for packed buffers.
func (u *UploadBuffer[T]) CopyAll(vs []T) error {
	if u.stride != u.elemSize {
		return fmt.Errorf("upload buffer %s: CopyAll needs a packed buffer", u.buf.Name())
	}
	if len(vs) > u.count {
		return fmt.Errorf("upload buffer %s: %d elements exceed capacity %d", u.buf.Name(), len(vs), u.count)
	}
	u.scratch.Reset()
	if err := binary.Write(&u.scratch, binary.LittleEndian, vs); err != nil {
		return err
	}
	return u.buf.Write(0, u.scratch.Bytes())
}

func (u *UploadBuffer[T]) Buffer() Buffer   { return u.buf }
func (u *UploadBuffer[T]) Count() int       { return u.count }
func (u *UploadBuffer[T]) Stride() int      { return u.stride }
func (u *UploadBuffer[T]) ElementSize() int { return u.elemSize }
func (u *UploadBuffer[T]) Offset(i int) int { return i * u.stride }
