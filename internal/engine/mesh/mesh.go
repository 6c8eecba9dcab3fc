// Package mesh draws instanced, optionally skinned meshes. A Cache loads
// each mesh file once and maps (unit, sequence) pairs onto the shared
// OrderedMesh; OrderedMesh collects per-frame instance records and draws them
// with one instanced call.
package mesh

import (
	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
)

// DefaultMaxInstances is the per-mesh instance capacity.
const DefaultMaxInstances = 4096

// OrderedMesh errors.
var (
	ErrInstanceDataLength = errors.New("instance data must be 23 floats and 2 ints")
	ErrTooManyInstances   = errors.New("too many mesh instances")
)

// Data is uploaded vertex data shared by every mesh made from one file.
type Data struct {
	Name     string
	Vertices []Vertex
	Min, Max [3]float32

	buffer gpu.VertexBuffer
}

func newData(name string, verts []Vertex) *Data {
	d := &Data{Name: name, Vertices: verts}
	for i, v := range verts {
		for k := 0; k < 3; k++ {
			if i == 0 || v.Pos[k] < d.Min[k] {
				d.Min[k] = v.Pos[k]
			}
			if i == 0 || v.Pos[k] > d.Max[k] {
				d.Max[k] = v.Pos[k]
			}
		}
	}
	return d
}

// Count returns the vertex count.
func (d *Data) Count() int {
	return len(d.Vertices)
}

func (d *Data) upload(dev gpu.Device) error {
	if d.buffer != nil {
		return nil
	}
	vb, err := dev.CreateVertexBuffer(VertexLayout, len(d.Vertices))
	if err != nil {
		return errors.Wrapf(err, "mesh %s: creating vertex buffer", d.Name)
	}
	flat := make([]float32, 0, len(d.Vertices)*VertexLayout.Stride())
	for _, v := range d.Vertices {
		flat = v.appendTo(flat)
	}
	if err := vb.SetData(flat, len(d.Vertices)); err != nil {
		vb.Destroy()
		return errors.Wrapf(err, "mesh %s: uploading vertices", d.Name)
	}
	d.buffer = vb
	return nil
}

// OrderedMesh is a mesh with its per-frame instance list.
type OrderedMesh struct {
	Name     string
	Data     *Data
	Material *Material
	// Skeleton is nil for static meshes.
	Skeleton *skeleton.OrderedSkeleton

	dev       gpu.Device
	shader    gpu.Shader
	capacity  int
	instances []float32
	count     int
	buffer    gpu.VertexBuffer
}

// NewOrderedMesh uploads data and creates the instance buffer.
func NewOrderedMesh(dev gpu.Device, sh gpu.Shader, name string, data *Data, mat *Material, skel *skeleton.OrderedSkeleton, capacity int) (*OrderedMesh, error) {
	if capacity <= 0 {
		capacity = DefaultMaxInstances
	}
	if err := data.upload(dev); err != nil {
		return nil, err
	}
	buf, err := dev.CreateVertexBuffer(InstanceLayout, capacity)
	if err != nil {
		return nil, errors.Wrapf(err, "mesh %s: creating instance buffer", name)
	}
	return &OrderedMesh{
		Name:      name,
		Data:      data,
		Material:  mat,
		Skeleton:  skel,
		dev:       dev,
		shader:    sh,
		capacity:  capacity,
		instances: make([]float32, 0, capacity*InstanceStride),
		buffer:    buf,
	}, nil
}

// AddInstanceData queues one instance: 23 floats (model, tint, remap) and 2
// ints (draw id, draw mask).
func (m *OrderedMesh) AddInstanceData(data []float32, ints []int32) error {
	if len(data) != InstanceFloats || len(ints) != InstanceInts {
		return errors.Wrapf(ErrInstanceDataLength, "mesh %s: got %d floats and %d ints", m.Name, len(data), len(ints))
	}
	if m.count == m.capacity {
		return errors.Wrapf(ErrTooManyInstances, "mesh %s: capacity %d", m.Name, m.capacity)
	}
	m.instances = append(m.instances, data...)
	m.instances = append(m.instances, gpu.IntBits(ints[0]), gpu.IntBits(ints[1]))
	m.count++
	return nil
}

// AddInstance queues d.
func (m *OrderedMesh) AddInstance(d InstanceData) error {
	return m.AddInstanceData(d.Floats(), d.Ints())
}

// Count returns the queued instances.
func (m *OrderedMesh) Count() int {
	return m.count
}

// Capacity returns the instance limit.
func (m *OrderedMesh) Capacity() int {
	return m.capacity
}

// Flush drops the queued instances.
func (m *OrderedMesh) Flush() {
	m.instances = m.instances[:0]
	m.count = 0
}

// DrawInstances uploads the queued instances and draws them in one call.
// Nothing is drawn when the queue is empty.
func (m *OrderedMesh) DrawInstances() error {
	if m.count == 0 {
		return nil
	}
	sh := m.shader
	if m.Skeleton != nil && m.Skeleton.Texture() != nil {
		sh.SetBool("uSkinned", true)
		sh.SetTexture("uAnimTransforms", m.Skeleton.Texture())
		sh.SetVecArray("uBindTransforms", m.Skeleton.BindTransformData, 16)
	} else {
		sh.SetBool("uSkinned", false)
	}
	if m.Material != nil {
		m.Material.Bind(sh)
	}

	if err := m.buffer.SetData(m.instances, m.count); err != nil {
		return errors.Wrapf(err, "mesh %s: uploading instances", m.Name)
	}

	m.dev.SetFaceCull(m.Material != nil && m.Material.FaceCull)
	m.dev.SetBlendMode(gpu.BlendAlpha)
	m.dev.DrawInstanced(sh, m.Data.buffer, m.Data.Count(), m.buffer, m.count)
	m.dev.SetBlendMode(gpu.BlendNone)
	m.dev.SetFaceCull(false)
	return nil
}

// Destroy releases the instance buffer. Shared vertex data is released by
// the cache.
func (m *OrderedMesh) Destroy() {
	if m.buffer != nil {
		m.buffer.Destroy()
		m.buffer = nil
	}
}
