package mesh

import (
	"io/fs"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/shader"
	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/internal/logger"
)

// Cache errors.
var (
	ErrInvalidMesh       = errors.New("not a valid mesh file")
	ErrNoMaterial        = errors.New("mesh has no material")
	ErrUnknownUnit       = errors.New("unit has no mesh sequences")
	ErrUnknownSequence   = errors.New("unit has no such mesh sequence")
	ErrDuplicateSequence = errors.New("mesh sequence already defined")
)

// Definition describes one mesh sequence of a unit.
type Definition struct {
	// Mesh is the file name, optionally followed by comma separated fields.
	Mesh     string `yaml:"mesh"`
	Material string `yaml:"material"`
	// Skeleton skins the mesh; nil for static meshes.
	Skeleton *skeleton.OrderedSkeleton `yaml:"-"`
}

// fileName returns the first comma field of the mesh name.
func (d Definition) fileName() string {
	for _, f := range strings.Split(d.Mesh, ",") {
		if f = strings.TrimSpace(f); f != "" {
			return f
		}
	}
	return ""
}

// Loader turns a definition into a mesh. ok is false when the definition
// isn't in the loader's format.
type Loader interface {
	TryLoad(c *Cache, def Definition) (mesh *OrderedMesh, ok bool, err error)
}

// Options sizes the cache's meshes.
type Options struct {
	MaxInstances int
	SheetCount   int
	MaxSkinBones int // size of the shader's bind transform array
}

// Cache owns every loaded mesh, material and sheet texture.
type Cache struct {
	dev     gpu.Device
	fsys    fs.FS
	loaders []Loader
	opts    Options
	shader  gpu.Shader

	materials map[string]*Material
	sheets    map[string]gpu.Texture
	data      map[string]*Data
	meshes    map[string]*OrderedMesh
	order     []string
	refs      map[string]map[string]*OrderedMesh
}

// DefaultLoaders returns the MMR and glTF loaders, in that order.
func DefaultLoaders() []Loader {
	return []Loader{MMRLoader{}, GLTFLoader{}}
}

// NewCache compiles the mesh shader. Files are read from fsys; loaders are
// tried in order and default to DefaultLoaders.
func NewCache(dev gpu.Device, fsys fs.FS, opts Options, loaders ...Loader) (*Cache, error) {
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = DefaultMaxInstances
	}
	if opts.SheetCount <= 0 {
		opts.SheetCount = DefaultSheetCount
	}
	if opts.MaxSkinBones <= 0 {
		opts.MaxSkinBones = skeleton.DefaultMaxSkinBones
	}
	if len(loaders) == 0 {
		loaders = DefaultLoaders()
	}
	vs := shader.WithDefines(shader.MeshVertexShader, shader.Defines{"MAX_SKIN_BONES": opts.MaxSkinBones})
	sh, err := dev.CreateShader("mesh", vs, shader.MeshFragmentShader)
	if err != nil {
		return nil, errors.Wrap(err, "compiling mesh shader")
	}
	return &Cache{
		dev:       dev,
		fsys:      fsys,
		loaders:   loaders,
		opts:      opts,
		shader:    sh,
		materials: make(map[string]*Material),
		sheets:    make(map[string]gpu.Texture),
		data:      make(map[string]*Data),
		meshes:    make(map[string]*OrderedMesh),
		refs:      make(map[string]map[string]*OrderedMesh),
	}, nil
}

// Shader returns the mesh shader, for per-pass uniforms.
func (c *Cache) Shader() gpu.Shader {
	return c.shader
}

// CacheMesh loads def once per mesh name and registers it as unit's
// sequence.
func (c *Cache) CacheMesh(unit, sequence string, def Definition) error {
	name := def.Mesh
	m, ok := c.meshes[name]
	if !ok {
		var err error
		if m, err = c.loadMesh(unit, sequence, def); err != nil {
			return err
		}
		c.meshes[name] = m
		c.order = append(c.order, name)
	}

	seqs, ok := c.refs[unit]
	if !ok {
		seqs = make(map[string]*OrderedMesh)
		c.refs[unit] = seqs
	}
	if _, dup := seqs[sequence]; dup {
		return errors.Wrapf(ErrDuplicateSequence, "%s.%s", unit, sequence)
	}
	seqs[sequence] = m
	return nil
}

func (c *Cache) loadMesh(unit, sequence string, def Definition) (*OrderedMesh, error) {
	for _, l := range c.loaders {
		m, ok, err := l.TryLoad(c, def)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", unit, sequence)
		}
		if ok {
			logger.Debug("mesh loaded",
				zap.String("unit", unit),
				zap.String("sequence", sequence),
				zap.String("mesh", m.Name),
				zap.Int("vertices", m.Data.Count()))
			return m, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidMesh, "%s.%s", unit, sequence)
}

// GetMeshSequence returns the mesh of unit's sequence.
func (c *Cache) GetMeshSequence(unit, sequence string) (*OrderedMesh, error) {
	ok, err := c.HasMeshSequence(unit, sequence)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSequence, "%s.%s", unit, sequence)
	}
	return c.refs[unit][sequence], nil
}

// HasMeshSequence reports whether unit defines sequence. A unit with no
// sequences at all is an error.
func (c *Cache) HasMeshSequence(unit, sequence string) (bool, error) {
	seqs, ok := c.refs[unit]
	if !ok {
		return false, errors.Wrapf(ErrUnknownUnit, "%s", unit)
	}
	_, ok = seqs[sequence]
	return ok, nil
}

// Material returns a loaded material.
func (c *Cache) Material(name string) (*Material, bool) {
	m, ok := c.materials[name]
	return m, ok
}

// AddOrGetMaterial stores m under name unless a material is already there,
// and returns the stored one.
func (c *Cache) AddOrGetMaterial(name string, m *Material) *Material {
	if old, ok := c.materials[name]; ok {
		return old
	}
	c.materials[name] = m
	return m
}

// meshData returns the vertex data cached under key, building it once.
func (c *Cache) meshData(key string, build func() (*Data, error)) (*Data, error) {
	if d, ok := c.data[key]; ok {
		return d, nil
	}
	d, err := build()
	if err != nil {
		return nil, err
	}
	c.data[key] = d
	return d, nil
}

// sheet loads and uploads an image once per name.
func (c *Cache) sheet(name string) (gpu.Texture, error) {
	if t, ok := c.sheets[name]; ok {
		return t, nil
	}
	raw, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "sheet %s", name)
	}
	img, err := texture.DecodeImage(name, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "sheet %s", name)
	}
	b := img.Bounds()
	tex, err := c.dev.CreateTexture(b.Dx(), b.Dy())
	if err != nil {
		return nil, errors.Wrapf(err, "sheet %s", name)
	}
	if err := tex.SetData(img.Pix, b.Dx(), b.Dy()); err != nil {
		tex.Destroy()
		return nil, errors.Wrapf(err, "sheet %s", name)
	}
	c.sheets[name] = tex
	return tex, nil
}

// newMesh builds the OrderedMesh for def on top of shared data.
func (c *Cache) newMesh(name string, data *Data, def Definition) (*OrderedMesh, error) {
	if def.Material == "" {
		return nil, errors.Wrapf(ErrNoMaterial, "mesh %s", name)
	}
	mat, err := c.loadMaterial(strings.TrimSpace(def.Material))
	if err != nil {
		return nil, err
	}
	return NewOrderedMesh(c.dev, c.shader, name, data, mat, def.Skeleton, c.opts.MaxInstances)
}

// DrawInstances draws every mesh. Queues are kept for the next pass on the
// sun camera pass and flushed on the main pass, including meshes whose draw
// failed. Draw errors are combined.
func (c *Cache) DrawInstances(sunCamera bool) error {
	var err error
	for _, name := range c.order {
		m := c.meshes[name]
		err = multierr.Append(err, m.DrawInstances())
		if !sunCamera {
			m.Flush()
		}
	}
	return err
}

// Flush drops the queued instances of every mesh.
func (c *Cache) Flush() {
	for _, m := range c.meshes {
		m.Flush()
	}
}

// Queued returns the instances queued over all meshes.
func (c *Cache) Queued() int {
	n := 0
	for _, m := range c.meshes {
		n += m.Count()
	}
	return n
}

// Destroy releases every GPU resource the cache created.
func (c *Cache) Destroy() {
	for _, m := range c.meshes {
		m.Destroy()
	}
	for _, d := range c.data {
		if d.buffer != nil {
			d.buffer.Destroy()
			d.buffer = nil
		}
	}
	for _, t := range c.sheets {
		t.Destroy()
	}
	c.shader.Destroy()
}
