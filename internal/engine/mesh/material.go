package mesh

import (
	"fmt"
	"io/fs"
	"path"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
)

// DefaultSheetCount is the number of sheet samplers the mesh shader has.
const DefaultSheetCount = 4

// ErrTooManySheets is returned when a batch needs more distinct textures
// than there are sheet samplers.
var ErrTooManySheets = errors.New("too many sheets in one batch")

// SheetSet assigns sheet slots to distinct textures for one batch.
type SheetSet struct {
	limit    int
	names    []string
	textures []gpu.Texture
}

// NewSheetSet returns an empty set of at most limit sheets.
func NewSheetSet(limit int) *SheetSet {
	if limit <= 0 {
		limit = DefaultSheetCount
	}
	return &SheetSet{limit: limit}
}

// Add returns the slot of tex, assigning the next free one the first time
// tex is seen.
func (s *SheetSet) Add(name string, tex gpu.Texture) (int, error) {
	for i, t := range s.textures {
		if t == tex {
			return i, nil
		}
	}
	if len(s.textures) == s.limit {
		return -1, errors.Wrapf(ErrTooManySheets, "adding %s to %d sheets", name, s.limit)
	}
	s.names = append(s.names, name)
	s.textures = append(s.textures, tex)
	return len(s.textures) - 1, nil
}

// Len returns the slots in use.
func (s *SheetSet) Len() int {
	return len(s.textures)
}

// Name returns the texture name in slot i.
func (s *SheetSet) Name(i int) string {
	return s.names[i]
}

// Bind sets every used slot on the shader's sheet samplers.
func (s *SheetSet) Bind(sh gpu.Shader) {
	for i, t := range s.textures {
		sh.SetTexture(fmt.Sprintf("uSheets[%d]", i), t)
	}
}

// MaterialDef is a material file.
type MaterialDef struct {
	Name        string     `yaml:"name"`
	DiffuseTint [3]float32 `yaml:"diffuseTint"`
	Specular    float32    `yaml:"specular"`
	Shininess   float32    `yaml:"shininess"`
	FaceCull    bool       `yaml:"faceCull"`
	Sheets      []string   `yaml:"sheets"`
}

// ParseMaterialDef reads a material file, filling unset fields with white
// tint, 0.5 specular and back-face culling.
func ParseMaterialDef(data []byte) (*MaterialDef, error) {
	def := &MaterialDef{DiffuseTint: [3]float32{1, 1, 1}, Specular: 0.5, FaceCull: true}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, errors.Wrap(err, "parsing material")
	}
	return def, nil
}

// Material is a loaded material: shading constants and its sheet textures.
type Material struct {
	Name      string
	Tint      [3]float32
	Specular  float32
	Shininess float32
	FaceCull  bool
	Sheets    *SheetSet
}

// Bind sets the material's uniforms and sheets on sh.
func (m *Material) Bind(sh gpu.Shader) {
	sh.SetVec("uMaterialTint", m.Tint[:]...)
	sh.SetFloat("uSpecular", m.Specular)
	sh.SetFloat("uShininess", m.Shininess)
	m.Sheets.Bind(sh)
}

// loadMaterial reads name (or name.mat) from the cache's file system and
// uploads its sheets through the cache.
func (c *Cache) loadMaterial(name string) (*Material, error) {
	if m, ok := c.materials[name]; ok {
		return m, nil
	}
	file := name
	if _, err := fs.Stat(c.fsys, file); err != nil {
		file += ".mat"
	}
	data, err := fs.ReadFile(c.fsys, file)
	if err != nil {
		return nil, errors.Wrapf(err, "material %s", name)
	}
	def, err := ParseMaterialDef(data)
	if err != nil {
		return nil, errors.Wrapf(err, "material %s", name)
	}
	if def.Name == "" {
		def.Name = name
	}

	m := &Material{
		Name:      def.Name,
		Tint:      def.DiffuseTint,
		Specular:  def.Specular,
		Shininess: def.Shininess,
		FaceCull:  def.FaceCull,
		Sheets:    NewSheetSet(c.opts.SheetCount),
	}
	for _, sheet := range def.Sheets {
		tex, err := c.sheet(path.Join(path.Dir(file), sheet))
		if err != nil {
			return nil, errors.Wrapf(err, "material %s", name)
		}
		if _, err := m.Sheets.Add(sheet, tex); err != nil {
			return nil, errors.Wrapf(err, "material %s", name)
		}
	}
	return c.AddOrGetMaterial(name, m), nil
}
