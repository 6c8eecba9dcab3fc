package lighting

import (
	"sort"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
)

// MaxPointLights is the number of lights the terrain shader reads.
const MaxPointLights = 64

// PointLight is a terrain light source in world units.
type PointLight struct {
	Pos       terrain.WPos
	Tint      [3]float32
	Range     int // world units
	Intensity float32
}

// LightSet holds the terrain lights of a map, keyed by token.
type LightSet struct {
	lights map[int]PointLight
	next   int
}

// NewLightSet returns an empty set.
func NewLightSet() *LightSet {
	return &LightSet{lights: make(map[int]PointLight)}
}

// Add registers a light and returns the token that removes it.
func (s *LightSet) Add(l PointLight) int {
	token := s.next
	s.next++
	s.lights[token] = l
	return token
}

// Remove drops the light registered under token.
func (s *LightSet) Remove(token int) {
	delete(s.lights, token)
}

// Len returns the number of registered lights.
func (s *LightSet) Len() int {
	return len(s.lights)
}

// InBox returns the lights whose range reaches the world rectangle
// [left, right] x [top, bottom], oldest first, at most MaxPointLights.
func (s *LightSet) InBox(left, top, right, bottom int) []PointLight {
	tokens := make([]int, 0, len(s.lights))
	for t, l := range s.lights {
		if l.Pos.X+l.Range < left || l.Pos.X-l.Range > right {
			continue
		}
		if l.Pos.Y+l.Range < top || l.Pos.Y-l.Range > bottom {
			continue
		}
		tokens = append(tokens, t)
	}
	sort.Ints(tokens)
	if len(tokens) > MaxPointLights {
		tokens = tokens[:MaxPointLights]
	}
	out := make([]PointLight, len(tokens))
	for i, t := range tokens {
		out[i] = s.lights[t]
	}
	return out
}

// Upload writes the lights in the world rectangle to sh as uLightPos (render
// space), uLightColorRange (tint * intensity, range in render units) and
// uLightCount. Unused slots are zero.
func (s *LightSet) Upload(sh gpu.Shader, left, top, right, bottom int) int {
	lights := s.InBox(left, top, right, bottom)
	pos := make([]float32, 3*MaxPointLights)
	colorRange := make([]float32, 4*MaxPointLights)
	for i, l := range lights {
		p := l.Pos.RenderPos()
		pos[3*i], pos[3*i+1], pos[3*i+2] = p.X, p.Y, p.Z
		colorRange[4*i] = l.Tint[0] * l.Intensity
		colorRange[4*i+1] = l.Tint[1] * l.Intensity
		colorRange[4*i+2] = l.Tint[2] * l.Intensity
		colorRange[4*i+3] = float32(l.Range) / 256
	}
	sh.SetVecArray("uLightPos", pos, 3)
	sh.SetVecArray("uLightColorRange", colorRange, 4)
	sh.SetInt("uLightCount", int32(len(lights)))
	return len(lights)
}
