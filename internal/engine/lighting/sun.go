// Package lighting provides the sun and terrain point lights of the world
// renderer.
package lighting

import (
	"math"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	mathx "github.com/Faultbox/midgard-rts/pkg/math"
)

// Sun is a directional light.
type Sun struct {
	Longitude float32 // degrees around the up axis
	Latitude  float32 // degrees above the horizon
	Ambient   mathx.Vec3
	Diffuse   mathx.Vec3
}

// SunFromConfig builds the sun of cfg.
func SunFromConfig(cfg config.LightingConfig) Sun {
	return Sun{
		Longitude: cfg.SunLongitude,
		Latitude:  cfg.SunLatitude,
		Ambient:   mathx.Vec3{X: cfg.Ambient[0], Y: cfg.Ambient[1], Z: cfg.Ambient[2]},
		Diffuse:   mathx.Vec3{X: cfg.Diffuse[0], Y: cfg.Diffuse[1], Z: cfg.Diffuse[2]},
	}
}

// SunDirection converts longitude/latitude in degrees into a unit vector
// pointing toward the sun, Z up.
func SunDirection(longitude, latitude float32) mathx.Vec3 {
	lon := float64(longitude) * math.Pi / 180
	lat := float64(latitude) * math.Pi / 180
	return mathx.Vec3{
		X: float32(math.Cos(lat) * math.Sin(lon)),
		Y: float32(math.Cos(lat) * math.Cos(lon)),
		Z: float32(math.Sin(lat)),
	}
}

// ToSun returns the unit vector toward the sun.
func (s Sun) ToSun() mathx.Vec3 {
	return SunDirection(s.Longitude, s.Latitude)
}

// Direction returns the direction sunlight travels.
func (s Sun) Direction() mathx.Vec3 {
	return s.ToSun().Scale(-1)
}

// Apply sets uLightDir, uAmbient and uDiffuse on sh.
func (s Sun) Apply(sh gpu.Shader) {
	d := s.Direction()
	sh.SetVec("uLightDir", d.X, d.Y, d.Z)
	sh.SetVec("uAmbient", s.Ambient.X, s.Ambient.Y, s.Ambient.Z)
	sh.SetVec("uDiffuse", s.Diffuse.X, s.Diffuse.Y, s.Diffuse.Z)
}
