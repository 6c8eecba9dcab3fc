package lighting

import (
	"testing"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu/gputest"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

func newShader(t *testing.T) *gputest.Shader {
	t.Helper()
	sh, err := gputest.New().CreateShader("test", "vs", "fs")
	if err != nil {
		t.Fatal(err)
	}
	return sh.(*gputest.Shader)
}

func TestSunDirection(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float32
		want     math.Vec3
	}{
		{"zenith", 0, 90, math.Vec3{Z: 1}},
		{"north horizon", 0, 0, math.Vec3{Y: 1}},
		{"east horizon", 90, 0, math.Vec3{X: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SunDirection(tt.lon, tt.lat)
			if !got.ApproxEqual(tt.want, 1e-5) {
				t.Errorf("SunDirection(%v, %v) = %v, want %v", tt.lon, tt.lat, got, tt.want)
			}
		})
	}
}

func TestSunApply(t *testing.T) {
	sun := SunFromConfig(config.Default().Lighting)
	sh := newShader(t)
	sun.Apply(sh)

	d := sh.Floats["uLightDir"]
	if len(d) != 3 || d[2] >= 0 {
		t.Fatalf("uLightDir = %v, want a downward direction", d)
	}
	to := sun.ToSun()
	if d[0] != -to.X || d[1] != -to.Y || d[2] != -to.Z {
		t.Errorf("uLightDir = %v, want -%v", d, to)
	}
	if a := sh.Floats["uAmbient"]; a[0] != 0.45 || a[2] != 0.5 {
		t.Errorf("uAmbient = %v", a)
	}
}

func TestLightSetInBox(t *testing.T) {
	s := NewLightSet()
	a := s.Add(PointLight{Pos: terrain.WPos{X: 1000, Y: 1000}, Range: 500, Intensity: 1})
	s.Add(PointLight{Pos: terrain.WPos{X: 5000, Y: 1000}, Range: 500, Intensity: 1})
	s.Add(PointLight{Pos: terrain.WPos{X: 2800, Y: 1000}, Range: 1000, Intensity: 1})

	got := s.InBox(0, 0, 2000, 2000)
	if len(got) != 2 {
		t.Fatalf("InBox returned %d lights, want 2", len(got))
	}
	if got[0].Pos.X != 1000 || got[1].Pos.X != 2800 {
		t.Errorf("InBox order = %v", got)
	}

	s.Remove(a)
	if got := s.InBox(0, 0, 2000, 2000); len(got) != 1 {
		t.Errorf("after Remove InBox returned %d lights, want 1", len(got))
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestLightSetInBoxLimit(t *testing.T) {
	s := NewLightSet()
	for i := 0; i < MaxPointLights+10; i++ {
		s.Add(PointLight{Pos: terrain.WPos{X: i}, Range: 1})
	}
	if got := s.InBox(-100, -100, 1000, 100); len(got) != MaxPointLights {
		t.Errorf("InBox returned %d lights, want %d", len(got), MaxPointLights)
	}
}

func TestLightSetUpload(t *testing.T) {
	s := NewLightSet()
	s.Add(PointLight{
		Pos:       terrain.WPos{X: 512, Y: 256, Z: 768},
		Tint:      [3]float32{1, 0.5, 0},
		Range:     1024,
		Intensity: 2,
	})
	sh := newShader(t)
	if n := s.Upload(sh, 0, 0, 1000, 1000); n != 1 {
		t.Fatalf("Upload() = %d, want 1", n)
	}

	pos := sh.Floats["uLightPos"]
	if len(pos) != 3*MaxPointLights {
		t.Fatalf("uLightPos has %d floats", len(pos))
	}
	if pos[0] != -2 || pos[1] != 1 || pos[2] != 3 {
		t.Errorf("uLightPos[0] = %v", pos[:3])
	}
	cr := sh.Floats["uLightColorRange"]
	if cr[0] != 2 || cr[1] != 1 || cr[2] != 0 || cr[3] != 4 {
		t.Errorf("uLightColorRange[0] = %v", cr[:4])
	}
	if sh.Ints["uLightCount"] != 1 {
		t.Errorf("uLightCount = %d", sh.Ints["uLightCount"])
	}
}
